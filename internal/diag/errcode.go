package diag

import (
	"context"
	"errors"
	"net"
	"os"

	"llmseg/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志汇总与退出码映射。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeCancel    Code = "cancel"
	CodeConfig    Code = "config"
	CodeTransport Code = "transport"
	CodeRemote    Code = "remote"
	CodeSchema    Code = "schema"
	CodeBudget    Code = "budget"
	CodeSequence  Code = "sequence"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类。
// 仅依赖哨兵错误与错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, contract.ErrInvalidConfiguration) {
		return CodeConfig
	}
	if errors.Is(err, contract.ErrOverBudget) {
		return CodeBudget
	}
	if errors.Is(err, contract.ErrSchemaParse) {
		return CodeSchema
	}
	if errors.Is(err, contract.ErrSeqInvalid) {
		return CodeSequence
	}
	var rerr *contract.RemoteError
	if errors.As(err, &rerr) {
		return CodeRemote
	}
	var terr *contract.TransportError
	if errors.As(err, &terr) {
		return CodeTransport
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeTransport
	}
	return CodeUnknown
}

// 进程退出码。
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 3
)

// ExitCode 将错误映射为退出码：配置问题为 3，其余失败为 1。
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case Classify(err) == CodeConfig:
		return ExitConfig
	default:
		return ExitFailure
	}
}
