package contract

import (
	"errors"
	"fmt"
)

// 最小错误分类（用于上层策略判定）。
var (
	// ErrInvalidConfiguration: 配置非法（例如 chunk 长度非正、不支持的翻译方向）；在任何网络调用之前拒绝。
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrSchemaParse: 能力返回的文本无法解析为符合抽取 schema 的 JSON 对象。
	ErrSchemaParse = errors.New("schema parse failed")
	// ErrSeqInvalid: 部分结果的序号重复或越界，无法按序合并。
	ErrSeqInvalid = errors.New("sequence invalid")
	// ErrOverBudget: 单次请求的估算 token 超出上限；请求未发出。
	ErrOverBudget = errors.New("request over token budget")
)

// TransportError: 连接失败或超时（未拿到上游响应）。
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout 报告底层错误是否为超时。
func (e *TransportError) Timeout() bool {
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// RemoteError: 上游返回非成功状态码。
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote status %d", e.Status)
	}
	return fmt.Sprintf("remote status %d: %s", e.Status, e.Message)
}

// UpstreamStatus/UpstreamMessage 供日志层提取结构化字段。
func (e *RemoteError) UpstreamStatus() int     { return e.Status }
func (e *RemoteError) UpstreamMessage() string { return e.Message }

// UpstreamError: 携带上游诊断信息的错误（状态码与简短消息）。
type UpstreamError interface {
	error
	UpstreamStatus() int
	UpstreamMessage() string
}

var _ UpstreamError = (*RemoteError)(nil)

// SchemaParseError: 抽取回复未通过解析/校验；Reply 保留原文便于纠正重试。
type SchemaParseError struct {
	Reply string
	Err   error
}

func (e *SchemaParseError) Error() string {
	if e.Err == nil {
		return ErrSchemaParse.Error()
	}
	return fmt.Sprintf("%s: %v", ErrSchemaParse.Error(), e.Err)
}

func (e *SchemaParseError) Unwrap() error { return e.Err }

// Is 使 errors.Is(err, ErrSchemaParse) 成立。
func (e *SchemaParseError) Is(target error) bool { return target == ErrSchemaParse }
