package extract

import (
	"context"
	"errors"
	"fmt"

	"llmseg/internal/retry"
	"llmseg/pkg/contract"
)

// CorrectivePrompt: 纠正重试时追加的 user 轮次。
const CorrectivePrompt = "Return ONLY valid JSON per schema."

// DefaultPolicy: 恰好一次纠正重试，且仅针对解析/校验失败；传输/上游错误不重试。
var DefaultPolicy = retry.Policy{MaxAttempts: 2, Retryable: retry.On(contract.ErrSchemaParse)}

// Extractor: 结构化抽取。
// 状态机：FirstAttempt →(解析失败)→ CorrectiveRetry →(再失败)→ Failure；任一次解析成功 → Success。
type Extractor struct {
	Capability contract.Capability
	Model      string
	Schema     *Schema
	Policy     retry.Policy
}

// New 构造 Extractor；Policy 取 DefaultPolicy。
func New(c contract.Capability, model string, schema *Schema) *Extractor {
	return &Extractor{Capability: c, Model: model, Schema: schema, Policy: DefaultPolicy}
}

// Result: 抽取结果与过程信息。
type Result struct {
	Value contract.ExtractionResult
	// Calls: 实际发起的补全调用次数（1 或 2）。
	Calls int
	// Missing/Ignored: 宽松模式下被补 null 的缺失键与被丢弃的多余键。
	Missing []string
	Ignored []string
}

// Extract 执行抽取。失败时不返回任何部分结果。
func (e *Extractor) Extract(ctx context.Context, text string) (Result, error) {
	if e.Capability == nil || e.Schema == nil {
		return Result{}, errors.New("extract: missing capability or schema")
	}
	conv := contract.Conversation{
		contract.System(e.Schema.Instruction()),
		contract.User("Text:\n" + text),
	}
	var (
		res   Result
		calls int
	)
	err := e.Policy.Do(ctx, func(ctx context.Context, attempt int) error {
		calls++
		out, err := e.Capability.Complete(ctx, conv, e.Model)
		if err != nil {
			return err
		}
		val, rep, err := e.Schema.Decode(out)
		if err != nil {
			// 进入 CorrectiveRetry：失败回复作为 assistant 轮次，附加纠正指令
			conv = append(conv.Clone(), contract.Assistant(out), contract.User(CorrectivePrompt))
			return err
		}
		res = Result{Value: val, Missing: rep.Missing, Ignored: rep.Ignored}
		return nil
	})
	if err != nil {
		return Result{Calls: calls}, fmt.Errorf("extract: %w", err)
	}
	res.Calls = calls
	return res, nil
}
