package prompt

import (
	"fmt"

	"llmseg/pkg/contract"
)

// DefaultBytesPerToken: 估算器默认的 UTF-8 字节/token 比。
const DefaultBytesPerToken = 4

// turnOverhead: 每个会话轮次的固定开销（角色标记等）。
const turnOverhead = 4

// Estimator 将文本映射为近似 token 数。
type Estimator func(string) int

// MakeEstimator 返回近似估算器：tokens ≈ ceil(len(utf8_bytes)/bytesPerToken)。
// bytesPerToken<=0 时采用 DefaultBytesPerToken。
func MakeEstimator(bytesPerToken int) Estimator {
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = DefaultBytesPerToken
	}
	return func(s string) int {
		n := len(s)
		if n == 0 {
			return 0
		}
		return (n + bpt - 1) / bpt
	}
}

// Conversation 估算整段会话的输入 token 数。
func Conversation(conv contract.Conversation, est Estimator) int {
	if est == nil {
		est = MakeEstimator(0)
	}
	total := 0
	for _, t := range conv {
		total += turnOverhead + est(t.Text)
	}
	return total
}

// CheckBudget 在发起调用前检查会话是否超出单请求上限；maxTokens<=0 表示不限制。
// 超限返回 ErrOverBudget；是否属于配置问题由调用方按阶段决定。
func CheckBudget(conv contract.Conversation, est Estimator, maxTokens int) error {
	if maxTokens <= 0 {
		return nil
	}
	if n := Conversation(conv, est); n > maxTokens {
		return fmt.Errorf("%w: request needs ~%d tokens, limit %d", contract.ErrOverBudget, n, maxTokens)
	}
	return nil
}
