package contract

import "context"

// Capability: 外部文本补全能力（黑盒）。
// 约束：
//  1. 单次调用、同步返回；应尊重 ctx 取消并在固定超时后失败；
//  2. 失败只有两类：*TransportError（连接/超时）与 *RemoteError（非成功状态码）；
//  3. 支持重复的顺序调用，不要求并发安全；
//  4. model 为空时使用实现方默认模型。
type Capability interface {
	Complete(ctx context.Context, conv Conversation, model string) (string, error)
}

// CapabilityFunc 适配普通函数为 Capability。
type CapabilityFunc func(ctx context.Context, conv Conversation, model string) (string, error)

func (f CapabilityFunc) Complete(ctx context.Context, conv Conversation, model string) (string, error) {
	return f(ctx, conv, model)
}
