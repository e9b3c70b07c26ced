package mock

import (
	"context"
	"fmt"
	"sync"

	"llmseg/pkg/contract"
)

// Options: 最小调试配置（可选）。
type Options struct {
	// Prefix: 回显模式下的输出前缀，默认 "MOCK"。
	Prefix string `yaml:"prefix"`
	// Replies: 预置回复队列；按调用顺序依次返回，耗尽后回显。
	Replies []string `yaml:"replies"`
}

// Reply: 一次脚本化回复；Err 非空时返回错误。
type Reply struct {
	Text string
	Err  error
}

// Call: 一次调用的记录（会话为副本）。
type Call struct {
	Conv  contract.Conversation
	Model string
}

// Client: 离线补全能力。
// 先消费脚本队列；队列耗尽后回显最后一条 user 轮次（带 Prefix）。
// 记录每次调用，便于测试断言调用次数与会话形状。
type Client struct {
	mu      sync.Mutex
	prefix  string
	replies []Reply
	calls   []Call
}

// New 从 Options 构造。
func New(opts Options) *Client {
	c := &Client{prefix: opts.Prefix}
	if c.prefix == "" {
		c.prefix = "MOCK"
	}
	for _, r := range opts.Replies {
		c.replies = append(c.replies, Reply{Text: r})
	}
	return c
}

// Script 以脚本化回复构造（测试用）。
func Script(replies ...Reply) *Client {
	c := New(Options{})
	c.replies = append(c.replies, replies...)
	return c
}

// Texts 以纯文本回复构造（测试用）。
func Texts(texts ...string) *Client {
	return New(Options{Replies: texts})
}

// Complete 实现 contract.Capability。
func (c *Client) Complete(ctx context.Context, conv contract.Conversation, model string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &contract.TransportError{Op: "mock", Err: err}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Conv: conv.Clone(), Model: model})
	if len(c.replies) > 0 {
		r := c.replies[0]
		c.replies = c.replies[1:]
		return r.Text, r.Err
	}
	last := ""
	for i := len(conv) - 1; i >= 0; i-- {
		if conv[i].Role == contract.RoleUser {
			last = conv[i].Text
			break
		}
	}
	return fmt.Sprintf("%s: %s", c.prefix, last), nil
}

// Calls 返回调用记录副本。
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Count 返回调用次数。
func (c *Client) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

var _ contract.Capability = (*Client)(nil)
