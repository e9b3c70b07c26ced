package processor

import (
	"context"
	"errors"
	"testing"

	"llmseg/pkg/contract"
)

type recCap struct {
	calls []contract.Conversation
	model string
	reply string
	err   error
}

func (r *recCap) Complete(ctx context.Context, conv contract.Conversation, model string) (string, error) {
	r.calls = append(r.calls, conv)
	r.model = model
	return r.reply, r.err
}

// TestProcessBuildsTwoTurns 验证会话形状与单次调用。
func TestProcessBuildsTwoTurns(t *testing.T) {
	c := &recCap{reply: "translated"}
	p := New(c, "qwen")
	res, err := p.Process(context.Background(), contract.Chunk{Index: 3, Text: "你好"}, "be formal", "Translate:\n")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.ChunkIndex != 3 || res.Text != "translated" {
		t.Fatalf("unexpected result %#v", res)
	}
	if len(c.calls) != 1 {
		t.Fatalf("应调用一次，实际 %d", len(c.calls))
	}
	conv := c.calls[0]
	if len(conv) != 2 || conv[0].Role != contract.RoleSystem || conv[1].Role != contract.RoleUser {
		t.Fatalf("会话形状不符: %#v", conv)
	}
	if conv[0].Text != "be formal" || conv[1].Text != "Translate:\n你好" {
		t.Fatalf("会话内容不符: %#v", conv)
	}
	if c.model != "qwen" {
		t.Fatalf("模型未透传: %q", c.model)
	}
}

// TestProcessPropagatesError 错误不被改写或重试。
func TestProcessPropagatesError(t *testing.T) {
	remote := &contract.RemoteError{Status: 500, Message: "boom"}
	c := &recCap{err: remote}
	p := New(c, "")
	_, err := p.Process(context.Background(), contract.Chunk{Index: 0, Text: "x"}, "i", "")
	var re *contract.RemoteError
	if !errors.As(err, &re) || re.Status != 500 {
		t.Fatalf("应透传 RemoteError，得到 %v", err)
	}
	if len(c.calls) != 1 {
		t.Fatalf("本层不得重试，调用 %d 次", len(c.calls))
	}
}

// TestProcessNilCapability 缺少能力时报错。
func TestProcessNilCapability(t *testing.T) {
	p := &Processor{}
	if _, err := p.Process(context.Background(), contract.Chunk{}, "", ""); err == nil {
		t.Fatalf("应返回错误")
	}
}
