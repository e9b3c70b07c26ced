package merge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"llmseg/pkg/contract"
)

type countCap struct {
	n     int
	last  contract.Conversation
	reply string
	err   error
}

func (c *countCap) Complete(ctx context.Context, conv contract.Conversation, model string) (string, error) {
	c.n++
	c.last = conv
	return c.reply, c.err
}

func partials(texts ...string) []contract.PartialResult {
	out := make([]contract.PartialResult, len(texts))
	for i, s := range texts {
		out[i] = contract.PartialResult{ChunkIndex: i, Text: s}
	}
	return out
}

// TestConcatOrdered 乱序输入按序号拼接，无分隔符。
func TestConcatOrdered(t *testing.T) {
	in := []contract.PartialResult{{ChunkIndex: 2, Text: "c"}, {ChunkIndex: 0, Text: "a"}, {ChunkIndex: 1, Text: "b"}}
	got, err := Concat(in)
	if err != nil {
		t.Fatalf("concat: %v", err)
	}
	if got != "abc" {
		t.Fatalf("unexpected %q", got)
	}
	if in[0].ChunkIndex != 2 {
		t.Fatalf("输入切片不应被修改")
	}
}

// TestConcatAssociative 任意切分点 k：merge[0..n) == merge[0..k)+merge[k..n)。
func TestConcatAssociative(t *testing.T) {
	ps := partials("Hello", ", ", "世界", "", "!", " done")
	whole, err := Concat(ps)
	if err != nil {
		t.Fatalf("concat: %v", err)
	}
	for k := 0; k <= len(ps); k++ {
		left, err := Concat(ps[:k])
		if err != nil {
			t.Fatalf("left(%d): %v", k, err)
		}
		right, err := Concat(ps[k:])
		if err != nil {
			t.Fatalf("right(%d): %v", k, err)
		}
		if left+right != whole {
			t.Fatalf("k=%d: %q+%q != %q", k, left, right, whole)
		}
	}
}

// TestConcatSeqInvalid 重复或负序号。
func TestConcatSeqInvalid(t *testing.T) {
	cases := map[string][]contract.PartialResult{
		"dup":      {{ChunkIndex: 0}, {ChunkIndex: 0}},
		"negative": {{ChunkIndex: -1}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Concat(in); !errors.Is(err, contract.ErrSeqInvalid) {
				t.Fatalf("want ErrSeqInvalid got %v", err)
			}
		})
	}
}

// TestConcatEmpty 空输入得到空串。
func TestConcatEmpty(t *testing.T) {
	got, err := Concat(nil)
	if err != nil || got != "" {
		t.Fatalf("unexpected %q %v", got, err)
	}
}

// TestReduceSingleNoCall 单段不发起合并调用。
func TestReduceSingleNoCall(t *testing.T) {
	c := &countCap{reply: "never"}
	r := &Reducer{Capability: c}
	got, calls, err := r.Reduce(context.Background(), partials("only"), "combine", "Partial:\n")
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if got != "only" || calls != 0 || c.n != 0 {
		t.Fatalf("got %q calls %d cap %d", got, calls, c.n)
	}
}

// TestReduceEmpty 零段不调用。
func TestReduceEmpty(t *testing.T) {
	c := &countCap{}
	got, calls, err := (&Reducer{Capability: c}).Reduce(context.Background(), nil, "i", "")
	if err != nil || got != "" || calls != 0 || c.n != 0 {
		t.Fatalf("unexpected %q %d %v", got, calls, err)
	}
}

// TestReduceMultiOneCall 多段恰好一次额外调用，空行拼接。
func TestReduceMultiOneCall(t *testing.T) {
	c := &countCap{reply: "final"}
	r := &Reducer{Capability: c, Model: "m"}
	in := []contract.PartialResult{{ChunkIndex: 1, Text: "B"}, {ChunkIndex: 0, Text: "A"}, {ChunkIndex: 2, Text: "C"}}
	got, calls, err := r.Reduce(context.Background(), in, "combine", "Partial summaries:\n")
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if got != "final" || calls != 1 || c.n != 1 {
		t.Fatalf("got %q calls %d cap %d", got, calls, c.n)
	}
	if c.last[0].Role != contract.RoleSystem || c.last[0].Text != "combine" {
		t.Fatalf("system 轮次不符: %#v", c.last[0])
	}
	if want := "Partial summaries:\nA\n\nB\n\nC"; c.last[1].Text != want {
		t.Fatalf("user 轮次 %q，预期 %q", c.last[1].Text, want)
	}
}

// TestReduceError 合并调用失败上抛，无部分输出。
func TestReduceError(t *testing.T) {
	c := &countCap{err: &contract.TransportError{Op: "post", Err: errors.New("refused")}}
	got, calls, err := (&Reducer{Capability: c}).Reduce(context.Background(), partials("a", "b"), "i", "")
	var te *contract.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("应透传 TransportError: %v", err)
	}
	if got != "" || calls != 1 {
		t.Fatalf("失败时不得返回输出: %q %d", got, calls)
	}
	if !strings.Contains(err.Error(), "reduce") {
		t.Fatalf("错误应带阶段前缀: %v", err)
	}
}

// TestReduceBudgetRejectsBeforeCall 预算检查失败时不发起调用，不计数。
func TestReduceBudgetRejectsBeforeCall(t *testing.T) {
	c := &countCap{reply: "never"}
	var seen contract.Conversation
	r := &Reducer{Capability: c, Budget: func(conv contract.Conversation) error {
		seen = conv
		return contract.ErrOverBudget
	}}
	got, calls, err := r.Reduce(context.Background(), partials("a", "b"), "i", "d:")
	if !errors.Is(err, contract.ErrOverBudget) {
		t.Fatalf("应为 ErrOverBudget: %v", err)
	}
	if got != "" || calls != 0 || c.n != 0 {
		t.Fatalf("预算拒绝不得调用: %q calls=%d n=%d", got, calls, c.n)
	}
	if len(seen) != 2 || seen[1].Text != "d:a\n\nb" {
		t.Fatalf("预算应检查完整合并会话: %#v", seen)
	}
}

// TestReduceCapabilityRejectedNotCounted 能力层拒绝（未发出）的请求不计入调用次数。
func TestReduceCapabilityRejectedNotCounted(t *testing.T) {
	c := &countCap{err: contract.ErrOverBudget}
	_, calls, err := (&Reducer{Capability: c}).Reduce(context.Background(), partials("a", "b"), "i", "")
	if !errors.Is(err, contract.ErrOverBudget) || calls != 0 {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}
