package pipeline

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"llmseg/internal/diag"
	"llmseg/internal/rate"
	"llmseg/internal/style"
	"llmseg/pkg/contract"
	"llmseg/plugins/capability/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newRunner(c contract.Capability) *Runner {
	return &Runner{Capability: c, Settings: DefaultSettings()}
}

func doc(n int) contract.Document { return contract.Document(strings.Repeat("字", n)) }

func size(n int) *int { return &n }

func TestTranslateConcatInOrder(t *testing.T) {
	c := mock.Texts("A", "B", "C")
	res, err := newRunner(c).Run(context.Background(), Request{Operation: contract.OpTranslate, Document: doc(1300)})
	require.NoError(t, err)
	assert.Equal(t, "ABC", res.Text)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 3, res.Calls)
	assert.Equal(t, 3, c.Count())

	dir, _ := style.Direction("zh2en")
	calls := c.Calls()
	assert.Equal(t, style.Tones.Resolve("formal"), calls[0].Conv[0].Text)
	assert.Equal(t, dir+strings.Repeat("字", 600), calls[0].Conv[1].Text)
	assert.Equal(t, dir+strings.Repeat("字", 100), calls[2].Conv[1].Text)
}

func TestTranslateOptions(t *testing.T) {
	c := mock.Texts("x")
	_, err := newRunner(c).Run(context.Background(), Request{
		Operation: contract.OpTranslate, Document: "hello",
		Direction: "EN2ZH", Tone: "academic", Model: "m1", ChunkSize: size(10),
	})
	require.NoError(t, err)
	call := c.Calls()[0]
	dir, _ := style.Direction("en2zh")
	assert.Equal(t, "m1", call.Model)
	assert.Equal(t, style.Tones.Resolve("academic"), call.Conv[0].Text)
	assert.Equal(t, dir+"hello", call.Conv[1].Text)
}

func TestTranslateUnknownToneFallsBack(t *testing.T) {
	c := mock.Texts("x")
	_, err := newRunner(c).Run(context.Background(), Request{Operation: contract.OpTranslate, Document: "hi", Tone: "pirate"})
	require.NoError(t, err)
	assert.Equal(t, style.Tones.Resolve("formal"), c.Calls()[0].Conv[0].Text)
}

func TestRejectBeforeAnyCall(t *testing.T) {
	cases := map[string]Request{
		"direction":  {Operation: contract.OpTranslate, Document: "hi", Direction: "fr2de"},
		"chunk":      {Operation: contract.OpTranslate, Document: "hi", ChunkSize: size(-1)},
		"zero chunk": {Operation: contract.OpTranslate, Document: "hi", ChunkSize: size(0)},
		"op":         {Operation: "classify", Document: "hi"},
		"sum chunk":  {Operation: contract.OpSummarize, Document: "hi", ChunkSize: size(-5)},
		"sum zero":   {Operation: contract.OpSummarize, Document: "hi", ChunkSize: size(0)},
		"empty op":   {Document: "hi"},
		"budget":     {Operation: contract.OpSummarize, Document: doc(50), ChunkSize: size(50)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			c := mock.Texts("x")
			r := newRunner(c)
			r.Settings.MaxTokensPerReq = 40
			_, err := r.Run(context.Background(), req)
			assert.ErrorIs(t, err, contract.ErrInvalidConfiguration)
			assert.Equal(t, 0, c.Count(), "非法配置不得发起调用")
		})
	}
}

func TestSummarizeSingleChunkVerbatim(t *testing.T) {
	c := mock.Texts("only summary")
	res, err := newRunner(c).Run(context.Background(), Request{Operation: contract.OpSummarize, Document: doc(300)})
	require.NoError(t, err)
	assert.Equal(t, "only summary", res.Text)
	assert.Equal(t, 1, res.Calls)
	assert.Equal(t, 1, c.Count())
	conv := c.Calls()[0].Conv
	assert.Equal(t, style.SummaryStyles.Resolve("concise"), conv[0].Text)
	assert.True(t, strings.HasPrefix(conv[1].Text, style.SummaryDirective))
}

func TestSummarizeMapReduce(t *testing.T) {
	c := mock.Texts("p0", "p1", "p2", "FINAL")
	res, err := newRunner(c).Run(context.Background(), Request{Operation: contract.OpSummarize, Document: doc(2000), Style: "bullet"})
	require.NoError(t, err)
	assert.Equal(t, "FINAL", res.Text)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 4, res.Calls, "n 个分块 + 1 次合并")

	last := c.Calls()[3].Conv
	assert.Equal(t, style.ReduceStyles.Resolve("bullet"), last[0].Text)
	assert.Equal(t, style.ReduceDirective+"p0\n\np1\n\np2", last[1].Text)
	assert.Equal(t, style.SummaryStyles.Resolve("bullet"), c.Calls()[0].Conv[0].Text)
}

func TestEmptyDocumentNoCalls(t *testing.T) {
	for _, op := range []contract.Operation{contract.OpTranslate, contract.OpSummarize} {
		c := mock.Texts()
		res, err := newRunner(c).Run(context.Background(), Request{Operation: op})
		require.NoError(t, err)
		assert.Equal(t, "", res.Text)
		assert.Equal(t, 0, res.Calls)
		assert.Equal(t, 0, c.Count())
	}
}

func TestChunkFailureAborts(t *testing.T) {
	c := mock.Script(mock.Reply{Text: "ok"}, mock.Reply{Err: &contract.RemoteError{Status: 500}}, mock.Reply{Text: "never"})
	res, err := newRunner(c).Run(context.Background(), Request{Operation: contract.OpTranslate, Document: doc(1300)})
	var re *contract.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, err.Error(), "chunk 1")
	assert.Equal(t, "", res.Text, "失败时不返回部分结果")
	assert.Equal(t, 2, res.Calls)
	assert.Equal(t, 2, c.Count())
}

func TestReduceFailure(t *testing.T) {
	c := mock.Script(mock.Reply{Text: "a"}, mock.Reply{Text: "b"}, mock.Reply{Err: &contract.TransportError{Op: "post", Err: context.DeadlineExceeded}})
	_, err := newRunner(c).Run(context.Background(), Request{Operation: contract.OpSummarize, Document: doc(1000)})
	var te *contract.TransportError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, 3, c.Count())
}

// 合并会话超出单请求上限：在合并调用前拒绝，属运行期错误，不计调用。
func TestReduceOverBudgetRejectedBeforeCall(t *testing.T) {
	partial := strings.Repeat("摘", 200) // 600 字节
	inner := mock.Texts(partial, partial, partial, "FINAL")
	gate := rate.NewGate(map[rate.LimitKey]rate.Limits{"k": {MaxTokensPerReq: 300}}, nil)
	r := newRunner(&rate.Gated{Next: inner, Gate: gate, Key: "k"})
	r.Settings.MaxTokensPerReq = 300

	res, err := r.Run(context.Background(), Request{Operation: contract.OpSummarize, Document: doc(500), ChunkSize: size(200)})
	require.ErrorIs(t, err, contract.ErrOverBudget)
	assert.NotErrorIs(t, err, contract.ErrInvalidConfiguration)
	assert.Equal(t, diag.ExitFailure, diag.ExitCode(err))
	assert.Equal(t, 3, inner.Count())
	assert.Equal(t, 3, res.Calls, "被拒绝的合并不计入调用")
	assert.Empty(t, res.Text)
}

// 能力层在发出前拒绝的分块不计入调用。
func TestGateRejectedChunkNotCounted(t *testing.T) {
	inner := mock.Texts("never")
	gate := rate.NewGate(map[rate.LimitKey]rate.Limits{"k": {TPM: 10}}, nil)
	r := newRunner(&rate.Gated{Next: inner, Gate: gate, Key: "k"})

	res, err := r.Run(context.Background(), Request{Operation: contract.OpTranslate, Document: doc(100)})
	require.ErrorIs(t, err, contract.ErrOverBudget)
	assert.Equal(t, 0, res.Calls)
	assert.Equal(t, 0, inner.Count())
}

func TestExtract(t *testing.T) {
	c := mock.Texts(`{"person":"小王","company":"示例科技","date":"2025年10月","location":"上海","role":"x"}`)
	res, err := newRunner(c).Run(context.Background(), Request{Operation: contract.OpExtract, Document: doc(5000)})
	require.NoError(t, err)
	require.NotNil(t, res.Extraction)
	assert.Equal(t, "上海", *res.Extraction.Location)
	assert.Equal(t, []string{"role"}, res.Ignored)
	assert.Equal(t, 1, res.Calls)
	assert.Len(t, c.Calls()[0].Conv, 2, "抽取不分块")
}

func TestExtractStrictOverride(t *testing.T) {
	strict := true
	c := mock.Texts(`{"person":"a"}`, `{"person":"a"}`)
	res, err := newRunner(c).Run(context.Background(), Request{Operation: contract.OpExtract, Document: "x", StrictKeys: &strict})
	assert.ErrorIs(t, err, contract.ErrSchemaParse)
	assert.Nil(t, res.Extraction)
	assert.Equal(t, 2, res.Calls)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := mock.Texts("x")
	_, err := newRunner(c).Run(ctx, Request{Operation: contract.OpTranslate, Document: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.Count())
}

func TestNilCapability(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background(), Request{Operation: contract.OpTranslate})
	assert.Error(t, err)
}

type recProgress struct {
	start string
	dones []int
	ok    bool
	calls int
}

func (p *recProgress) RunStart(op, llm string, chunks int) { p.start = op + "/" + llm }
func (p *recProgress) ChunkDone(done, total int)          { p.dones = append(p.dones, done) }
func (p *recProgress) RunFinish(ok bool, calls int, _ time.Duration) {
	p.ok, p.calls = ok, calls
}

func TestLoggingAndProgress(t *testing.T) {
	var buf bytes.Buffer
	prog := &recProgress{}
	r := &Runner{
		Capability: mock.Texts("p0", "p1", "F"),
		Logger:     diag.NewLogger("t", "debug", &buf),
		Settings:   DefaultSettings(),
		Progress:   prog,
		LLM:        "mock",
	}
	_, err := r.Run(context.Background(), Request{Operation: contract.OpSummarize, Document: doc(1000)})
	require.NoError(t, err)
	assert.Equal(t, "summarize/mock", prog.start)
	assert.Equal(t, []int{1, 2}, prog.dones)
	assert.True(t, prog.ok)
	assert.Equal(t, 3, prog.calls)
	out := buf.String()
	assert.Contains(t, out, `"comp":"pipeline"`)
	assert.Contains(t, out, `"comp":"merger"`)
	assert.Contains(t, out, `"stage":"finish"`)
}
