package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"llmseg/internal/chunker"
	"llmseg/internal/diag"
	"llmseg/internal/extract"
	"llmseg/internal/merge"
	"llmseg/internal/processor"
	"llmseg/internal/prompt"
	"llmseg/internal/style"
	"llmseg/pkg/contract"
)

// - 严格顺序：分块逐个处理，任一时刻至多一个补全调用在途。
// - 先校验后调用：操作、分块长度、翻译方向、单请求预算均在首次调用前检查。
// - 首错即止：任一分块失败则整体失败，不返回部分结果。

// Settings: 请求未指定时采用的默认值。
type Settings struct {
	Direction      string
	Tone           string
	Style          string
	TranslateChunk int
	SummarizeChunk int
	StrictKeys     bool
	Model          string
	// MaxTokensPerReq: 单请求 token 上限；<=0 关闭预检。
	MaxTokensPerReq int
	// BytesPerToken: token 估算的字节比；<=0 取 prompt.DefaultBytesPerToken。
	BytesPerToken int
}

// DefaultSettings 返回内置默认值。
func DefaultSettings() Settings {
	return Settings{
		Direction:      style.DefaultDirection,
		Tone:           style.Tones.Default(),
		Style:          style.SummaryStyles.Default(),
		TranslateChunk: 600,
		SummarizeChunk: 800,
	}
}

// Progress: 可选进度回调（diag.Terminal 实现）。
type Progress interface {
	RunStart(op, llm string, chunks int)
	ChunkDone(done, total int)
	RunFinish(ok bool, calls int, dur time.Duration)
}

// Runner: 编排器。Capability 必填；Logger/Progress 可为空。
type Runner struct {
	Capability contract.Capability
	Logger     *diag.Logger
	Settings   Settings
	Progress   Progress
	// LLM: provider 名，仅用于进度展示。
	LLM string
}

// Request: 一次逻辑请求；空字段取 Settings 中的默认值。
type Request struct {
	Operation contract.Operation
	Document  contract.Document
	Direction string
	Tone      string
	Style     string
	Model     string
	// ChunkSize: nil 表示沿用 Settings；显式给出时必须 > 0。
	ChunkSize *int
	// StrictKeys: nil 表示沿用 Settings。
	StrictKeys *bool
}

// Result: 请求结果与过程计数。
type Result struct {
	Operation  contract.Operation
	Text       string
	Extraction *contract.ExtractionResult
	// Missing/Ignored: 抽取时补 null 的键与被丢弃的多余键。
	Missing []string
	Ignored []string
	Chunks  int
	Calls   int
}

// plan: 校验通过后的执行计划。
type plan struct {
	op          contract.Operation
	model       string
	chunks      []contract.Chunk
	instruction string
	directive   string
	reduceInstr string
	strict      bool
	est         prompt.Estimator
}

func (r *Runner) plan(req Request) (plan, error) {
	s := r.Settings
	p := plan{op: req.Operation, model: firstNonEmpty(req.Model, s.Model)}
	if !req.Operation.Valid() {
		return p, fmt.Errorf("%w: unknown operation %q", contract.ErrInvalidConfiguration, req.Operation)
	}
	text := string(req.Document)
	var size int
	switch req.Operation {
	case contract.OpTranslate:
		dir, err := style.Direction(firstNonEmpty(req.Direction, s.Direction, style.DefaultDirection))
		if err != nil {
			return p, err
		}
		p.instruction = style.Tones.Resolve(firstNonEmpty(req.Tone, s.Tone))
		p.directive = dir
		size = s.TranslateChunk
	case contract.OpSummarize:
		id := firstNonEmpty(req.Style, s.Style)
		p.instruction = style.SummaryStyles.Resolve(id)
		p.directive = style.SummaryDirective
		p.reduceInstr = style.ReduceStyles.Resolve(id)
		size = s.SummarizeChunk
	case contract.OpExtract:
		p.strict = s.StrictKeys
		if req.StrictKeys != nil {
			p.strict = *req.StrictKeys
		}
		// 抽取作用于整篇文档，不分块
		return p, nil
	}
	if req.ChunkSize != nil {
		if *req.ChunkSize <= 0 {
			return p, fmt.Errorf("%w: chunk size %d must be > 0", contract.ErrInvalidConfiguration, *req.ChunkSize)
		}
		size = *req.ChunkSize
	}
	chunks, err := chunker.Split(text, size)
	if err != nil {
		return p, err
	}
	p.est = prompt.MakeEstimator(s.BytesPerToken)
	for _, c := range chunks {
		if err := prompt.CheckBudget(processor.Conversation(p.instruction, p.directive, c.Text), p.est, s.MaxTokensPerReq); err != nil {
			// 分块本身超限：属于配置问题
			return p, fmt.Errorf("chunk %d: %w: %w", c.Index, contract.ErrInvalidConfiguration, err)
		}
	}
	p.chunks = chunks
	return p, nil
}

// Run 执行请求。
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	res := Result{Operation: req.Operation}
	if r.Capability == nil {
		return res, errors.New("pipeline: nil capability")
	}
	t0 := time.Now()
	tm := r.Logger.StartWithKV("pipeline", "run", map[string]string{"op": string(req.Operation)})
	p, err := r.plan(req)
	if err != nil {
		tm.Fail(err, nil)
		return res, err
	}
	res.Chunks = len(p.chunks)
	if r.Progress != nil {
		planned := res.Chunks
		if p.op == contract.OpExtract {
			planned = 1
		}
		r.Progress.RunStart(string(p.op), r.LLM, planned)
	}

	switch p.op {
	case contract.OpExtract:
		err = r.runExtract(ctx, p, string(req.Document), &res)
	case contract.OpTranslate:
		err = r.runTranslate(ctx, p, &res)
	case contract.OpSummarize:
		err = r.runSummarize(ctx, p, &res)
	}
	if r.Progress != nil {
		r.Progress.RunFinish(err == nil, res.Calls, time.Since(t0))
	}
	if err != nil {
		tm.Fail(err, map[string]string{"op": string(p.op), "calls": strconv.Itoa(res.Calls)})
		// 失败时不返回部分结果，仅保留计数
		return Result{Operation: res.Operation, Chunks: res.Chunks, Calls: res.Calls}, err
	}
	tm.Finish("run", int64(res.Calls))
	return res, nil
}

// mapChunks 逐块调用处理器；返回按块序的部分结果。
func (r *Runner) mapChunks(ctx context.Context, p plan, res *Result) ([]contract.PartialResult, error) {
	proc := processor.New(r.Capability, p.model)
	partials := make([]contract.PartialResult, 0, len(p.chunks))
	for _, c := range p.chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ct := time.Now()
		pr, err := proc.Process(ctx, c, p.instruction, p.directive)
		if !errors.Is(err, contract.ErrOverBudget) {
			res.Calls++
		}
		if err != nil {
			r.Logger.Error("processor", err, &ct, map[string]string{"chunk": strconv.Itoa(c.Index)})
			return nil, err
		}
		r.Logger.Debug("processor", "chunk done", map[string]string{
			"chunk":  strconv.Itoa(c.Index),
			"dur_ms": strconv.FormatInt(time.Since(ct).Milliseconds(), 10),
		})
		partials = append(partials, pr)
		if r.Progress != nil {
			r.Progress.ChunkDone(len(partials), len(p.chunks))
		}
	}
	return partials, nil
}

func (r *Runner) runTranslate(ctx context.Context, p plan, res *Result) error {
	partials, err := r.mapChunks(ctx, p, res)
	if err != nil {
		return err
	}
	out, err := merge.Concat(partials)
	if err != nil {
		return err
	}
	res.Text = out
	return nil
}

func (r *Runner) runSummarize(ctx context.Context, p plan, res *Result) error {
	partials, err := r.mapChunks(ctx, p, res)
	if err != nil {
		return err
	}
	tm := r.Logger.StartWithKV("merger", "reduce", map[string]string{"partials": strconv.Itoa(len(partials))})
	red := &merge.Reducer{Capability: r.Capability, Model: p.model}
	if limit := r.Settings.MaxTokensPerReq; limit > 0 {
		// 合并会话在分块完成后才可检查
		red.Budget = func(conv contract.Conversation) error {
			return prompt.CheckBudget(conv, p.est, limit)
		}
	}
	out, calls, err := red.Reduce(ctx, partials, p.reduceInstr, style.ReduceDirective)
	res.Calls += calls
	if err != nil {
		tm.Fail(err, nil)
		return err
	}
	tm.Finish("reduce", int64(calls))
	res.Text = out
	return nil
}

func (r *Runner) runExtract(ctx context.Context, p plan, text string, res *Result) error {
	schema, err := extract.NewSchema(p.strict)
	if err != nil {
		return err
	}
	out, err := extract.New(r.Capability, p.model, schema).Extract(ctx, text)
	res.Calls += out.Calls
	if err != nil {
		return err
	}
	if out.Calls > 1 {
		r.Logger.Warn("extractor", "corrective retry used", map[string]string{"calls": strconv.Itoa(out.Calls)})
	}
	if len(out.Ignored) > 0 {
		r.Logger.Debug("extractor", "ignored keys", map[string]string{"keys": fmt.Sprint(out.Ignored)})
	}
	v := out.Value
	res.Extraction = &v
	res.Missing, res.Ignored = out.Missing, out.Ignored
	res.Chunks = 1
	if r.Progress != nil {
		r.Progress.ChunkDone(1, 1)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
