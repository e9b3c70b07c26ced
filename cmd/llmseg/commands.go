package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"llmseg/internal/config"
	"llmseg/internal/pipeline"
	"llmseg/internal/session"
	"llmseg/internal/style"
	"llmseg/pkg/contract"
)

// opFlags: 单次请求的 CLI 参数；零值表示沿用配置。
type opFlags struct {
	text        string
	direction   string
	tone        string
	style       string
	model       string
	chunkSize   int
	strictKeys  bool
	interactive bool
}

func (c *cli) opCmd(op contract.Operation, short string) *cobra.Command {
	var f opFlags
	cmd := &cobra.Command{
		Use:   string(op) + " [text|-]",
		Short: short,
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := pipeline.Request{
				Operation: op,
				Direction: f.direction,
				Tone:      f.tone,
				Style:     f.style,
				Model:     f.model,
			}
			if cmd.Flags().Changed("chunk-size") {
				v := f.chunkSize
				req.ChunkSize = &v
			}
			if cmd.Flags().Changed("strict-keys") {
				v := f.strictKeys
				req.StrictKeys = &v
			}
			return c.runOp(cmd.Context(), req, f, args)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.text, "text", "t", "", "输入文本；缺省取位置参数，再缺省读 stdin")
	fl.StringVar(&f.model, "model", "", "覆盖 provider 的模型名")
	fl.BoolVarP(&f.interactive, "interactive", "i", false, "交互模式（stdin 逐行）")
	switch op {
	case contract.OpTranslate:
		fl.StringVarP(&f.direction, "direction", "d", "", "翻译方向 "+strings.Join(style.Directions(), "|"))
		fl.StringVar(&f.tone, "tone", "", "语气 "+strings.Join(style.Tones.Keys(), "|"))
		fl.IntVar(&f.chunkSize, "chunk-size", 0, "分块长度（字符）")
	case contract.OpSummarize:
		fl.StringVarP(&f.style, "style", "s", "", "摘要风格 "+strings.Join(style.SummaryStyles.Keys(), "|"))
		fl.IntVar(&f.chunkSize, "chunk-size", 0, "分块长度（字符）")
	case contract.OpExtract:
		fl.BoolVar(&f.strictKeys, "strict-keys", false, "要求回复恰好包含全部键")
	}
	return cmd
}

func (c *cli) runOp(ctx context.Context, req pipeline.Request, f opFlags, args []string) error {
	if f.interactive && (f.text != "" || len(args) > 0) {
		return fmt.Errorf("%w: --interactive 不能与 --text 或位置参数同时使用", contract.ErrInvalidConfiguration)
	}
	var text string
	if !f.interactive {
		var err error
		if text, err = c.input(f.text, args); err != nil {
			return err
		}
	}
	rt, err := c.setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	if f.interactive {
		return c.interactive(ctx, rt, req)
	}

	start := time.Now()
	req.Document = contract.Document(text)
	res, err := rt.runner.Run(ctx, req)
	if err != nil {
		rt.logger.Error("cli", err, &start, map[string]string{"op": string(req.Operation)})
		return err
	}
	out, err := render(res)
	if err != nil {
		return err
	}
	fprintf(c.out, "%s\n", out)
	return nil
}

// input 解析一次性输入：--text 优先，其次位置参数，"-" 或缺省读 stdin。
func (c *cli) input(text string, args []string) (string, error) {
	if text != "" && len(args) > 0 {
		return "", fmt.Errorf("%w: --text 与位置参数只能二选一", contract.ErrInvalidConfiguration)
	}
	if text != "" {
		return text, nil
	}
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(c.in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// render 将结果格式化为输出文本；抽取输出为 JSON。
func render(res pipeline.Result) (string, error) {
	if res.Operation != contract.OpExtract {
		return res.Text, nil
	}
	var v contract.ExtractionResult
	if res.Extraction != nil {
		v = *res.Extraction
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// interactive 运行 REPL：摘要为缓冲模式，其余为逐行模式。
func (c *cli) interactive(ctx context.Context, rt *runtime, req pipeline.Request) error {
	mode := session.Line
	hint := "逐行输入文本；空行或 exit 退出。"
	if req.Operation == contract.OpSummarize {
		mode = session.Buffer
		hint = "输入多行文本，空行提交；exit 退出。"
	}
	sess := session.New(mode, func(ctx context.Context, text string) (string, error) {
		r := req
		r.Document = contract.Document(text)
		res, err := rt.runner.Run(ctx, r)
		if err != nil {
			return "", err
		}
		return render(res)
	})
	defer sess.Close()

	fprintf(c.errOut, "%s\n", hint)
	sc := bufio.NewScanner(c.in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for !sess.Terminated() && sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, ok, err := sess.Submit(ctx, sc.Text())
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) {
				return err
			}
			rt.logger.Error("session", err, nil, map[string]string{"op": string(req.Operation)})
			fprintf(c.errOut, "请求失败: %v\n", err)
		case ok:
			fprintf(c.out, "%s\n", out)
		}
	}
	return sc.Err()
}

func (c *cli) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path|-]",
		Short: "写出配置模板（不覆盖已有文件）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := config.DefaultFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "-" {
				_, err := io.WriteString(c.out, config.Template)
				return err
			}
			if err := config.WriteTemplate(path); err != nil {
				if errors.Is(err, fs.ErrExist) {
					return fmt.Errorf("%w: %w", contract.ErrInvalidConfiguration, err)
				}
				return err
			}
			fprintf(c.errOut, "已生成配置模板: %s\n", path)
			return nil
		},
	}
}

func (c *cli) stylesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "列出可用的语气、摘要风格与翻译方向",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			for _, t := range []*style.Table{style.Tones, style.SummaryStyles} {
				fprintf(c.out, "%s: %s (默认 %s)\n", t.Name(), strings.Join(t.Keys(), ", "), t.Default())
			}
			fprintf(c.out, "direction: %s (默认 %s)\n", strings.Join(style.Directions(), ", "), style.DefaultDirection)
			return nil
		},
	}
}
