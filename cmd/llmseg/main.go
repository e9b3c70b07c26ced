package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"llmseg/internal/config"
	"llmseg/internal/diag"
	"llmseg/internal/pipeline"
	"llmseg/pkg/contract"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// cli: 一次进程调用的共享状态。
type cli struct {
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	getenv  func(string) string
	environ []string
	// logSink: 非 nil 时替代 logs/ 下的轮转文件。
	logSink io.Writer

	configPath string
	llm        string
	logLevel   string
	status     bool
	showConfig bool
}

func run(args []string, in io.Reader, out, errOut io.Writer) int {
	c := &cli{in: in, out: out, errOut: errOut, getenv: os.Getenv, environ: os.Environ()}
	return c.execute(args)
}

func (c *cli) execute(args []string) int {
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := root.ExecuteContext(ctx)
	if err == nil {
		return diag.ExitOK
	}
	if !errors.Is(err, context.Canceled) {
		fprintf(c.errOut, "运行失败: %v\n", err)
	}
	return diag.ExitCode(err)
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "llmseg",
		Short:         "分段 map-reduce 文本处理：翻译、摘要、结构化抽取",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	// 参数错误归为配置错误（退出码 3）
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", contract.ErrInvalidConfiguration, err)
	})
	pf := root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "", "YAML 配置文件（缺省读 "+config.EnvPrefix+"CONFIG_FILE，其次 ./"+config.DefaultFile+"）")
	pf.StringVar(&c.llm, "llm", "", "选用的 provider 名")
	pf.StringVar(&c.logLevel, "log-level", "", "日志级别 debug|info|warn|error")
	pf.BoolVar(&c.status, "status", false, "在 stderr 显示分块进度")
	pf.BoolVar(&c.showConfig, "show-config", false, "打印生效配置（密钥脱敏）")

	root.AddCommand(
		c.opCmd(contract.OpTranslate, "按语气与方向翻译文本"),
		c.opCmd(contract.OpSummarize, "分块摘要并合并"),
		c.opCmd(contract.OpExtract, "抽取 person/company/date/location 为 JSON"),
		c.initCmd(),
		c.stylesCmd(),
	)
	return root
}

// loadConfig 按 Defaults → 文件 → 环境变量 → CLI 的顺序合并配置。
func (c *cli) loadConfig() (config.Config, error) {
	cfg := config.Defaults()
	path := strings.TrimSpace(c.configPath)
	if path == "" {
		path = strings.TrimSpace(c.getenv(config.EnvPrefix + "CONFIG_FILE"))
	}
	if path == "" {
		if st, err := os.Stat(config.DefaultFile); err == nil && !st.IsDir() {
			path = config.DefaultFile
		}
	}
	if path != "" {
		file, err := config.LoadYAML(path, nil)
		if err != nil {
			return cfg, fmt.Errorf("%w: %w", contract.ErrInvalidConfiguration, err)
		}
		cfg = config.Merge(cfg, file)
	}
	env, err := config.EnvOverlay(c.environ)
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", contract.ErrInvalidConfiguration, err)
	}
	cfg = config.Merge(cfg, env)
	cfg = config.Merge(cfg, config.Config{LLM: c.llm, Log: config.Log{Level: c.logLevel}})
	return cfg, nil
}

// newLogger 构造运行期日志器；返回的函数负责关闭文件 sink。
func (c *cli) newLogger(l config.Log) (*diag.Logger, func()) {
	sink := c.logSink
	var rf *diag.RotatingFile
	if sink == nil {
		rf = diag.NewRotatingFile(diag.DefaultDir, diag.DefaultMaxBytes)
		sink = rf
	}
	if l.Console {
		sink = zerolog.MultiLevelWriter(sink, zerolog.ConsoleWriter{Out: c.errOut, NoColor: true, TimeFormat: time.TimeOnly})
	}
	logger := diag.NewLogger(diag.NewCorrID(), l.Level, sink)
	return logger, func() {
		if rf != nil {
			_ = rf.Close()
		}
	}
}

// runtime: 装配完成的执行环境。
type runtime struct {
	runner *pipeline.Runner
	logger *diag.Logger
	close  func()
}

func (c *cli) setup(ctx context.Context) (*runtime, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, closeLog := c.newLogger(cfg.Log)
	if c.showConfig {
		if err := c.dumpConfig(cfg); err != nil {
			closeLog()
			return nil, err
		}
	}
	asm, err := config.Assemble(ctx, cfg, c.getenv)
	if err != nil {
		logger.Error("config", err, nil, nil)
		closeLog()
		return nil, err
	}
	logger.Debug("config", "effective", map[string]string{
		"llm":       cfg.LLM,
		"client":    asm.Client,
		"model":     asm.Settings.Model,
		"limit_key": string(asm.Key),
	})
	return &runtime{
		runner: &pipeline.Runner{
			Capability: asm.Capability,
			Logger:     logger,
			Settings:   asm.Settings,
			Progress:   diag.NewTerminal(c.errOut, c.status),
			LLM:        cfg.LLM,
		},
		logger: logger,
		close:  closeLog,
	}, nil
}

// dumpConfig 以 YAML 打印生效配置；api_key 脱敏。
func (c *cli) dumpConfig(cfg config.Config) error {
	if len(cfg.Provider) > 0 {
		prov := make(map[string]config.Provider, len(cfg.Provider))
		for k, p := range cfg.Provider {
			if p.APIKey != "" {
				p.APIKey = "***"
			}
			prov[k] = p
		}
		cfg.Provider = prov
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fprintf(c.errOut, "有效配置:\n%s", b)
	return nil
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }
