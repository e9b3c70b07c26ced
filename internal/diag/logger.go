package diag

import (
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"llmseg/pkg/contract"
)

// 默认日志目录与单文件上限。
const (
	DefaultDir      = "logs"
	DefaultMaxBytes = 10 * 1024 * 1024
)

// Logger: 结构化事件日志（单行 JSON）。
// 字段：level/time/corr_id/comp/stage/code/dur_ms/count/msg 以及可选 kv。
// nil *Logger 上的所有方法均为 no-op。
type Logger struct {
	zl     zerolog.Logger
	corrID string
	sink   io.Closer
}

// NewCorrID 生成一次运行的关联 ID。
func NewCorrID() string { return uuid.NewString() }

// NewLogger 以 level 初始化；w 为 nil 时写入 logs/ 下的轮转文件。
func NewLogger(corrID, level string, w io.Writer) *Logger {
	if corrID == "" {
		corrID = NewCorrID()
	}
	var sink io.Closer
	if w == nil {
		rf := NewRotatingFile(DefaultDir, DefaultMaxBytes)
		w, sink = rf, rf
	}
	zl := zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Str("corr_id", corrID).Logger()
	return &Logger{zl: zl, corrID: corrID, sink: sink}
}

// Nop 返回丢弃一切输出的日志器。
func Nop() *Logger { return &Logger{zl: zerolog.Nop()} }

// ParseLevel 解析级别名；未知值回落为 info。
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// CorrID 返回关联 ID。
func (l *Logger) CorrID() string {
	if l == nil {
		return ""
	}
	return l.corrID
}

// Close 关闭自建的文件 sink。
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

func withKV(ev *zerolog.Event, kv map[string]string) *zerolog.Event {
	if len(kv) == 0 {
		return ev
	}
	d := zerolog.Dict()
	for k, v := range kv {
		d = d.Str(k, v)
	}
	return ev.Dict("kv", d)
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWithKV(comp, msg, nil)
}

// StartWithKV 记录带键值的 start。
func (l *Logger) StartWithKV(comp, msg string, kv map[string]string) *Timer {
	if l == nil {
		return nil
	}
	withKV(l.zl.Info().Str("comp", comp).Str("stage", "start"), kv).Msg(msg)
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// Debug 输出调试事件（仅 level=debug 生效）。
func (l *Logger) Debug(comp, msg string, kv map[string]string) {
	if l == nil {
		return
	}
	withKV(l.zl.Debug().Str("comp", comp).Str("stage", "debug"), kv).Msg(msg)
}

// Warn 记录告警（不中断流程）。
func (l *Logger) Warn(comp, msg string, kv map[string]string) {
	if l == nil {
		return
	}
	withKV(l.zl.Warn().Str("comp", comp).Str("stage", "warn"), kv).Msg(msg)
}

// Error 记录 error 事件；code 由 Classify 推导，上游诊断信息并入 kv。
func (l *Logger) Error(comp string, err error, since *time.Time, kv map[string]string) {
	if l == nil {
		return
	}
	ev := l.zl.Error().Str("comp", comp).Str("stage", "error").Str("code", string(Classify(err)))
	if since != nil {
		ev = ev.Int64("dur_ms", time.Since(*since).Milliseconds())
	}
	merged := UpstreamKV(err)
	for k, v := range kv {
		if merged == nil {
			merged = make(map[string]string, len(kv))
		}
		merged[k] = v
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	withKV(ev, merged).Msg(msg)
}

// UpstreamKV 提取上游状态码与消息片段（非上游错误返回 nil）。
func UpstreamKV(err error) map[string]string {
	var ue contract.UpstreamError
	if !errors.As(err, &ue) {
		return nil
	}
	kv := map[string]string{"http_status": strconv.Itoa(ue.UpstreamStatus())}
	if m := ue.UpstreamMessage(); m != "" {
		kv["upstream_msg"] = clip(m, 256)
	}
	return kv
}

func clip(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "…"
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l    *Logger
	comp string
	t0   time.Time
}

// Since 返回起点（供 Error 计算耗时）。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}

// Finish 记录 finish；count 为本阶段处理数量。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.zl.Info().Str("comp", t.comp).Str("stage", "finish").
		Int64("dur_ms", time.Since(t.t0).Milliseconds()).Int64("count", count).Msg(msg)
}

// Fail 以起点计时记录 error。
func (t *Timer) Fail(err error, kv map[string]string) {
	if t == nil || t.l == nil {
		return
	}
	t.l.Error(t.comp, err, &t.t0, kv)
}

// Stderr 返回写往 stderr 的日志器（供配置装配前的早期错误）。
func Stderr(level string) *Logger { return NewLogger("", level, os.Stderr) }
