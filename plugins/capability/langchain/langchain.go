package langchain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"llmseg/pkg/contract"
)

// 默认值与 openai 插件一致（SiliconFlow 兼容端点）。
const (
	DefaultBaseURL = "https://api.siliconflow.cn/v1"
	DefaultModel   = "Qwen/Qwen2.5-7B-Instruct"
	DefaultTimeout = 60 * time.Second
)

// Options: langchaingo OpenAI 兼容 LLM 的最小配置。
type Options struct {
	BaseURL     string
	Model       string
	APIKey      string
	Timeout     time.Duration
	Temperature *float64
}

// Client: 经 langchaingo 的 OpenAI 兼容补全能力。
type Client struct {
	llm   llms.Model
	model string
	temp  *float64
}

// New 构造客户端；缺少 API Key 视为配置错误。
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	key := strings.TrimPrefix(strings.TrimSpace(opts.APIKey), "Bearer ")
	if key == "" {
		return nil, fmt.Errorf("langchain: %w: missing api key", contract.ErrInvalidConfiguration)
	}
	llm, err := openai.New(
		openai.WithBaseURL(opts.BaseURL),
		openai.WithToken(key),
		openai.WithModel(opts.Model),
		openai.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("langchain: %w: %v", contract.ErrInvalidConfiguration, err)
	}
	return &Client{llm: llm, model: opts.Model, temp: opts.Temperature}, nil
}

func messageType(r contract.Role) llms.ChatMessageType {
	switch r {
	case contract.RoleSystem:
		return llms.ChatMessageTypeSystem
	case contract.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// Complete 实现 contract.Capability。
func (c *Client) Complete(ctx context.Context, conv contract.Conversation, model string) (string, error) {
	if model == "" {
		model = c.model
	}
	msgs := make([]llms.MessageContent, 0, len(conv))
	for _, t := range conv {
		msgs = append(msgs, llms.TextParts(messageType(t.Role), t.Text))
	}
	callOpts := []llms.CallOption{llms.WithModel(model)}
	if c.temp != nil {
		callOpts = append(callOpts, llms.WithTemperature(*c.temp))
	}
	resp, err := c.llm.GenerateContent(ctx, msgs, callOpts...)
	if err != nil {
		return "", classify(ctx, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &contract.RemoteError{Status: http.StatusOK, Message: "no choices"}
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

var statusRe = regexp.MustCompile(`status code: (\d{3})`)

// classify 将 langchaingo 的错误映射为传输/上游错误。
// langchaingo 不暴露状态码类型，上游状态只能从错误文本中取得。
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &contract.TransportError{Op: "langchain", Err: ctx.Err()}
	}
	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, context.DeadlineExceeded) {
		return &contract.TransportError{Op: "langchain", Err: err}
	}
	if m := statusRe.FindStringSubmatch(err.Error()); m != nil {
		status, _ := strconv.Atoi(m[1])
		return &contract.RemoteError{Status: status, Message: err.Error()}
	}
	return &contract.TransportError{Op: "langchain", Err: err}
}

var _ contract.Capability = (*Client)(nil)
