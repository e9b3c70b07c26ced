package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"llmseg/pkg/contract"
)

// 默认端点与模型（OpenAI 兼容的 SiliconFlow 服务）。
const (
	DefaultBaseURL = "https://api.siliconflow.cn/v1"
	DefaultModel   = "Qwen/Qwen2.5-7B-Instruct"
	DefaultTimeout = 60 * time.Second
)

// Options: 最小必需配置；API Key 由调用方显式传入。
type Options struct {
	BaseURL     string
	Model       string
	APIKey      string
	Timeout     time.Duration
	Temperature *float64
	// EndpointPath 覆盖默认 /chat/completions；可为完整 URL。
	EndpointPath string
	// ExtraHeaders 追加/覆盖请求头（Azure/OpenRouter 等兼容服务）。
	ExtraHeaders map[string]string
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/chat/completions"
	}
}

// Client: chat-completions 的原生 HTTP 实现（非流式）。
type Client struct {
	url    string
	apiKey string
	model  string
	temp   *float64
	extraH map[string]string
	do     func(*http.Request) (*http.Response, error)
}

// New 构造客户端；缺少 API Key 视为配置错误。
func New(opts Options) (*Client, error) {
	opts.defaults()
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("openai: %w: missing api key", contract.ErrInvalidConfiguration)
	}
	hc := &http.Client{Timeout: opts.Timeout}
	full := opts.EndpointPath
	if !strings.HasPrefix(full, "http://") && !strings.HasPrefix(full, "https://") {
		full = strings.TrimRight(opts.BaseURL, "/") + "/" + strings.TrimLeft(opts.EndpointPath, "/")
	}
	return &Client{
		url:    full,
		apiKey: opts.APIKey,
		model:  opts.Model,
		temp:   opts.Temperature,
		extraH: opts.ExtraHeaders,
		do:     hc.Do,
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete 实现 contract.Capability；model 为空时使用默认模型。回复去除首尾空白。
func (c *Client) Complete(ctx context.Context, conv contract.Conversation, model string) (string, error) {
	if model == "" {
		model = c.model
	}
	req := request{Model: model, Temperature: c.temp, Messages: make([]message, 0, len(conv))}
	for _, t := range conv {
		req.Messages = append(req.Messages, message{Role: string(t.Role), Content: t.Text})
	}
	body, err := json.Marshal(&req)
	if err != nil {
		return "", fmt.Errorf("openai encode: %w", err)
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai: %w: %v", contract.ErrInvalidConfiguration, err)
	}
	hr.Header.Set("Authorization", "Bearer "+c.apiKey)
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Accept", "application/json")
	for k, v := range c.extraH {
		if k != "" {
			hr.Header.Set(k, v)
		}
	}

	resp, err := c.do(hr)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return "", &contract.TransportError{Op: "openai post", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		// 读取少量响应体辅助定位
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", &contract.RemoteError{Status: resp.StatusCode, Message: strings.TrimSpace(string(slurp))}
	}
	var or response
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		var ne interface{ Timeout() bool }
		if errors.As(err, &ne) && ne.Timeout() {
			return "", &contract.TransportError{Op: "openai read", Err: err}
		}
		return "", &contract.RemoteError{Status: resp.StatusCode, Message: "malformed body: " + err.Error()}
	}
	if len(or.Choices) == 0 {
		return "", &contract.RemoteError{Status: resp.StatusCode, Message: "no choices"}
	}
	return strings.TrimSpace(or.Choices[0].Message.Content), nil
}

var _ contract.Capability = (*Client)(nil)
