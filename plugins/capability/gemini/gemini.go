package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"llmseg/pkg/contract"
)

const (
	DefaultModel   = "gemini-2.5-flash"
	DefaultTimeout = 60 * time.Second
)

// Options: Gemini API 最小配置。BaseURL 为空时使用 SDK 默认端点。
type Options struct {
	BaseURL     string
	Model       string
	APIKey      string
	Timeout     time.Duration
	Temperature *float64
}

// Client: 基于 genai SDK 的补全能力。
// system 轮次合并为 SystemInstruction；assistant 轮次映射为 model 角色。
type Client struct {
	client *genai.Client
	model  string
	temp   *float32
}

// New 构造客户端；缺少 API Key 视为配置错误。
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("gemini: %w: missing api key", contract.ErrInvalidConfiguration)
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: opts.Timeout},
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w: %v", contract.ErrInvalidConfiguration, err)
	}
	c := &Client{client: client, model: opts.Model}
	if opts.Temperature != nil {
		t := float32(*opts.Temperature)
		c.temp = &t
	}
	return c, nil
}

// split 将会话拆为 SystemInstruction 与内容序列。
func split(conv contract.Conversation) (*genai.Content, []*genai.Content) {
	var sys []string
	contents := make([]*genai.Content, 0, len(conv))
	for _, t := range conv {
		switch t.Role {
		case contract.RoleSystem:
			sys = append(sys, t.Text)
		case contract.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(t.Text, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(t.Text, genai.RoleUser))
		}
	}
	if len(sys) == 0 {
		return nil, contents
	}
	return genai.NewContentFromText(strings.Join(sys, "\n\n"), genai.RoleUser), contents
}

// Complete 实现 contract.Capability。
func (c *Client) Complete(ctx context.Context, conv contract.Conversation, model string) (string, error) {
	if model == "" {
		model = c.model
	}
	sys, contents := split(conv)
	gc := &genai.GenerateContentConfig{SystemInstruction: sys, Temperature: c.temp}
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, gc)
	if err != nil {
		return "", classify(ctx, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &contract.RemoteError{Status: http.StatusOK, Message: "no candidates"}
	}
	return strings.TrimSpace(resp.Text()), nil
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &contract.TransportError{Op: "gemini", Err: ctx.Err()}
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &contract.RemoteError{Status: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &contract.RemoteError{Status: apiErrPtr.Code, Message: apiErrPtr.Message}
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return &contract.TransportError{Op: "gemini", Err: err}
	}
	return &contract.RemoteError{Message: err.Error()}
}

var _ contract.Capability = (*Client)(nil)
