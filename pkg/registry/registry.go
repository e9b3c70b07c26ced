package registry

import (
	"context"
	"sort"
	"time"

	"llmseg/pkg/contract"
	gmi "llmseg/plugins/capability/gemini"
	lc "llmseg/plugins/capability/langchain"
	"llmseg/plugins/capability/mock"
	oai "llmseg/plugins/capability/openai"
)

// Options: 各能力实现共用的已解析配置（API Key 已由调用方解析为明文）。
type Options struct {
	BaseURL     string
	Model       string
	APIKey      string
	Timeout     time.Duration
	Temperature *float64
}

// NewCapability 工厂签名。
type NewCapability func(ctx context.Context, o Options) (contract.Capability, error)

// Capability 工厂注册表（显式、零反射）。
var Capability = map[string]NewCapability{
	// openai: 原生 HTTP chat-completions（OpenAI 兼容端点）
	"openai": func(_ context.Context, o Options) (contract.Capability, error) {
		return oai.New(oai.Options{BaseURL: o.BaseURL, Model: o.Model, APIKey: o.APIKey, Timeout: o.Timeout, Temperature: o.Temperature})
	},
	// langchain: 经 langchaingo 的 OpenAI 兼容 LLM
	"langchain": func(_ context.Context, o Options) (contract.Capability, error) {
		return lc.New(lc.Options{BaseURL: o.BaseURL, Model: o.Model, APIKey: o.APIKey, Timeout: o.Timeout, Temperature: o.Temperature})
	},
	// gemini: genai SDK
	"gemini": func(ctx context.Context, o Options) (contract.Capability, error) {
		return gmi.New(ctx, gmi.Options{BaseURL: o.BaseURL, Model: o.Model, APIKey: o.APIKey, Timeout: o.Timeout, Temperature: o.Temperature})
	},
	// mock: 离线回显
	"mock": func(_ context.Context, _ Options) (contract.Capability, error) {
		return mock.New(mock.Options{}), nil
	},
}

// NeedsKey 报告该实现是否要求 API Key。
func NeedsKey(client string) bool { return client != "mock" }

// Names 返回已注册实现名（排序）。
func Names() []string {
	out := make([]string, 0, len(Capability))
	for k := range Capability {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
