package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"llmseg/internal/pipeline"
	"llmseg/internal/rate"
	"llmseg/internal/style"
	"llmseg/pkg/contract"
	"llmseg/pkg/registry"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("config: %w: %s", contract.ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// ResolveKey 返回 provider 的 API Key：显式 api_key 优先，其次 api_key_env 指向的环境变量。
func ResolveKey(p Provider, getenv func(string) string) string {
	if k := strings.TrimSpace(p.APIKey); k != "" {
		return k
	}
	if p.APIKeyEnv != "" && getenv != nil {
		return strings.TrimSpace(getenv(p.APIKeyEnv))
	}
	return ""
}

// Validate 对配置做静态校验；所有错误均为 ErrInvalidConfiguration。
func Validate(cfg Config, getenv func(string) string) error {
	if cfg.LLM == "" {
		return invalid("llm not set")
	}
	prov, ok := cfg.Provider[cfg.LLM]
	if !ok {
		return invalid("provider %q not found", cfg.LLM)
	}
	if prov.Client == "" {
		return invalid("provider %q missing client", cfg.LLM)
	}
	if registry.Capability[prov.Client] == nil {
		return invalid("client %q not registered (known: %s)", prov.Client, strings.Join(registry.Names(), ", "))
	}
	if registry.NeedsKey(prov.Client) && ResolveKey(prov, getenv) == "" {
		return invalid("provider %q: api key missing (set api_key or %s)", cfg.LLM, envName(prov))
	}
	if prov.TimeoutSeconds < 0 {
		return invalid("provider %q: timeout_seconds must be >= 0", cfg.LLM)
	}
	if l := prov.Limits; l.RPM < 0 || l.TPM < 0 || l.MaxTokensPerReq < 0 || l.BytesPerToken < 0 {
		return invalid("provider %q: limits must be >= 0", cfg.LLM)
	}
	if cfg.Translate.ChunkSize <= 0 {
		return invalid("translate.chunk_size must be > 0")
	}
	if cfg.Summarize.ChunkSize <= 0 {
		return invalid("summarize.chunk_size must be > 0")
	}
	if _, err := style.Direction(cfg.Translate.Direction); err != nil {
		return fmt.Errorf("config: translate.direction: %w", err)
	}
	return nil
}

func envName(p Provider) string {
	if p.APIKeyEnv != "" {
		return p.APIKeyEnv
	}
	return "api_key_env"
}

// Assembly: 装配结果。
type Assembly struct {
	Capability contract.Capability
	Settings   pipeline.Settings
	// Client: 实现名；Key: 限流分组键。
	Client string
	Key    rate.LimitKey
}

// Assemble 校验配置并构造能力实例（含可选限流装饰）与编排默认值。
// getenv 为 nil 时使用 os.Getenv。
func Assemble(ctx context.Context, cfg Config, getenv func(string) string) (Assembly, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := Validate(cfg, getenv); err != nil {
		return Assembly{}, err
	}
	prov := cfg.Provider[cfg.LLM]
	key := ResolveKey(prov, getenv)
	capa, err := registry.Capability[prov.Client](ctx, registry.Options{
		BaseURL:     prov.BaseURL,
		Model:       prov.Model,
		APIKey:      key,
		Timeout:     time.Duration(prov.TimeoutSeconds) * time.Second,
		Temperature: prov.Temperature,
	})
	if err != nil {
		return Assembly{}, err
	}

	lk := rate.KeyFor(prov.Client, key)
	if l := prov.Limits; l.RPM > 0 || l.TPM > 0 || l.MaxTokensPerReq > 0 {
		gate := rate.NewGate(map[rate.LimitKey]rate.Limits{
			lk: {RPM: l.RPM, TPM: l.TPM, MaxTokensPerReq: l.MaxTokensPerReq},
		}, nil)
		capa = &rate.Gated{Next: capa, Gate: gate, Key: lk, BytesPerToken: l.BytesPerToken}
	}

	set := pipeline.Settings{
		Direction:       cfg.Translate.Direction,
		Tone:            cfg.Translate.Tone,
		Style:           cfg.Summarize.Style,
		TranslateChunk:  cfg.Translate.ChunkSize,
		SummarizeChunk:  cfg.Summarize.ChunkSize,
		Model:           prov.Model,
		MaxTokensPerReq: prov.Limits.MaxTokensPerReq,
		BytesPerToken:   prov.Limits.BytesPerToken,
	}
	if cfg.Extract.StrictKeys != nil {
		set.StrictKeys = *cfg.Extract.StrictKeys
	}
	return Assembly{Capability: capa, Settings: set, Client: prov.Client, Key: lk}, nil
}
