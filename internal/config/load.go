package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"llmseg/internal/style"
	"llmseg/plugins/capability/openai"
)

// EnvPrefix: 环境变量覆盖前缀。
const EnvPrefix = "LLMSEG_"

// Defaults 返回带有安全默认值的 Config。
// 默认 provider 为 siliconflow（OpenAI 兼容），另含离线 mock。
func Defaults() Config {
	strict := false
	return Config{
		Log: Log{Level: "info"},
		LLM: "siliconflow",
		Provider: map[string]Provider{
			"siliconflow": {
				Client:         "openai",
				BaseURL:        openai.DefaultBaseURL,
				Model:          openai.DefaultModel,
				APIKeyEnv:      "SILICONFLOW_API_KEY",
				TimeoutSeconds: 60,
			},
			"mock": {Client: "mock"},
		},
		Translate: Translate{Direction: style.DefaultDirection, Tone: style.Tones.Default(), ChunkSize: 600},
		Summarize: Summarize{Style: style.SummaryStyles.Default(), ChunkSize: 800},
		Extract:   Extract{StrictKeys: &strict},
	}
}

// LoadYAML 从文件路径或原始 YAML 解析 Config（严格拒绝未知字段）。
// 空文档返回零值 Config。
func LoadYAML(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Merge 按优先级合并（over 覆盖 base）。
// 仅非零值覆盖；provider 按键逐字段合并。
func Merge(base, over Config) Config {
	out := base
	out.Log.Level = pick(out.Log.Level, over.Log.Level)
	if over.Log.Console {
		out.Log.Console = true
	}
	out.LLM = pick(out.LLM, over.LLM)

	if len(base.Provider) > 0 || len(over.Provider) > 0 {
		out.Provider = make(map[string]Provider, len(base.Provider)+len(over.Provider))
		for k, v := range base.Provider {
			out.Provider[k] = v
		}
		for k, v := range over.Provider {
			out.Provider[k] = mergeProvider(out.Provider[k], v)
		}
	}

	out.Translate.Direction = pick(out.Translate.Direction, over.Translate.Direction)
	out.Translate.Tone = pick(out.Translate.Tone, over.Translate.Tone)
	if over.Translate.ChunkSize != 0 {
		out.Translate.ChunkSize = over.Translate.ChunkSize
	}
	out.Summarize.Style = pick(out.Summarize.Style, over.Summarize.Style)
	if over.Summarize.ChunkSize != 0 {
		out.Summarize.ChunkSize = over.Summarize.ChunkSize
	}
	if over.Extract.StrictKeys != nil {
		v := *over.Extract.StrictKeys
		out.Extract.StrictKeys = &v
	}
	return out
}

func mergeProvider(base, over Provider) Provider {
	out := base
	out.Client = pick(out.Client, over.Client)
	out.BaseURL = pick(out.BaseURL, over.BaseURL)
	out.Model = pick(out.Model, over.Model)
	out.APIKey = pick(out.APIKey, over.APIKey)
	out.APIKeyEnv = pick(out.APIKeyEnv, over.APIKeyEnv)
	if over.TimeoutSeconds != 0 {
		out.TimeoutSeconds = over.TimeoutSeconds
	}
	if over.Temperature != nil {
		v := *over.Temperature
		out.Temperature = &v
	}
	if over.Limits.RPM != 0 {
		out.Limits.RPM = over.Limits.RPM
	}
	if over.Limits.TPM != 0 {
		out.Limits.TPM = over.Limits.TPM
	}
	if over.Limits.MaxTokensPerReq != 0 {
		out.Limits.MaxTokensPerReq = over.Limits.MaxTokensPerReq
	}
	if over.Limits.BytesPerToken != 0 {
		out.Limits.BytesPerToken = over.Limits.BytesPerToken
	}
	return out
}

func pick(cur, over string) string {
	if t := strings.TrimSpace(over); t != "" {
		return t
	}
	return cur
}

// EnvOverlay 从环境变量构建 Config 覆盖（仅解析有限键集合）。
// 支持：LOG_LEVEL, LLM, TRANSLATE_{DIRECTION,TONE,CHUNK_SIZE}, SUMMARIZE_{STYLE,CHUNK_SIZE},
// EXTRACT_STRICT_KEYS，以及 PROVIDER__<name>__{CLIENT,BASE_URL,MODEL,API_KEY,API_KEY_ENV,
// TIMEOUT_SECONDS,TEMPERATURE,LIMITS_RPM,LIMITS_TPM,LIMITS_MAX_TOKENS_PER_REQ,LIMITS_BYTES_PER_TOKEN}。
// 数值解析失败返回错误。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	prov := map[string]Provider{}
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		nk := strings.TrimPrefix(key, EnvPrefix)
		var err error
		switch nk {
		case "LOG_LEVEL":
			over.Log.Level = strings.TrimSpace(val)
		case "LLM":
			over.LLM = strings.TrimSpace(val)
		case "TRANSLATE_DIRECTION":
			over.Translate.Direction = strings.TrimSpace(val)
		case "TRANSLATE_TONE":
			over.Translate.Tone = strings.TrimSpace(val)
		case "TRANSLATE_CHUNK_SIZE":
			over.Translate.ChunkSize, err = atoi(val)
		case "SUMMARIZE_STYLE":
			over.Summarize.Style = strings.TrimSpace(val)
		case "SUMMARIZE_CHUNK_SIZE":
			over.Summarize.ChunkSize, err = atoi(val)
		case "EXTRACT_STRICT_KEYS":
			var b bool
			if b, err = strconv.ParseBool(strings.TrimSpace(val)); err == nil {
				over.Extract.StrictKeys = &b
			}
		default:
			if strings.HasPrefix(nk, "PROVIDER__") {
				err = envProvider(prov, strings.TrimPrefix(nk, "PROVIDER__"), val)
			}
		}
		if err != nil {
			return Config{}, fmt.Errorf("env %s: %w", key, err)
		}
	}
	if len(prov) > 0 {
		over.Provider = prov
	}
	return over, nil
}

// envProvider 处理 <name>__<FIELD>；空值视为未设置，避免清空文件配置。
func envProvider(prov map[string]Provider, rest, val string) error {
	name, field, ok := strings.Cut(rest, "__")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.TrimSpace(val) == "" {
		return nil
	}
	p := prov[name]
	v := strings.TrimSpace(val)
	var err error
	switch field {
	case "CLIENT":
		p.Client = v
	case "BASE_URL":
		p.BaseURL = v
	case "MODEL":
		p.Model = v
	case "API_KEY":
		p.APIKey = v
	case "API_KEY_ENV":
		p.APIKeyEnv = v
	case "TIMEOUT_SECONDS":
		p.TimeoutSeconds, err = atoi(v)
	case "TEMPERATURE":
		var f float64
		if f, err = strconv.ParseFloat(v, 64); err == nil {
			p.Temperature = &f
		}
	case "LIMITS_RPM":
		p.Limits.RPM, err = atoi(v)
	case "LIMITS_TPM":
		p.Limits.TPM, err = atoi(v)
	case "LIMITS_MAX_TOKENS_PER_REQ":
		p.Limits.MaxTokensPerReq, err = atoi(v)
	case "LIMITS_BYTES_PER_TOKEN":
		p.Limits.BytesPerToken, err = atoi(v)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	prov[name] = p
	return nil
}

func atoi(s string) (int, error) { return strconv.Atoi(strings.TrimSpace(s)) }
