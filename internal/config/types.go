package config

// Config: 运行期只读配置（一次解析，运行期不变）。
// YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	Log Log `yaml:"log"`

	// LLM: 选用的 provider 名（Provider 的键）。
	LLM      string              `yaml:"llm"`
	Provider map[string]Provider `yaml:"provider"`

	Translate Translate `yaml:"translate"`
	Summarize Summarize `yaml:"summarize"`
	Extract   Extract   `yaml:"extract"`
}

// Log: 日志等级与可选控制台输出；文件路径与轮转策略为固定默认。
type Log struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Provider: 命名 provider 定义（client 实现 + 连接参数 + 限额）。
type Provider struct {
	Client         string   `yaml:"client"`
	BaseURL        string   `yaml:"base_url"`
	Model          string   `yaml:"model"`
	APIKey         string   `yaml:"api_key"`
	APIKeyEnv      string   `yaml:"api_key_env"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Temperature    *float64 `yaml:"temperature"`
	Limits         Limits   `yaml:"limits"`
}

// Limits: 限流配置（仅承载；执行位于 rate.Gate）。
type Limits struct {
	RPM             int `yaml:"rpm"`
	TPM             int `yaml:"tpm"`
	MaxTokensPerReq int `yaml:"max_tokens_per_req"`
	// BytesPerToken: token 估算的 UTF-8 字节比；0 取默认 4。
	BytesPerToken int `yaml:"bytes_per_token"`
}

type Translate struct {
	Direction string `yaml:"direction"`
	Tone      string `yaml:"tone"`
	ChunkSize int    `yaml:"chunk_size"`
}

type Summarize struct {
	Style     string `yaml:"style"`
	ChunkSize int    `yaml:"chunk_size"`
}

type Extract struct {
	// StrictKeys: nil 表示未设置（合并时不覆盖）。
	StrictKeys *bool `yaml:"strict_keys"`
}
