package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// DefaultFile: init-config 写出的默认文件名。
const DefaultFile = "llmseg.yaml"

// Template: 可运行的默认配置模板（离线默认 mock；切换 llm 即可使用真实服务）。
const Template = `# llmseg 配置模板
log:
  level: info        # debug|info|warn|error
  console: false     # 同时输出到 stderr

# 选用的 provider（下方 provider 的键）
llm: mock

provider:
  mock:
    client: mock
  siliconflow:
    client: openai                  # openai|langchain|gemini|mock
    base_url: https://api.siliconflow.cn/v1
    model: Qwen/Qwen2.5-7B-Instruct
    api_key_env: SILICONFLOW_API_KEY
    timeout_seconds: 60
    limits:
      rpm: 0
      tpm: 0
      max_tokens_per_req: 0
      bytes_per_token: 0            # token 估算字节比；0 取默认 4
  gemini:
    client: gemini
    model: gemini-2.5-flash
    api_key_env: GOOGLE_API_KEY
    timeout_seconds: 60

translate:
  direction: zh2en   # zh2en|en2zh
  tone: formal       # formal|informal|friendly|academic
  chunk_size: 600

summarize:
  style: concise     # concise|detailed|bullet
  chunk_size: 800

extract:
  strict_keys: false
`

// WriteTemplate 写出模板；目标已存在时不覆盖并返回 fs.ErrExist。
func WriteTemplate(path string) error {
	if path == "" {
		path = DefaultFile
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s already exists: %w", path, fs.ErrExist)
		}
		return err
	}
	if _, err := f.WriteString(Template); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
