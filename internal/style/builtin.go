package style

import (
	"fmt"

	"llmseg/pkg/contract"
)

// Tones: 翻译语气。默认 formal。
var Tones = MustTable("tone", "formal", map[string]string{
	"formal":   "You are a professional translator. Translate accurately with a formal tone.",
	"informal": "You are a casual translator. Translate with a relaxed, informal tone.",
	"friendly": "You are a friendly translator. Use warm and approachable tone.",
	"academic": "You are an academic translator. Translate rigorously with academic tone.",
})

// SummaryStyles: 分段小结的风格。默认 concise。
var SummaryStyles = MustTable("summary_style", "concise", map[string]string{
	"concise":  "You are a helpful summarization assistant. Provide a concise summary in 2-3 sentences.",
	"detailed": "You are a helpful summarization assistant. Provide a detailed summary in 5-7 sentences.",
	"bullet":   "You are a helpful summarization assistant. Provide bullet-point key takeaways.",
})

// ReduceStyles: 合并阶段的风格。默认 concise。
var ReduceStyles = MustTable("reduce_style", "concise", map[string]string{
	"concise":  "You are a helpful summarization assistant. Combine the following partial summaries into a concise final summary.",
	"detailed": "You are a helpful summarization assistant. Combine and elaborate into a detailed final summary.",
	"bullet":   "You are a helpful summarization assistant. Merge into a clean bullet list of key points.",
})

// Directive 前缀：分段小结与合并阶段的用户轮次前缀。
const (
	SummaryDirective = "Text:\n"
	ReduceDirective  = "Partial summaries:\n"
)

// directions: 翻译方向 → 用户轮次前缀。与风格表不同，方向严格校验。
var directions = map[string]string{
	"zh2en": "Translate the following Chinese into English with the specified tone. Text:\n",
	"en2zh": "请将以下英文翻译成中文，并遵循指定语气风格。文本：\n",
}

// DefaultDirection 为 CLI/配置缺省方向。
const DefaultDirection = "zh2en"

// Direction 返回翻译方向对应的用户前缀；未知方向返回 ErrInvalidConfiguration。
func Direction(id string) (string, error) {
	if v, ok := directions[normalize(id)]; ok {
		return v, nil
	}
	return "", fmt.Errorf("direction %q: %w: must be zh2en or en2zh", id, contract.ErrInvalidConfiguration)
}

// Directions 返回受支持的方向标识。
func Directions() []string { return []string{"en2zh", "zh2en"} }
