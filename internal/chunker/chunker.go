package chunker

import (
	"fmt"
	"unicode/utf8"

	"llmseg/pkg/contract"
)

// Split 将文本按固定长度切分为有序 Chunk 序列。
// 约束：
// 1) 长度以 Unicode 码点计，绝不切断多字节序列；
// 2) 第 i 段覆盖 [i*maxLen, min((i+1)*maxLen, n))，不考虑词/句边界；
// 3) 空文本返回零段；
// 4) 纯函数：相同输入总是得到相同输出。
func Split(text string, maxLen int) ([]contract.Chunk, error) {
	if maxLen <= 0 {
		return nil, fmt.Errorf("chunker: max length %d: %w", maxLen, contract.ErrInvalidConfiguration)
	}
	if text == "" {
		return nil, nil
	}
	chunks := make([]contract.Chunk, 0, Count(text, maxLen))
	start, runes := 0, 0
	for off := range text {
		if runes == maxLen {
			chunks = append(chunks, contract.Chunk{Index: len(chunks), Text: text[start:off]})
			start, runes = off, 0
		}
		runes++
	}
	chunks = append(chunks, contract.Chunk{Index: len(chunks), Text: text[start:]})
	return chunks, nil
}

// Count 返回 ceil(码点数/maxLen)；maxLen<=0 时返回 0。
func Count(text string, maxLen int) int {
	if maxLen <= 0 {
		return 0
	}
	n := utf8.RuneCountInString(text)
	return (n + maxLen - 1) / maxLen
}
