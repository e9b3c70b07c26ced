package chunker

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"llmseg/pkg/contract"
)

// TestSplitLengths 1300/600 → 600,600,100。
func TestSplitLengths(t *testing.T) {
	text := strings.Repeat("a", 1300)
	chunks, err := Split(text, 600)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []int{600, 600, 100}
	if len(chunks) != len(want) {
		t.Fatalf("段数 %d，预期 %d", len(chunks), len(want))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("第 %d 段序号为 %d", i, c.Index)
		}
		if len(c.Text) != want[i] {
			t.Fatalf("第 %d 段长度 %d，预期 %d", i, len(c.Text), want[i])
		}
	}
}

// TestSplitReconstructs 拼接还原与段数不变量。
func TestSplitReconstructs(t *testing.T) {
	texts := []string{
		"",
		"a",
		"hello world",
		strings.Repeat("今天天气很好，我们去公园散步吧。", 37),
		"mixed 中文 and emoji 🙂🙂 text",
		strings.Repeat("x", 1200),
	}
	for _, text := range texts {
		for _, maxLen := range []int{1, 2, 3, 7, 600, 800, 5000} {
			chunks, err := Split(text, maxLen)
			if err != nil {
				t.Fatalf("split(%d): %v", maxLen, err)
			}
			var sb strings.Builder
			for i, c := range chunks {
				if c.Index != i {
					t.Fatalf("序号不连续: %d != %d", c.Index, i)
				}
				if n := utf8.RuneCountInString(c.Text); n == 0 || n > maxLen {
					t.Fatalf("段长 %d 越界 (max %d)", n, maxLen)
				}
				if !utf8.ValidString(c.Text) {
					t.Fatalf("段内编码损坏: %q", c.Text)
				}
				sb.WriteString(c.Text)
			}
			if sb.String() != text {
				t.Fatalf("拼接未还原原文 (maxLen=%d)", maxLen)
			}
			n := utf8.RuneCountInString(text)
			if want := (n + maxLen - 1) / maxLen; len(chunks) != want {
				t.Fatalf("段数 %d，预期 %d", len(chunks), want)
			}
			if Count(text, maxLen) != len(chunks) {
				t.Fatalf("Count 与实际段数不一致")
			}
		}
	}
}

// TestSplitEmpty 空文本零段。
func TestSplitEmpty(t *testing.T) {
	chunks, err := Split("", 10)
	if err != nil || len(chunks) != 0 {
		t.Fatalf("空文本应得到零段: %v %v", chunks, err)
	}
}

// TestSplitInvalidMaxLen 非正长度拒绝。
func TestSplitInvalidMaxLen(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := Split("abc", n); !errors.Is(err, contract.ErrInvalidConfiguration) {
			t.Fatalf("maxLen=%d 应返回 ErrInvalidConfiguration，得到 %v", n, err)
		}
	}
	if Count("abc", 0) != 0 {
		t.Fatalf("Count(maxLen=0) 应为 0")
	}
}

// TestSplitDeterministic 相同输入相同输出。
func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("确定性", 100)
	a, _ := Split(text, 7)
	b, _ := Split(text, 7)
	if len(a) != len(b) {
		t.Fatalf("段数不一致")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("第 %d 段不一致", i)
		}
	}
}

// TestSplitMultibyte 码点计数而非字节。
func TestSplitMultibyte(t *testing.T) {
	chunks, err := Split("你好世界", 3)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) != 2 || chunks[0].Text != "你好世" || chunks[1].Text != "界" {
		t.Fatalf("unexpected %#v", chunks)
	}
}

func BenchmarkSplit(b *testing.B) {
	text := strings.Repeat("长文本分段，逐段翻译再合并。", 2000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Split(text, 600)
	}
}
