package document

import (
	"context"
	"strings"
)

// Extractor 文本提取器接口
// 负责将原始文档字节转换为规范化的纯文本
type Extractor interface {
	// Extract 提取文本，失败时返回包装了 models.ErrExtraction 的错误
	// 提取是全有或全无的，失败时不返回部分文本
	Extract(ctx context.Context, data []byte) (string, error)
}

// Normalize 规范化提取出的文本
// 连续空白合并为单个空格，三个及以上换行合并为两个，并去除首尾空白
func Normalize(text string) string {
	text = strings.Join(strings.Fields(text), " ")

	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(text)
}
