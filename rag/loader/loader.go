// Package loader 提供文档文本抽取。
// 抽取是尽力而为的黑盒:不支持的格式或读取失败一律返回空串,绝不报错。
package loader

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// 支持的纯文本扩展名
var textExtensions = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
	".log":      true,
	".csv":      true,
}

// ExtractText 从文件抽取纯文本。
// 不支持的扩展名、读取失败或非 UTF-8 内容均返回空串。
func ExtractText(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if !textExtensions[ext] {
		return ""
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if !utf8.Valid(data) {
		return ""
	}

	return strings.TrimSpace(string(data))
}

// Supported reports whether the file extension has an extractor.
func Supported(path string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(path))]
}
