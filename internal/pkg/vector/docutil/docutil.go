// Package docutil 提供待入库文档的发现与读取工具函数。
package docutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtensions 默认入库的文本文件扩展名。
var DefaultExtensions = []string{".txt", ".md", ".mdx", ".markdown", ".rst"}

// FindFiles 在目录中递归查找匹配指定扩展名的文件，结果按路径排序。
// extensions 为空时使用 DefaultExtensions。
func FindFiles(dir string, extensions []string) ([]string, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	extMap := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extMap[ext] = true
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// 跳过隐藏目录
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if extMap[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// ReadFileContent 读取文件内容。
func ReadFileContent(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}
