// Package textutil 提供向量索引使用的文本工具函数：内容哈希、按字节截断与向量相似度。
package textutil

import (
	"crypto/md5"
	"encoding/hex"
	"math"
	"sort"
)

// MaxChunkBytes 是写入索引元数据的 chunk 文本的最大字节数。
const MaxChunkBytes = 36000

// HashContent 计算 content+salt 的 MD5 十六进制摘要。
// 相同内容和相同 salt 总是得到相同的记录 ID，用于幂等写入。
func HashContent(content, salt string) string {
	hash := md5.Sum([]byte(content + salt))
	return hex.EncodeToString(hash[:])
}

// TruncateStringByBytes 返回 s 的最长前缀，其 UTF-8 编码长度不超过 maxBytes。
// 只在字符边界处截断，不会拆开多字节字符。
func TruncateStringByBytes(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}

	// offsets[i] 是第 i 个字符的起始字节位置，最后追加 len(s)
	offsets := make([]int, 0, len(s))
	for i := range s {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(s))

	// 二分查找第一个超出预算的字符数
	n := sort.Search(len(offsets), func(i int) bool {
		return offsets[i] > maxBytes
	})
	return s[:offsets[n-1]]
}

// CosineSimilarity 计算两个向量的余弦相似度。
// 返回值范围为 [-1, 1]，长度不一致或存在零向量时返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineFromUnitScore 将 (1+cos)/2 形式的 [0, 1] 得分还原为余弦相似度。
func CosineFromUnitScore(score float64) float64 {
	return 2*score - 1
}
