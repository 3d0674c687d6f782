package llm

import (
	"fmt"

	"github.com/kart-io/vecstore/pkg/utils/errors"
)

// Override 在 config[key] 存在、类型为 T 且非零值时写入 dst，否则保留 dst 的默认值。
func Override[T comparable](config map[string]any, key string, dst *T) {
	v, ok := config[key].(T)
	var zero T
	if ok && v != zero {
		*dst = v
	}
}

// CheckEmbeddings 校验供应商返回的向量数量与输入一致且均非空。
func CheckEmbeddings(provider string, want int, got [][]float32) error {
	if len(got) != want {
		return errors.ErrEmbeddingFailed.WithCause(fmt.Errorf(
			"%s returned %d embeddings for %d texts", provider, len(got), want))
	}
	for i, v := range got {
		if len(v) == 0 {
			return errors.ErrEmbeddingFailed.WithCause(fmt.Errorf(
				"%s returned an empty embedding at index %d", provider, i))
		}
	}
	return nil
}
