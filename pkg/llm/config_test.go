package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/vecstore/pkg/utils/errors"
)

func TestOverride(t *testing.T) {
	config := map[string]any{
		"model":   "bge-m3",
		"empty":   "",
		"timeout": 3 * time.Second,
		"wrong":   42,
	}

	model := "default"
	Override(config, "model", &model)
	assert.Equal(t, "bge-m3", model)

	empty := "keep"
	Override(config, "empty", &empty)
	assert.Equal(t, "keep", empty)

	timeout := time.Minute
	Override(config, "timeout", &timeout)
	assert.Equal(t, 3*time.Second, timeout)

	wrong := "keep"
	Override(config, "wrong", &wrong)
	Override(config, "missing", &wrong)
	assert.Equal(t, "keep", wrong)
}

func TestCheckEmbeddings(t *testing.T) {
	assert.NoError(t, CheckEmbeddings("mock", 2, [][]float32{{1}, {2}}))

	err := CheckEmbeddings("mock", 2, [][]float32{{1}})
	assert.True(t, errors.IsCode(err, errors.ErrEmbeddingFailed.Code))
	assert.Contains(t, err.Error(), "returned 1 embeddings for 2 texts")

	err = CheckEmbeddings("mock", 2, [][]float32{{1}, nil})
	assert.Contains(t, err.Error(), "empty embedding at index 1")
}
