package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestMakeAndParseCode(t *testing.T) {
	code := MakeCode(ServiceVector, CategoryRequest, 1)
	assert.Equal(t, 2101001, code)

	service, category, seq := ParseCode(code)
	assert.Equal(t, ServiceVector, service)
	assert.Equal(t, CategoryRequest, category)
	assert.Equal(t, 1, seq)
	assert.True(t, IsClientError(code))
	assert.False(t, IsServerError(code))
}

func TestErrnoWithCause(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := ErrUpsertFailed.WithCause(cause)

	assert.NotSame(t, ErrUpsertFailed, err)
	assert.True(t, stderrors.Is(err, ErrUpsertFailed))
	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection reset")
	assert.Nil(t, ErrUpsertFailed.Unwrap())
}

func TestErrnoWithMessage(t *testing.T) {
	err := ErrInvalidFilter.WithMessagef("unsupported key %q", "a-b")

	assert.Equal(t, `unsupported key "a-b"`, err.MessageEN)
	assert.Equal(t, "向量过滤条件无效", err.Message("zh"))
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
	assert.Equal(t, codes.InvalidArgument, err.GRPCStatus())
}

func TestErrnoRetryable(t *testing.T) {
	assert.True(t, ErrEmbeddingRateLimited.Retryable())
	assert.True(t, ErrIndexNetwork.Retryable())
	assert.True(t, ErrIndexNotReady.Retryable())
	assert.False(t, ErrInvalidFilter.Retryable())
	assert.False(t, ErrEmbeddingFailed.Retryable())
	assert.True(t, ErrIndexTimeout.WithCause(context.DeadlineExceeded).Retryable())
	assert.False(t, ErrIndexTimeout.WithCause(fmt.Errorf("wait: %w", context.Canceled)).Retryable())
}

func TestErrnoLogFields(t *testing.T) {
	assert.Equal(t,
		[]any{"errno", ErrEmbeddingRateLimited.Code, "retryable", true, "error", ErrEmbeddingRateLimited.MessageEN},
		ErrEmbeddingRateLimited.LogFields())

	fields := ErrUpsertFailed.WithCause(fmt.Errorf("shard offline")).LogFields()
	assert.Equal(t, []any{"cause", "shard offline"}, fields[len(fields)-2:])
	assert.Equal(t, "向量过滤条件无效", ErrInvalidFilter.Message("zh-CN"))
	assert.Equal(t, ErrInvalidFilter.MessageEN, ErrInvalidFilter.Message("en-US"))
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	wrapped := fmt.Errorf("batch 3: %w", ErrQueryFailed)
	assert.Equal(t, ErrQueryFailed.Code, FromError(wrapped).Code)

	assert.Equal(t, ErrTimeout.Code, FromError(context.DeadlineExceeded).Code)
	assert.Equal(t, ErrCanceled.Code, FromError(context.Canceled).Code)
	assert.Equal(t, ErrInternal.Code, FromError(fmt.Errorf("boom")).Code)
}

func TestWrapKeepsMostSpecificCode(t *testing.T) {
	assert.Nil(t, Wrap(ErrUpsertFailed, nil))

	inner := ErrEmbeddingRateLimited.WithCause(fmt.Errorf("429"))
	got := Wrap(ErrUpsertFailed, inner)
	assert.Equal(t, ErrEmbeddingRateLimited.Code, got.Code)

	got = Wrap(ErrUpsertFailed, fmt.Errorf("plain"))
	assert.Equal(t, ErrUpsertFailed.Code, got.Code)
}

func TestCodeHelpers(t *testing.T) {
	err := fmt.Errorf("ctx: %w", ErrIndexNotReady)
	assert.True(t, IsCode(err, ErrIndexNotReady.Code))
	assert.Equal(t, ErrIndexNotReady.Code, GetCode(err))
	assert.Equal(t, -1, GetCode(fmt.Errorf("plain")))
}

func TestRegistry(t *testing.T) {
	e, ok := Lookup(ErrEmbeddingFailed.Code)
	require.True(t, ok)
	assert.Same(t, ErrEmbeddingFailed, e)

	all := Registered()
	assert.Contains(t, all, ErrInvalidFilter.Code)

	assert.Panics(t, func() {
		Register(New(ErrInvalidFilter.Code, 400, codes.InvalidArgument, "dup", ""))
	})
}

func TestDefineValidation(t *testing.T) {
	assert.Panics(t, func() { define(100, CategoryRequest, 1, "x", "") })
	assert.Panics(t, func() { define(ServiceVector, CategoryRequest, 1000, "x", "") })
	assert.Panics(t, func() { define(ServiceVector, CategoryRequest, 999, "", "") })
	assert.Panics(t, func() { define(ServiceVector, 42, 999, "x", "") })
}

func TestCategoryStatus(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, ErrIndexNotReady.HTTPStatus())
	assert.Equal(t, codes.NotFound, ErrIndexNotFound.GRPCStatus())
	assert.Equal(t, codes.ResourceExhausted, ErrEmbeddingRateLimited.GRPCStatus())
	assert.Equal(t, http.StatusServiceUnavailable, ErrEmbeddingUnavailable.HTTPStatus())
}

func TestErrnoFormat(t *testing.T) {
	err := ErrFetchFailed.WithCause(fmt.Errorf("not loaded"))
	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "http 500")
	assert.Contains(t, detailed, "retryable=false")
	assert.Contains(t, detailed, "caused by: not loaded")
	assert.Equal(t, err.Error(), fmt.Sprintf("%s", err))
}
