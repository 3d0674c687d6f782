package llm

import (
	"context"
	stderrors "errors"
	"net"

	"github.com/kart-io/vecstore/pkg/utils/errors"
	"github.com/kart-io/vecstore/pkg/utils/httpclient"
)

// ClassifyError 将供应商返回的错误转换为对应的错误码：
// 429 → ErrEmbeddingRateLimited，5xx 与网络错误 → ErrEmbeddingUnavailable，
// 超时与取消保持上下文语义，其余 → ErrEmbeddingFailed。
func ClassifyError(err error) *errors.Errno {
	if err == nil {
		return nil
	}

	var errno *errors.Errno
	if stderrors.As(err, &errno) {
		return errno
	}

	var statusErr *httpclient.StatusError
	if stderrors.As(err, &statusErr) {
		switch {
		case statusErr.RateLimited():
			return errors.ErrEmbeddingRateLimited.WithCause(err)
		case statusErr.Temporary():
			return errors.ErrEmbeddingUnavailable.WithCause(err)
		}
		return errors.ErrEmbeddingFailed.WithCause(err)
	}

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.ErrTimeout.WithCause(err)
	case stderrors.Is(err, context.Canceled):
		return errors.ErrCanceled.WithCause(err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return errors.ErrEmbeddingUnavailable.WithCause(err)
	}
	return errors.ErrEmbeddingFailed.WithCause(err)
}
