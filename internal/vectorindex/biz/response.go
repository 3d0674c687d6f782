package biz

import (
	stderrors "errors"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/vecstore/pkg/utils/errors"
	"github.com/kart-io/vecstore/pkg/utils/json"
)

// Response 是所有写操作返回的统一结果。
// 失败时 Error 携带 *errors.Errno，原始错误可通过 errors.Unwrap 取得。
type Response struct {
	Success bool  `json:"success"`
	Data    any   `json:"data,omitempty"`
	Error   error `json:"-"`
}

func succeed(data any) *Response {
	return &Response{Success: true, Data: data}
}

func fail(err error, data any) *Response {
	return &Response{Success: false, Data: data, Error: err}
}

// Code 返回错误码，成功时返回 0。
func (r *Response) Code() int {
	if r == nil || r.Error == nil {
		return 0
	}
	return errors.GetCode(r.Error)
}

// MarshalJSON 将错误展开为 code 与 message。
func (r *Response) MarshalJSON() ([]byte, error) {
	out := struct {
		Success bool   `json:"success"`
		Data    any    `json:"data,omitempty"`
		Code    int    `json:"code,omitempty"`
		Error   string `json:"error,omitempty"`
	}{Success: r.Success, Data: r.Data}
	if r.Error != nil {
		out.Code = r.Code()
		out.Error = r.Error.Error()
	}
	return json.Marshal(out)
}

// recoverResponse 将 panic 转换为失败结果，需在 defer 中直接调用。
func recoverResponse(op string, resp **Response) {
	if r := recover(); r != nil {
		logger.Errorw("vector index operation panicked", "operation", op, "panic", fmt.Sprint(r))
		*resp = fail(errors.ErrInternal.WithCause(fmt.Errorf("panic in %s: %v", op, r)), nil)
	}
}

// classify 将任意错误映射为 Errno。已有 Errno 保持不变。
func classify(err error, fallback *errors.Errno) *errors.Errno {
	if err == nil {
		return nil
	}
	if e, ok := err.(*errors.Errno); ok {
		return e
	}
	if stderrors.Is(err, errors.ErrIndexNotReady) {
		return errors.ErrIndexNotReady.WithCause(err)
	}
	var e *errors.Errno
	if stderrors.As(err, &e) {
		return e
	}
	switch e := errors.FromError(err); e.Code {
	case errors.ErrTimeout.Code:
		return errors.ErrIndexTimeout.WithCause(err)
	case errors.ErrCanceled.Code:
		return e
	}
	return fallback.WithCause(err)
}
