package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Service codes (AA).
const (
	ServiceCommon    = 0
	ServiceVector    = 21
	ServiceEmbedding = 90
)

// Category codes (BB). A category fixes the HTTP and gRPC status of every
// code defined under it.
const (
	CategoryRequest   = 1
	CategoryResource  = 4
	CategoryConflict  = 5
	CategoryRateLimit = 6
	CategoryInternal  = 7
	CategoryDatabase  = 8
	CategoryCache     = 9
	CategoryNetwork   = 10
	CategoryTimeout   = 11
	CategoryConfig    = 12
)

type status struct {
	http int
	grpc codes.Code
}

var categoryStatus = map[int]status{
	CategoryRequest:   {http.StatusBadRequest, codes.InvalidArgument},
	CategoryResource:  {http.StatusNotFound, codes.NotFound},
	CategoryConflict:  {http.StatusConflict, codes.AlreadyExists},
	CategoryRateLimit: {http.StatusTooManyRequests, codes.ResourceExhausted},
	CategoryInternal:  {http.StatusInternalServerError, codes.Internal},
	CategoryDatabase:  {http.StatusInternalServerError, codes.Internal},
	CategoryCache:     {http.StatusInternalServerError, codes.Internal},
	CategoryNetwork:   {http.StatusServiceUnavailable, codes.Unavailable},
	CategoryTimeout:   {http.StatusGatewayTimeout, codes.DeadlineExceeded},
	CategoryConfig:    {http.StatusInternalServerError, codes.Internal},
}

// MakeCode builds the code AABBCCC from service, category and sequence.
func MakeCode(service, category, sequence int) int {
	return service*100000 + category*1000 + sequence
}

// ParseCode splits a code into service, category and sequence.
func ParseCode(code int) (service, category, sequence int) {
	return code / 100000, (code % 100000) / 1000, code % 1000
}

// IsClientError reports whether code belongs to a caller-side category.
func IsClientError(code int) bool {
	_, category, _ := ParseCode(code)
	return category >= CategoryRequest && category <= CategoryRateLimit
}

// IsServerError reports whether code belongs to a server-side category.
func IsServerError(code int) bool {
	_, category, _ := ParseCode(code)
	return category >= CategoryInternal && category <= CategoryConfig
}
