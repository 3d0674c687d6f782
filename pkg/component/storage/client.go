package storage

import (
	"context"
	"time"
)

// Client is implemented by every backing service client.
type Client interface {
	// Name returns the storage type identifier (e.g. "milvus").
	Name() string

	// Ping performs a lightweight connectivity check.
	Ping(ctx context.Context) error

	// Close releases the underlying connection. It must be idempotent.
	Close() error
}

// HealthStatus is the outcome of one health check.
type HealthStatus struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   error         `json:"-"`
	// Message mirrors Error for JSON output.
	Message string `json:"error,omitempty"`
}

func newHealthStatus(name string, latency time.Duration, err error) HealthStatus {
	status := HealthStatus{
		Name:    name,
		Healthy: err == nil,
		Latency: latency,
		Error:   err,
	}
	if err != nil {
		status.Message = err.Error()
	}
	return status
}
