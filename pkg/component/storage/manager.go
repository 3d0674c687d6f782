package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/vecstore/pkg/infra/pool"
	"github.com/kart-io/vecstore/pkg/utils/errors"
)

// PingTimeout bounds a single client check in HealthCheckAll.
var PingTimeout = 5 * time.Second

// Manager manages multiple storage clients and provides centralized
// health checking and lifecycle management.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewManager creates a new storage manager instance.
func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]Client),
	}
}

// Register registers a storage client with the given name.
// Returns an error if a client with the same name is already registered.
func (m *Manager) Register(name string, client Client) error {
	if name == "" {
		return errors.ErrInvalidParam.WithMessage("client name cannot be empty")
	}
	if client == nil {
		return errors.ErrInvalidParam.WithMessage("client cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[name]; exists {
		return errors.ErrInvalidParam.WithMessagef("client '%s' is already registered", name)
	}

	m.clients[name] = client
	return nil
}

// MustRegister registers a storage client and panics if registration fails.
func (m *Manager) MustRegister(name string, client Client) {
	if err := m.Register(name, client); err != nil {
		panic(fmt.Sprintf("failed to register storage client: %v", err))
	}
}

// Get retrieves a storage client by name.
func (m *Manager) Get(name string) (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, exists := m.clients[name]
	if !exists {
		return nil, errors.ErrNotFound.WithMessagef("client '%s' not found", name)
	}

	return client, nil
}

// List returns the sorted names of all registered clients.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthCheck performs a health check on a specific client.
func (m *Manager) HealthCheck(ctx context.Context, name string) HealthStatus {
	client, err := m.Get(name)
	if err != nil {
		return newHealthStatus(name, 0, err)
	}

	start := time.Now()
	err = client.Ping(ctx)
	return newHealthStatus(name, time.Since(start), err)
}

// HealthCheckAll pings every registered client concurrently, each bounded by
// PingTimeout, and returns the statuses keyed by client name.
func (m *Manager) HealthCheckAll(ctx context.Context) map[string]HealthStatus {
	names := m.List()
	statuses := make(map[string]HealthStatus, len(names))
	if len(names) == 0 {
		return statuses
	}

	var mu sync.Mutex
	check := func(name string) {
		pingCtx, cancel := context.WithTimeout(ctx, PingTimeout)
		defer cancel()
		status := m.HealthCheck(pingCtx, name)
		mu.Lock()
		statuses[name] = status
		mu.Unlock()
	}

	group, err := pool.NewGroup("health-check", len(names))
	if err != nil {
		logger.Warnw("health check pool unavailable, checking sequentially", "error", err.Error())
		for _, name := range names {
			check(name)
		}
		return statuses
	}
	for _, name := range names {
		if err := group.Go(ctx, func() { check(name) }); err != nil {
			mu.Lock()
			statuses[name] = newHealthStatus(name, 0, err)
			mu.Unlock()
		}
	}
	group.Wait()
	return statuses
}

// AllHealthy reports whether every registered client passes its health check.
func (m *Manager) AllHealthy(ctx context.Context) bool {
	for _, status := range m.HealthCheckAll(ctx) {
		if !status.Healthy {
			return false
		}
	}
	return true
}

// CloseAll closes all registered clients. It attempts to close every client
// even if some fail, and returns the first error encountered.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, client := range m.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close client '%s': %w", name, err)
		}
		delete(m.clients, name)
	}

	return firstErr
}
