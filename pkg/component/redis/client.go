// Package redis provides the go-redis client used by the embedding cache.
package redis

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/vecstore/pkg/component/storage"
	options "github.com/kart-io/vecstore/pkg/options/redis"
)

// Options is re-exported from pkg/options/redis for convenience.
type Options = options.Options

// NewOptions is re-exported from pkg/options/redis for convenience.
var NewOptions = options.NewOptions

// Client wraps the go-redis client and implements storage.Client.
type Client struct {
	client *goredis.Client
	opts   *options.Options
}

var _ storage.Client = (*Client)(nil)

// redisLogger routes go-redis internal messages to the unified logger.
type redisLogger struct{}

func (redisLogger) Printf(_ context.Context, format string, v ...interface{}) {
	logger.Debugf("redis: "+format, v...)
}

func init() {
	goredis.SetLogger(redisLogger{})
}

// New creates a new Redis client and verifies connectivity with a ping.
func New(ctx context.Context, opts *options.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("redis options cannot be nil")
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid redis options: %v", errs)
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr(),
		Password:     opts.Password,
		DB:           opts.Database,
		MaxRetries:   opts.MaxRetries,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", opts.Addr(), err)
	}

	logger.Infow("redis connected", "addr", opts.Addr(), "db", opts.Database)

	return &Client{
		client: rdb,
		opts:   opts,
	}, nil
}

// Name returns the storage type identifier.
func (c *Client) Name() string {
	return "redis"
}

// Ping checks if the connection to Redis is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Client returns the underlying go-redis client.
func (c *Client) Client() *goredis.Client {
	return c.client
}

// Options returns the Redis options used by this client.
func (c *Client) Options() *options.Options {
	return c.opts
}
