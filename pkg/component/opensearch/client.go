// Package opensearch wraps the official OpenSearch client with option-driven
// construction, a startup health check and a JSON request helper.
package opensearch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kart-io/logger"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/kart-io/vecstore/pkg/component/storage"
	options "github.com/kart-io/vecstore/pkg/options/opensearch"
	"github.com/kart-io/vecstore/pkg/utils/json"
)

var (
	// ErrConnectionFailed indicates the client could not be created.
	ErrConnectionFailed = errors.New("opensearch connection failed")

	// ErrHealthcheckFailed indicates the cluster is unreachable or unhealthy.
	ErrHealthcheckFailed = errors.New("opensearch healthcheck failed")
)

// Options is re-exported from pkg/options/opensearch for convenience.
type Options = options.Options

// NewOptions is re-exported from pkg/options/opensearch for convenience.
var NewOptions = options.NewOptions

// ResponseError is returned when the cluster answers with a non-2xx status.
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("opensearch: status %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var re *ResponseError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}

// Client wraps *opensearch.Client and implements storage.Client.
type Client struct {
	client *opensearch.Client
	opts   *options.Options
}

var _ storage.Client = (*Client)(nil)

// New creates a client and verifies the cluster answers.
func New(ctx context.Context, opts *options.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("opensearch options cannot be nil")
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid opensearch options: %v", errs)
	}

	cfg := opensearch.Config{
		Addresses:    opts.Addresses,
		Username:     opts.Username,
		Password:     opts.Password,
		MaxRetries:   opts.MaxRetries,
		DisableRetry: opts.MaxRetries == 0,
	}
	if opts.InsecureSkipVerify {
		cfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in for self-signed dev clusters
		}
	}

	raw, err := opensearch.NewClient(cfg)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	c := &Client{client: raw, opts: opts}

	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		return nil, err
	}

	logger.Infow("opensearch connected", "addresses", opts.Addresses)
	return c, nil
}

// Name returns the storage type identifier.
func (c *Client) Name() string {
	return "opensearch"
}

// Ping calls the cluster info endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.Do(ctx, opensearchapi.InfoRequest{}, nil); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}

// Close is a no-op: the HTTP transport holds no dedicated connection.
func (c *Client) Close() error {
	return nil
}

// RawClient returns the underlying OpenSearch client.
func (c *Client) RawClient() *opensearch.Client {
	return c.client
}

// Options returns the options used by this client.
func (c *Client) Options() *options.Options {
	return c.opts
}

// Do executes req and decodes a successful JSON body into out when out is
// not nil. Non-2xx answers become *ResponseError.
func (c *Client) Do(ctx context.Context, req opensearchapi.Request, out any) error {
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &ResponseError{StatusCode: res.StatusCode, Body: string(body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("opensearch: decode response: %w", err)
	}
	return nil
}

// Exists runs a HEAD style request and maps 404 to false.
func (c *Client) Exists(ctx context.Context, req opensearchapi.Request) (bool, error) {
	err := c.Do(ctx, req, nil)
	switch {
	case err == nil:
		return true, nil
	case IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}
