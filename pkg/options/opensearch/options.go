// Package opensearch provides options for the OpenSearch vector backend.
package opensearch

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/vecstore/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains OpenSearch client configuration.
type Options struct {
	// Addresses lists the cluster node URLs.
	Addresses []string `json:"addresses" mapstructure:"addresses"`

	Username string `json:"username" mapstructure:"username"`
	Password string `json:"-" mapstructure:"password"`

	// MaxRetries is the transport-level retry count; 0 disables retries.
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Timeout bounds the startup health check.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// Shards and Replicas are applied when the index is created.
	Shards   int `json:"shards" mapstructure:"shards"`
	Replicas int `json:"replicas" mapstructure:"replicas"`

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Addresses: []string{"http://localhost:9200"},
		Timeout:   10 * time.Second,
		Shards:    1,
		Replicas:  0,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "opensearch."
	fs.StringSliceVar(&o.Addresses, p+"addresses", o.Addresses, "OpenSearch node URLs.")
	fs.StringVar(&o.Username, p+"username", o.Username, "OpenSearch username.")
	fs.StringVar(&o.Password, p+"password", o.Password, "OpenSearch password (prefer the OPENSEARCH_PASSWORD env var).")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Transport retry count.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Health check timeout.")
	fs.IntVar(&o.Shards, p+"shards", o.Shards, "Primary shard count for a newly created index.")
	fs.IntVar(&o.Replicas, p+"replicas", o.Replicas, "Replica count for a newly created index.")
	fs.BoolVar(&o.InsecureSkipVerify, p+"insecure-skip-verify", o.InsecureSkipVerify, "Skip TLS certificate verification.")
}

// Complete reads the password from OPENSEARCH_PASSWORD when it was not set.
func (o *Options) Complete() error {
	if o.Password == "" {
		o.Password = os.Getenv("OPENSEARCH_PASSWORD")
	}
	return nil
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if len(o.Addresses) == 0 {
		errs = append(errs, fmt.Errorf("opensearch addresses are required"))
	}
	if o.Shards <= 0 {
		errs = append(errs, fmt.Errorf("opensearch shards must be positive"))
	}
	if o.Replicas < 0 {
		errs = append(errs, fmt.Errorf("opensearch replicas must not be negative"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("opensearch timeout must be positive"))
	}
	return errs
}
