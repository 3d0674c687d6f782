// Package vector provides vector index configuration options.
package vector

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/vecstore/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// ProviderEnv selects the vector backend when --vector.provider is not given.
const ProviderEnv = "VECTOR_DB_PROVIDER"

// Options contains the vector index configuration.
type Options struct {
	// Provider selects the index backend (milvus, opensearch, memory).
	Provider string `json:"provider" mapstructure:"provider"`

	// IndexName is the collection or index name.
	IndexName string `json:"index-name" mapstructure:"index-name"`

	// Namespace scopes every read and write.
	Namespace string `json:"namespace" mapstructure:"namespace"`

	// Dimensions is the vector dimension of the index.
	Dimensions int `json:"dimensions" mapstructure:"dimensions"`

	ChunkSize    int `json:"chunk-size" mapstructure:"chunk-size"`
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	UpsertBatchSize   int `json:"upsert-batch-size" mapstructure:"upsert-batch-size"`
	UpsertConcurrency int `json:"upsert-concurrency" mapstructure:"upsert-concurrency"`

	TopK     int     `json:"top-k" mapstructure:"top-k"`
	MinScore float64 `json:"min-score" mapstructure:"min-score"`

	// SaltKey names the metadata field mixed into record ids.
	SaltKey string `json:"salt-key" mapstructure:"salt-key"`

	ReadyPollInterval time.Duration `json:"ready-poll-interval" mapstructure:"ready-poll-interval"`
	ReadyTimeout      time.Duration `json:"ready-timeout" mapstructure:"ready-timeout"`
	ReadyMaxAttempts  int           `json:"ready-max-attempts" mapstructure:"ready-max-attempts"`

	ProcessBatchSize     int `json:"process-batch-size" mapstructure:"process-batch-size"`
	MaxConcurrentBatches int `json:"max-concurrent-batches" mapstructure:"max-concurrent-batches"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Provider:             "milvus",
		IndexName:            "vector_index",
		Namespace:            "default",
		Dimensions:           1536,
		ChunkSize:            500,
		ChunkOverlap:         20,
		UpsertBatchSize:      100,
		UpsertConcurrency:    4,
		TopK:                 5,
		MinScore:             0.5,
		SaltKey:              "owner_id",
		ReadyPollInterval:    5 * time.Second,
		ReadyTimeout:         5 * time.Minute,
		ReadyMaxAttempts:     60,
		ProcessBatchSize:     50,
		MaxConcurrentBatches: 3,
	}
}

// AddFlags adds flags for vector options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "vector."
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "Vector index backend (milvus, opensearch, memory). Falls back to $"+ProviderEnv+".")
	fs.StringVar(&o.IndexName, p+"index-name", o.IndexName, "Index or collection name.")
	fs.StringVar(&o.Namespace, p+"namespace", o.Namespace, "Namespace applied to every read and write.")
	fs.IntVar(&o.Dimensions, p+"dimensions", o.Dimensions, "Vector dimension of the index.")
	fs.IntVar(&o.ChunkSize, p+"chunk-size", o.ChunkSize, "Maximum chunk length in characters.")
	fs.IntVar(&o.ChunkOverlap, p+"chunk-overlap", o.ChunkOverlap, "Characters shared by adjacent chunks.")
	fs.IntVar(&o.UpsertBatchSize, p+"upsert-batch-size", o.UpsertBatchSize, "Records per write request.")
	fs.IntVar(&o.UpsertConcurrency, p+"upsert-concurrency", o.UpsertConcurrency, "Concurrent write requests.")
	fs.IntVar(&o.TopK, p+"top-k", o.TopK, "Default number of query results.")
	fs.Float64Var(&o.MinScore, p+"min-score", o.MinScore, "Matches scoring at or below this value are dropped.")
	fs.StringVar(&o.SaltKey, p+"salt-key", o.SaltKey, "Metadata field mixed into record ids.")
	fs.DurationVar(&o.ReadyPollInterval, p+"ready-poll-interval", o.ReadyPollInterval, "Index readiness poll interval.")
	fs.DurationVar(&o.ReadyTimeout, p+"ready-timeout", o.ReadyTimeout, "Maximum wait for the index to become ready.")
	fs.IntVar(&o.ReadyMaxAttempts, p+"ready-max-attempts", o.ReadyMaxAttempts, "Maximum readiness polls, 0 for no limit besides the timeout.")
	fs.IntVar(&o.ProcessBatchSize, p+"process-batch-size", o.ProcessBatchSize, "Items per processor batch.")
	fs.IntVar(&o.MaxConcurrentBatches, p+"max-concurrent-batches", o.MaxConcurrentBatches, "Processor batches in flight.")
}

// Complete normalizes the options.
func (o *Options) Complete() error {
	o.Provider = strings.ToLower(strings.TrimSpace(o.Provider))
	return nil
}

// Validate validates the vector options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("vector provider is required"))
	}
	if o.IndexName == "" {
		errs = append(errs, fmt.Errorf("vector index-name is required"))
	}
	if o.Namespace == "" {
		errs = append(errs, fmt.Errorf("vector namespace is required"))
	}
	if o.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("vector dimensions must be positive"))
	}
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("vector chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("vector chunk-overlap must be in [0, chunk-size)"))
	}
	if o.UpsertBatchSize <= 0 || o.UpsertConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("vector upsert batch size and concurrency must be positive"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("vector top-k must be positive"))
	}
	if o.ReadyPollInterval <= 0 || o.ReadyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("vector readiness interval and timeout must be positive"))
	}
	if o.ReadyMaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("vector ready-max-attempts must not be negative"))
	}
	if o.ProcessBatchSize <= 0 || o.MaxConcurrentBatches <= 0 {
		errs = append(errs, fmt.Errorf("vector process batch size and concurrency must be positive"))
	}
	return errs
}
