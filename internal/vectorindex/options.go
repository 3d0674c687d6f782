// Package app provides the vector index command line application.
package app

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/vecstore/internal/vectorindex/store"
	"github.com/kart-io/vecstore/pkg/infra/app/cliflag"
	"github.com/kart-io/vecstore/pkg/options"
	embeddingopts "github.com/kart-io/vecstore/pkg/options/embedding"
	logopts "github.com/kart-io/vecstore/pkg/options/logger"
	milvusopts "github.com/kart-io/vecstore/pkg/options/milvus"
	opensearchopts "github.com/kart-io/vecstore/pkg/options/opensearch"
	redisopts "github.com/kart-io/vecstore/pkg/options/redis"
	tracingopts "github.com/kart-io/vecstore/pkg/options/tracing"
	vectoropts "github.com/kart-io/vecstore/pkg/options/vector"
)

// Options contains all vector index options.
type Options struct {
	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Vector contains index, chunking and write configuration.
	Vector *vectoropts.Options `json:"vector" mapstructure:"vector"`

	// Embedding contains embedding provider configuration.
	Embedding *embeddingopts.Options `json:"embedding" mapstructure:"embedding"`

	// Milvus is used when vector.provider is milvus.
	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// OpenSearch is used when vector.provider is opensearch.
	OpenSearch *opensearchopts.Options `json:"opensearch" mapstructure:"opensearch"`

	// Redis backs the embedding cache when embedding.cache-enabled is set.
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`

	// Tracing contains OpenTelemetry configuration.
	Tracing *tracingopts.Options `json:"tracing" mapstructure:"tracing"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Log:        logopts.NewOptions(),
		Vector:     vectoropts.NewOptions(),
		Embedding:  embeddingopts.NewOptions(),
		Milvus:     milvusopts.NewOptions(),
		OpenSearch: opensearchopts.NewOptions(),
		Redis:      redisopts.NewOptions(),
		Tracing:    tracingopts.NewOptions(),
	}
}

// Flags returns the flags grouped by section.
func (o *Options) Flags() (fss cliflag.NamedFlagSets) {
	o.Vector.AddFlags(fss.FlagSet("vector"))
	o.Embedding.AddFlags(fss.FlagSet("embedding"))
	o.Milvus.AddFlags(fss.FlagSet("milvus"))
	o.OpenSearch.AddFlags(fss.FlagSet("opensearch"))
	o.Redis.AddFlags(fss.FlagSet("redis"))
	o.Log.AddFlags(fss.FlagSet("log"))
	o.Tracing.AddFlags(fss.FlagSet("tracing"))
	return fss
}

// Complete completes the options.
func (o *Options) Complete() error {
	return options.CompleteAll(o.Log, o.Vector, o.Embedding, o.Milvus, o.OpenSearch, o.Redis, o.Tracing)
}

// Validate validates the options. Backend options are only checked for the
// selected provider.
func (o *Options) Validate() error {
	errs := options.ValidateAll(o.Log, o.Vector, o.Embedding, o.Tracing)

	switch o.Vector.Provider {
	case store.ProviderMilvus:
		errs = append(errs, o.Milvus.Validate()...)
	case store.ProviderOpenSearch:
		errs = append(errs, o.OpenSearch.Validate()...)
	}
	if o.Embedding.CacheEnabled {
		errs = append(errs, o.Redis.Validate()...)
	}
	return utilerrors.NewAggregate(errs)
}
