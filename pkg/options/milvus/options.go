// Package milvusopts provides options for Milvus client configuration.
package milvusopts

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/vecstore/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains Milvus client configuration.
type Options struct {
	// Address is the Milvus server address (host:port).
	Address string `json:"address" mapstructure:"address"`

	// Database is the database name to use.
	Database string `json:"database" mapstructure:"database"`

	// Username for authentication.
	Username string `json:"username" mapstructure:"username"`

	// Password for authentication.
	Password string `json:"-" mapstructure:"password"`

	// Timeout bounds connection establishment.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// ShardsNum is the shard count used when a collection is created.
	ShardsNum int32 `json:"shards-num" mapstructure:"shards-num"`

	// HNSWM and HNSWEfConstruction tune the HNSW index built on new collections.
	HNSWM              int `json:"hnsw-m" mapstructure:"hnsw-m"`
	HNSWEfConstruction int `json:"hnsw-ef-construction" mapstructure:"hnsw-ef-construction"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Address:            "localhost:19530",
		Database:           "default",
		Timeout:            30 * time.Second,
		ShardsNum:          1,
		HNSWM:              16,
		HNSWEfConstruction: 200,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "milvus."
	fs.StringVar(&o.Address, p+"address", o.Address, "Milvus server address (host:port).")
	fs.StringVar(&o.Database, p+"database", o.Database, "Milvus database name.")
	fs.StringVar(&o.Username, p+"username", o.Username, "Milvus username for authentication.")
	fs.StringVar(&o.Password, p+"password", o.Password, "Milvus password for authentication.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Connection timeout.")
	fs.Int32Var(&o.ShardsNum, p+"shards-num", o.ShardsNum, "Shard count for newly created collections.")
	fs.IntVar(&o.HNSWM, p+"hnsw-m", o.HNSWM, "HNSW M parameter for newly created indexes.")
	fs.IntVar(&o.HNSWEfConstruction, p+"hnsw-ef-construction", o.HNSWEfConstruction, "HNSW efConstruction parameter for newly created indexes.")
}

// Complete fills an empty database with the Milvus default.
func (o *Options) Complete() error {
	o.Address = strings.TrimSpace(o.Address)
	if o.Database == "" {
		o.Database = "default"
	}
	return nil
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Address == "" {
		errs = append(errs, fmt.Errorf("milvus address is required"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("milvus timeout must be positive"))
	}
	if o.ShardsNum <= 0 {
		errs = append(errs, fmt.Errorf("milvus shards-num must be positive"))
	}
	if o.HNSWM <= 0 || o.HNSWEfConstruction <= 0 {
		errs = append(errs, fmt.Errorf("milvus hnsw parameters must be positive"))
	}
	return errs
}
