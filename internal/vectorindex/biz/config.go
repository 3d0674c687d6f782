package biz

import (
	"time"

	vectoropts "github.com/kart-io/vecstore/pkg/options/vector"
	"github.com/kart-io/vecstore/pkg/utils/errors"
	"github.com/kart-io/vecstore/pkg/validator"
)

// 默认值。
const (
	DefaultTopK              = 5
	DefaultMinScore          = 0.5
	DefaultSaltKey           = "owner_id"
	DefaultUpsertBatchSize   = 100
	DefaultUpsertConcurrency = 4
	DefaultReadyPollInterval = 5 * time.Second
	DefaultReadyTimeout      = 5 * time.Minute
	DefaultReadyMaxAttempts  = 60

	// MetadataAccountID 是 DeleteByAccountIDs 使用的元数据键。
	MetadataAccountID = "account_id"
)

// Config 向量索引客户端配置。
type Config struct {
	// IndexName 索引或集合名称。
	IndexName string `json:"index_name" validate:"required,indexname"`
	// Namespace 所有读写操作的命名空间。
	Namespace string `json:"namespace" validate:"required,nowhitespace,max=256"`
	// Dimension 向量维度。
	Dimension int `json:"dimension" validate:"gt=0"`

	ChunkSize    int `json:"chunk_size" validate:"gt=0"`
	ChunkOverlap int `json:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`

	UpsertBatchSize   int `json:"upsert_batch_size" validate:"gt=0"`
	UpsertConcurrency int `json:"upsert_concurrency" validate:"gt=0"`

	// TopK 默认返回条数。
	TopK int `json:"top_k" validate:"gt=0"`
	// MinScore 分数不高于该值的命中被丢弃。
	MinScore float64 `json:"min_score" validate:"gte=-1,lte=1"`
	// SaltKey 参与记录 ID 计算的元数据键，account_id 总会参与计算。
	SaltKey string `json:"salt_key" validate:"omitempty,identifier"`

	ReadyPollInterval time.Duration `json:"ready_poll_interval" validate:"gt=0"`
	ReadyTimeout      time.Duration `json:"ready_timeout" validate:"gt=0"`
	// ReadyMaxAttempts 为 0 时仅受 ReadyTimeout 限制。
	ReadyMaxAttempts int `json:"ready_max_attempts" validate:"gte=0"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		IndexName:         "vector_index",
		Namespace:         "default",
		Dimension:         1536,
		ChunkSize:         500,
		ChunkOverlap:      20,
		UpsertBatchSize:   DefaultUpsertBatchSize,
		UpsertConcurrency: DefaultUpsertConcurrency,
		TopK:              DefaultTopK,
		MinScore:          DefaultMinScore,
		SaltKey:           DefaultSaltKey,
		ReadyPollInterval: DefaultReadyPollInterval,
		ReadyTimeout:      DefaultReadyTimeout,
		ReadyMaxAttempts:  DefaultReadyMaxAttempts,
	}
}

// ConfigFromOptions 由命令行选项构造配置。
func ConfigFromOptions(o *vectoropts.Options) *Config {
	return &Config{
		IndexName:         o.IndexName,
		Namespace:         o.Namespace,
		Dimension:         o.Dimensions,
		ChunkSize:         o.ChunkSize,
		ChunkOverlap:      o.ChunkOverlap,
		UpsertBatchSize:   o.UpsertBatchSize,
		UpsertConcurrency: o.UpsertConcurrency,
		TopK:              o.TopK,
		MinScore:          o.MinScore,
		SaltKey:           o.SaltKey,
		ReadyPollInterval: o.ReadyPollInterval,
		ReadyTimeout:      o.ReadyTimeout,
		ReadyMaxAttempts:  o.ReadyMaxAttempts,
	}
}

// Validate 校验配置，失败时返回 ErrVectorInvalidConfig。
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrVectorInvalidConfig.WithMessage("config is nil")
	}
	if verrs := validator.Struct(c); verrs.HasErrors() {
		return errors.ErrVectorInvalidConfig.WithCause(verrs)
	}
	return nil
}
