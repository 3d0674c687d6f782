// Package embedding provides embedding provider configuration options.
package embedding

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/vecstore/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 定义 Embedding 供应商配置。
type Options struct {
	// Provider 供应商名称（openai, ollama）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址，为空时使用供应商默认值。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey API 密钥，为空时从 OPENAI_API_KEY 读取。
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 使用的模型名称。
	Model string `json:"model" mapstructure:"model"`

	// Dimensions 请求的向量维度，0 表示使用模型默认维度。
	Dimensions int `json:"dimensions" mapstructure:"dimensions"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxBatch 单次请求的最大文本数。
	MaxBatch int `json:"max-batch" mapstructure:"max-batch"`

	// Organization 组织 ID（OpenAI 可选）。
	Organization string `json:"organization" mapstructure:"organization"`

	// Resilient 启用重试与熔断包装。
	Resilient bool `json:"resilient" mapstructure:"resilient"`

	// RetryAttempts 启用 Resilient 时的最大尝试次数。
	RetryAttempts int `json:"retry-attempts" mapstructure:"retry-attempts"`

	// CacheEnabled 启用 Redis 向量缓存。
	CacheEnabled bool `json:"cache-enabled" mapstructure:"cache-enabled"`

	// CacheTTL 缓存过期时间。
	CacheTTL time.Duration `json:"cache-ttl" mapstructure:"cache-ttl"`
}

// NewOptions 创建默认 Embedding 配置。
func NewOptions() *Options {
	return &Options{
		Provider:      "openai",
		Model:         "text-embedding-3-small",
		Timeout:       60 * time.Second,
		MaxBatch:      2048,
		RetryAttempts: 3,
		CacheTTL:      24 * time.Hour,
	}
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *Options) ToConfigMap() map[string]any {
	m := map[string]any{
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"dimensions":   o.Dimensions,
		"timeout":      o.Timeout,
		"organization": o.Organization,
	}
	if o.BaseURL != "" {
		m["base_url"] = o.BaseURL
	}
	return m
}

// AddFlags adds flags for embedding options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "embedding."
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "Embedding provider (openai, ollama).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "Embedding API base URL.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "Embedding API key (prefer the OPENAI_API_KEY env var).")
	fs.StringVar(&o.Model, p+"model", o.Model, "Embedding model name.")
	fs.IntVar(&o.Dimensions, p+"dimensions", o.Dimensions, "Requested embedding dimensions (0 uses the model default).")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Embedding request timeout.")
	fs.IntVar(&o.MaxBatch, p+"max-batch", o.MaxBatch, "Maximum number of texts per embedding request.")
	fs.StringVar(&o.Organization, p+"organization", o.Organization, "OpenAI organization ID (optional).")
	fs.BoolVar(&o.Resilient, p+"resilient", o.Resilient, "Retry transient embedding failures behind a circuit breaker.")
	fs.IntVar(&o.RetryAttempts, p+"retry-attempts", o.RetryAttempts, "Maximum attempts when --embedding.resilient is set.")
	fs.BoolVar(&o.CacheEnabled, p+"cache-enabled", o.CacheEnabled, "Cache embeddings in Redis.")
	fs.DurationVar(&o.CacheTTL, p+"cache-ttl", o.CacheTTL, "Embedding cache TTL.")
}

// Complete completes the embedding options with defaults.
func (o *Options) Complete() error {
	if o.APIKey == "" {
		o.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if o.MaxBatch <= 0 {
		o.MaxBatch = 2048
	}
	return nil
}

// Validate validates the embedding options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("embedding provider is required"))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("embedding model is required"))
	}
	// OpenAI 供应商需要 API key
	if o.Provider == "openai" && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("embedding api-key is required for openai provider"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("embedding timeout must be positive"))
	}
	if o.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("embedding dimensions must not be negative"))
	}
	if o.Resilient && o.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("embedding retry-attempts must be positive"))
	}
	if o.CacheEnabled && o.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("embedding cache-ttl must be positive"))
	}
	return errs
}
