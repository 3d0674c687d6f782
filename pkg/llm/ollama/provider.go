// Package ollama 提供 Ollama Embedding 供应商，调用 /api/embed 批量接口。
package ollama

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/vecstore/pkg/llm"
	"github.com/kart-io/vecstore/pkg/utils/httpclient"
)

// ProviderName 是 Ollama 供应商的名称标识符。
const ProviderName = "ollama"

func init() {
	llm.RegisterEmbeddingProvider(ProviderName, NewProvider)
}

// Config Ollama 供应商配置。
type Config struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	EmbedModel string        `json:"embed_model" mapstructure:"embed_model"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
	// KeepAlive 控制模型在请求后驻留内存的时长，如 "5m"，为空时使用服务端默认。
	KeepAlive string `json:"keep_alive" mapstructure:"keep_alive"`
	// NoTruncate 为 true 时超出上下文长度的输入直接报错，而不是被服务端截断。
	NoTruncate bool `json:"no_truncate" mapstructure:"no_truncate"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:11434",
		EmbedModel: "nomic-embed-text",
		Timeout:    120 * time.Second,
	}
}

// Provider Ollama 供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
}

// NewProvider 从配置 map 创建 Ollama 供应商，Ollama 不需要 API Key。
func NewProvider(configMap map[string]any) (llm.EmbeddingProvider, error) {
	cfg := DefaultConfig()
	llm.Override(configMap, "base_url", &cfg.BaseURL)
	llm.Override(configMap, "embed_model", &cfg.EmbedModel)
	llm.Override(configMap, "timeout", &cfg.Timeout)
	llm.Override(configMap, "max_retries", &cfg.MaxRetries)
	llm.Override(configMap, "keep_alive", &cfg.KeepAlive)
	llm.Override(configMap, "no_truncate", &cfg.NoTruncate)
	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建 Ollama 供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

// Model 返回 Embedding 模型名称。
func (p *Provider) Model() string {
	return p.config.EmbedModel
}

type embedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
	Truncate  *bool    `json:"truncate,omitempty"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed 为多个文本生成向量嵌入，一次请求发送全部输入。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := embedRequest{Model: p.config.EmbedModel, Input: texts, KeepAlive: p.config.KeepAlive}
	if p.config.NoTruncate {
		truncate := false
		req.Truncate = &truncate
	}

	var resp embedResponse
	if err := p.client.PostJSON(ctx, p.config.BaseURL+"/api/embed", nil, req, &resp); err != nil {
		return nil, err
	}
	if err := llm.CheckEmbeddings(ProviderName, len(texts), resp.Embeddings); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

var _ llm.EmbeddingProvider = (*Provider)(nil)
