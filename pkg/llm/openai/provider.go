// Package openai 提供 OpenAI Embedding 供应商实现。
// 同时支持兼容 OpenAI API 的服务（如 Azure OpenAI、LocalAI、vLLM 等）。
//
// 基本用法示例：
//
//	import _ "github.com/kart-io/vecstore/pkg/llm/openai"
//
//	provider, err := llm.NewEmbeddingProvider("openai", map[string]any{
//	    "api_key":     "your-api-key",
//	    "embed_model": "text-embedding-3-small",
//	    "dimensions":  1536,
//	})
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/vecstore/pkg/llm"
	"github.com/kart-io/vecstore/pkg/utils/httpclient"
)

// ProviderName 是 OpenAI 供应商的名称标识符。
const ProviderName = "openai"

func init() {
	llm.RegisterEmbeddingProvider(ProviderName, NewProvider)
}

// Config OpenAI 供应商配置。
type Config struct {
	// BaseURL API 基础地址，可设置为兼容 API 地址。
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// APIKey API 密钥。
	APIKey string `json:"api_key" mapstructure:"api_key"`

	// EmbedModel 用于生成嵌入的模型。
	EmbedModel string `json:"embed_model" mapstructure:"embed_model"`

	// Dimensions 输出向量维度，0 表示使用模型默认值。
	Dimensions int `json:"dimensions" mapstructure:"dimensions"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 5xx 与网络错误的重试次数，默认不重试。
	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`

	// Organization 组织 ID（可选）。
	Organization string `json:"organization" mapstructure:"organization"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.openai.com/v1",
		EmbedModel: "text-embedding-3-small",
		Timeout:    120 * time.Second,
	}
}

// Provider OpenAI 供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
}

// NewProvider 从配置 map 创建 OpenAI 供应商。
func NewProvider(configMap map[string]any) (llm.EmbeddingProvider, error) {
	cfg := DefaultConfig()

	llm.Override(configMap, "base_url", &cfg.BaseURL)
	llm.Override(configMap, "api_key", &cfg.APIKey)
	llm.Override(configMap, "embed_model", &cfg.EmbedModel)
	llm.Override(configMap, "dimensions", &cfg.Dimensions)
	llm.Override(configMap, "timeout", &cfg.Timeout)
	llm.Override(configMap, "max_retries", &cfg.MaxRetries)
	llm.Override(configMap, "organization", &cfg.Organization)

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api_key 是必需的")
	}

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建 OpenAI 供应商。
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

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed 为多个文本生成向量嵌入。
// 响应按 data[].index 归位，缺失任一结果即视为失败。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	reqBody := embeddingRequest{
		Model:      p.config.EmbedModel,
		Input:      texts,
		Dimensions: p.config.Dimensions,
	}

	var embedResp embeddingResponse
	if err := p.client.PostJSON(ctx, p.config.BaseURL+"/embeddings", p.headers(), reqBody, &embedResp); err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range embedResp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}
	if err := llm.CheckEmbeddings(ProviderName, len(texts), embeddings); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (p *Provider) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+p.config.APIKey)
	if p.config.Organization != "" {
		h.Set("OpenAI-Organization", p.config.Organization)
	}
	return h
}

var _ llm.EmbeddingProvider = (*Provider)(nil)
