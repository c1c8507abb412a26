package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/user/cinesearch/internal/metrics"
)

// EmbeddingRequest Ollama embedding API 请求结构
type EmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// EmbeddingResponse Ollama embedding API 响应结构
type EmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// OllamaEmbedder 调用 Ollama API 生成向量，查询文本的向量会缓存
type OllamaEmbedder struct {
	host   string
	model  string
	client *http.Client
	cache  *TTLCache[[]float32]
}

// NewOllamaEmbedder 创建向量生成器
func NewOllamaEmbedder(host, model string) *OllamaEmbedder {
	if host == "" {
		host = "http://localhost:11434"
	}
	return &OllamaEmbedder{
		host:   host,
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
		cache:  NewTTLCache[[]float32](1000, time.Hour),
	}
}

// Embed 生成单条文本的向量
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.cache.Get(text); ok {
		metrics.EmbeddingCacheHitsTotal.Inc()
		return vec, nil
	}
	metrics.EmbeddingCacheMissesTotal.Inc()

	jsonData, err := json.Marshal(EmbeddingRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post request to ollama failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned error status: %d", resp.StatusCode)
	}

	var result EmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response failed: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("Ollama 返回了空向量")
	}

	e.cache.Set(text, result.Embedding)
	return result.Embedding, nil
}
