package utils

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ChatCompleter 通过 OpenAI 兼容接口（本地 Ollama、vLLM 等）完成单轮提示词
type ChatCompleter struct {
	model llms.Model
}

// NewChatCompleter 本地服务不需要鉴权时 token 传 "none"
func NewChatCompleter(baseURL, model, token string) (*ChatCompleter, error) {
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(token),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("创建 LLM 客户端失败: %w", err)
	}
	return &ChatCompleter{model: client}, nil
}

func (c *ChatCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, c.model, prompt, llms.WithTemperature(0))
}
