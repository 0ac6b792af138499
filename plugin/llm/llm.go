// Package llm wraps the OpenAI-compatible chat API used as the
// generative fallback when no retrieval tier produces an answer.
package llm

import (
	"context"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// Service is the generative-model client interface.
type Service interface {
	// Chat performs one synchronous completion. Callers own the
	// timeout via ctx; a slow provider must never stall the tiered
	// retrieval path.
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Config holds the provider settings.
type Config struct {
	APIKey      string
	BaseURL     string // OpenAI 兼容端点，deepseek 等走这里
	Model       string
	MaxTokens   int
	Temperature float32
}

type service struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewService creates the client.
func NewService(cfg Config) (Service, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm: model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &service{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (s *service) Chat(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", errors.Wrap(err, "llm chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
