package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"question-rag/internal/config"
	"question-rag/internal/models"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var ErrNoChoices = errors.New("model returned no choices")

// Client performs single, non-streaming generation calls.
type Client struct {
	model llms.Model
	opts  []llms.CallOption
}

func NewModel(llmConfig *config.LLMConfig) (llms.Model, error) {
	switch llmConfig.Provider {
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(llmConfig.Model)}
		if llmConfig.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
		}
		return ollama.New(opts...)
	default:
		return openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		)
	}
}

func NewClient(llmConfig *config.LLMConfig) (*Client, error) {
	model, err := NewModel(llmConfig)
	if err != nil {
		return nil, fmt.Errorf("init %s model: %w", llmConfig.Provider, err)
	}
	return NewClientWithModel(model, llmConfig), nil
}

func NewClientWithModel(model llms.Model, llmConfig *config.LLMConfig) *Client {
	var opts []llms.CallOption
	if llmConfig.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(llmConfig.Temperature))
	}
	if llmConfig.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(llmConfig.MaxTokens))
	}
	return &Client{model: model, opts: opts}
}

func (c *Client) Model() llms.Model {
	return c.model
}

// Generate sends messages once and resolves the response into a Reply.
func (c *Client) Generate(ctx context.Context, messages []llms.MessageContent) (models.Reply, error) {
	res, err := c.model.GenerateContent(ctx, messages, c.opts...)
	if err != nil {
		return models.Reply{}, err
	}
	return ReplyFromResponse(res)
}

// ReplyFromResponse converts a langchaingo response. A single choice is
// plain text, several choices become assistant messages.
func ReplyFromResponse(res *llms.ContentResponse) (models.Reply, error) {
	if res == nil || len(res.Choices) == 0 {
		return models.Reply{}, ErrNoChoices
	}
	if len(res.Choices) == 1 {
		return models.PlainText(res.Choices[0].Content), nil
	}
	messages := make([]models.Message, 0, len(res.Choices))
	for _, choice := range res.Choices {
		if choice == nil {
			messages = append(messages, models.Message{Role: models.RoleAssistant})
			continue
		}
		content := choice.Content
		messages = append(messages, models.Message{Role: models.RoleAssistant, Content: &content})
	}
	return models.MessageList(messages), nil
}
