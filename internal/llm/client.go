package llm

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Completer generates a completion for a single prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// OpenAICompleter talks to any OpenAI compatible endpoint, Ollama's /v1
// API included.
type OpenAICompleter struct {
	client openai.Client
	model  string
}

func NewOpenAICompleter(baseURL, apiKey, model string, httpClient *http.Client) *OpenAICompleter {
	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAICompleter{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: c.model,
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty message content")
	}

	return content, nil
}

// Ping lists the models of the endpoint to check it is reachable.
func (c *OpenAICompleter) Ping(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
