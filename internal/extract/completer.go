package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Task identifies which extraction instruction a request carries.
type Task string

const (
	TaskIndex   Task = "index"
	TaskListing Task = "listing"
)

// Request is one call to the extraction collaborator.
type Request struct {
	Task   Task
	System string
	User   string
}

// Completer is the probabilistic extraction service: it receives cleaned
// markup plus an instruction and answers with a JSON document. Answers are
// untrusted; callers decide how to fall back.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// OpenAIOptions configures an OpenAI-compatible chat completion endpoint.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAICompleter asks an OpenAI-compatible model for a JSON object.
type OpenAICompleter struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAICompleter creates a completer. BaseURL may point at any
// OpenAI-compatible gateway.
func NewOpenAICompleter(opts OpenAIOptions) (*OpenAICompleter, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("extract: LLM API key is required")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &OpenAICompleter{
		client:  openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		timeout: opts.Timeout,
	}, nil
}

func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	})
	if err != nil {
		return "", fmt.Errorf("extract: %s completion: %w", req.Task, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("extract: %s completion returned no choices", req.Task)
	}
	return resp.Choices[0].Message.Content, nil
}
