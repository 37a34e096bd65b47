// Package openai implements the language model port against an
// OpenAI-compatible chat completion endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/askadmit/askadmit/internal/config"
	"github.com/askadmit/askadmit/internal/port/llm"
)

// Client implements llm.Client using the OpenAI chat completion API.
type Client struct {
	client *goopenai.Client
	model  string
}

// New creates a model client from config. BaseURL may point at any
// OpenAI-compatible proxy.
func New(cfg config.Model) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("model api key is required")
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  cfg.ChatModel,
	}, nil
}

// Complete sends a single-turn prompt and returns the raw text reply.
// Failures are wrapped in *llm.Error so the dispatcher can classify them.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return "", &llm.Error{Err: errors.New("completion returned no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

// wrapError converts provider errors into *llm.Error, preserving the HTTP
// status where the API reported one. The original error stays in the wrap
// chain so network-level causes remain inspectable.
func wrapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &llm.Error{Status: apiErr.HTTPStatusCode, Err: fmt.Errorf("openai: %w", err)}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &llm.Error{Status: reqErr.HTTPStatusCode, Err: fmt.Errorf("openai: %w", err)}
	}
	return &llm.Error{Err: fmt.Errorf("openai: %w", err)}
}
