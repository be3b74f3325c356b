package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Client wraps the OpenAI SDK for the single call this backend makes:
// classify a free-form text dump into typed planner entries. The return
// value is raw model text and must be treated as untrusted by the caller.
type Client struct {
	client *openai.Client
	model  string
}

func New(apiKey, model string) *Client {
	return &Client{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (c *Client) Model() string { return c.model }

// Classify sends one chat completion and returns the assistant text as-is.
func (c *Client) Classify(ctx context.Context, text string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: classifySystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: BuildClassifyPrompt(text),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("classify: model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
