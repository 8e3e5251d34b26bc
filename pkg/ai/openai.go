package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIChat calls an OpenAI compatible chat completions endpoint.
type OpenAIChat struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIChat builds a client. baseURL may be empty for the public API and
// must include the /v1 prefix otherwise.
func NewOpenAIChat(baseURL, apiKey, model string, temperature float64) (*OpenAIChat, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("openai model required")
	}
	return &OpenAIChat{
		client:      newOpenAIClient(baseURL, apiKey),
		model:       model,
		temperature: float32(temperature),
	}, nil
}

func newOpenAIClient(baseURL, apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		cfg.BaseURL = base
	}
	return openai.NewClientWithConfig(cfg)
}

func (o *OpenAIChat) request(messages []Message) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return req
}

// GenerateText implements TextGenerator.
func (o *OpenAIChat) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.request(promptMessages(systemPrompt, userPrompt)))
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from openai")
	}
	slog.Debug("openai completion", "model", o.model, "finish_reason", resp.Choices[0].FinishReason)
	return text, nil
}

// Stream implements ChatModel.
func (o *OpenAIChat) Stream(ctx context.Context, messages []Message, onToken func(string) error) error {
	req := o.request(messages)
	req.Stream = true
	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("openai stream: %w", err)
	}
	defer stream.Close()
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("openai stream recv: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		if err := onToken(resp.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
}
