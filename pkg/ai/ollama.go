package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
)

// OllamaChat runs chat completions against a local Ollama server.
type OllamaChat struct {
	llm         *ollama.LLM
	model       string
	temperature float64
}

// NewOllamaChat builds a client for model served at serverURL.
func NewOllamaChat(serverURL, model string, temperature float64) (*OllamaChat, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("ollama model required")
	}
	opts := []ollama.Option{ollama.WithModel(model)}
	if u := strings.TrimRight(strings.TrimSpace(serverURL), "/"); u != "" {
		opts = append(opts, ollama.WithServerURL(u))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init ollama: %w", err)
	}
	return &OllamaChat{llm: llm, model: model, temperature: temperature}, nil
}

func toMessageContent(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := schema.ChatMessageTypeHuman
		switch m.Role {
		case RoleSystem:
			role = schema.ChatMessageTypeSystem
		case RoleAssistant:
			role = schema.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

// GenerateText implements TextGenerator.
func (o *OllamaChat) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := o.llm.GenerateContent(ctx, toMessageContent(promptMessages(systemPrompt, userPrompt)),
		llms.WithTemperature(o.temperature))
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", fmt.Errorf("empty response from ollama")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// Stream implements ChatModel.
func (o *OllamaChat) Stream(ctx context.Context, messages []Message, onToken func(string) error) error {
	_, err := o.llm.GenerateContent(ctx, toMessageContent(messages),
		llms.WithTemperature(o.temperature),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return onToken(string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("ollama stream: %w", err)
	}
	return nil
}
