package ai

import (
	"context"
	"fmt"
	"strings"
)

// Message roles accepted by ChatModel implementations.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string
	Content string
}

// TextGenerator generates text from a system prompt and user prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ChatModel streams a completion token by token. Returning an error from
// onToken aborts the stream with that error.
type ChatModel interface {
	TextGenerator
	Stream(ctx context.Context, messages []Message, onToken func(token string) error) error
}

// ModelOptions configures NewChatModel.
type ModelOptions struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OllamaURL     string
	Temperature   float64
}

const localPrefix = "ollama:"

// NewChatModel picks a provider from the model name. Names prefixed with
// "ollama:" run against a local Ollama server; anything else is sent to the
// OpenAI compatible endpoint.
func NewChatModel(name string, opts ModelOptions) (ChatModel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("model name required")
	}
	if strings.HasPrefix(name, localPrefix) {
		return NewOllamaChat(opts.OllamaURL, strings.TrimPrefix(name, localPrefix), opts.Temperature)
	}
	return NewOpenAIChat(opts.OpenAIBaseURL, opts.OpenAIAPIKey, name, opts.Temperature)
}

// IsLocal reports whether name selects the local provider.
func IsLocal(name string) bool {
	return strings.HasPrefix(strings.TrimSpace(name), localPrefix)
}

// Collect runs Stream and returns the concatenated output.
func Collect(ctx context.Context, m ChatModel, messages []Message) (string, error) {
	var b strings.Builder
	err := m.Stream(ctx, messages, func(token string) error {
		b.WriteString(token)
		return nil
	})
	return b.String(), err
}

func promptMessages(systemPrompt, userPrompt string) []Message {
	msgs := make([]Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return append(msgs, Message{Role: RoleUser, Content: userPrompt})
}
