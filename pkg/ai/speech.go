package ai

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Speech turns text into mp3 audio.
type Speech interface {
	Synthesize(ctx context.Context, voice, text string) (io.ReadCloser, error)
}

// OpenAISpeech uses the OpenAI text-to-speech endpoint.
type OpenAISpeech struct {
	client *openai.Client
	model  openai.SpeechModel
}

// NewOpenAISpeech builds a speech client. model defaults to tts-1.
func NewOpenAISpeech(baseURL, apiKey, model string) *OpenAISpeech {
	m := openai.TTSModel1
	if strings.TrimSpace(model) != "" {
		m = openai.SpeechModel(strings.TrimSpace(model))
	}
	return &OpenAISpeech{client: newOpenAIClient(baseURL, apiKey), model: m}
}

// Synthesize returns mp3 bytes for text spoken by voice. Callers close the reader.
func (s *OpenAISpeech) Synthesize(ctx context.Context, voice, text string) (io.ReadCloser, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("speech text required")
	}
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	return resp, nil
}
