package podcast

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"surfsense/pkg/ai"
	"surfsense/pkg/storage"
)

// Config shapes the generated conversation.
type Config struct {
	WordCount            int
	Name                 string
	Tagline              string
	Language             string
	Instructions         string
	EngagementTechniques []string
}

// DefaultConfig returns the house style for a target length.
func DefaultConfig(wordCount int) Config {
	if wordCount <= 0 {
		wordCount = DefaultWordCount
	}
	return Config{
		WordCount:    wordCount,
		Name:         "SurfSense Podcast",
		Tagline:      "Your Personal AI Podcast",
		Language:     "English",
		Instructions: "Make it engaging and informative",
		EngagementTechniques: []string{
			"Rhetorical Questions",
			"Personal Testimonials",
			"Quotes",
			"Anecdotes",
			"Analogies",
			"Humor",
		},
	}
}

// Synthesizer renders content into an audio file and returns its location.
type Synthesizer interface {
	Synthesize(ctx context.Context, content string, wordCount int) (string, error)
}

// Turn is one line of the two-host transcript.
type Turn struct {
	Speaker int
	Text    string
}

// LLMSynthesizer writes a transcript with a language model, voices it with
// text to speech and stores the mp3 in an object store.
type LLMSynthesizer struct {
	writer  ai.TextGenerator
	speech  ai.Speech
	objects storage.ObjectStore
	voices  [2]string
	now     func() time.Time
}

// NewLLMSynthesizer builds the default synthesizer.
func NewLLMSynthesizer(writer ai.TextGenerator, speech ai.Speech, objects storage.ObjectStore) *LLMSynthesizer {
	return &LLMSynthesizer{
		writer:  writer,
		speech:  speech,
		objects: objects,
		voices:  [2]string{"alloy", "onyx"},
		now:     time.Now,
	}
}

// Synthesize implements Synthesizer.
func (s *LLMSynthesizer) Synthesize(ctx context.Context, content string, wordCount int) (string, error) {
	cfg := DefaultConfig(wordCount)
	raw, err := s.writer.GenerateText(ctx, transcriptPrompt(cfg), content)
	if err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	turns := ParseTranscript(raw)
	if len(turns) == 0 {
		return "", fmt.Errorf("empty transcript")
	}

	var audio bytes.Buffer
	for i, turn := range turns {
		rc, err := s.speech.Synthesize(ctx, s.voices[turn.Speaker%2], turn.Text)
		if err != nil {
			return "", fmt.Errorf("speak turn %d: %w", i, err)
		}
		_, err = io.Copy(&audio, rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read audio for turn %d: %w", i, err)
		}
	}

	key := fileName(s.now())
	if err := s.objects.Put(ctx, key, bytes.NewReader(audio.Bytes()), int64(audio.Len()), "audio/mpeg"); err != nil {
		return "", fmt.Errorf("store audio: %w", err)
	}
	return key, nil
}

func transcriptPrompt(cfg Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You write scripts for %q, %s.\n", cfg.Name, cfg.Tagline)
	fmt.Fprintf(&b, "Turn the user's content into a lively conversation between two hosts in %s of about %d words.\n", cfg.Language, cfg.WordCount)
	fmt.Fprintf(&b, "Use these engagement techniques: %s.\n", strings.Join(cfg.EngagementTechniques, ", "))
	fmt.Fprintf(&b, "%s.\n", cfg.Instructions)
	b.WriteString("Write every line as \"HOST1: text\" or \"HOST2: text\" with no other markup.")
	return b.String()
}

// ParseTranscript reads HOST1/HOST2 lines. Lines without a speaker tag are
// appended to the previous turn.
func ParseTranscript(raw string) []Turn {
	var turns []Turn
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "*"))
		if line == "" {
			continue
		}
		speaker := -1
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "HOST1:"), strings.HasPrefix(upper, "HOST 1:"):
			speaker = 0
		case strings.HasPrefix(upper, "HOST2:"), strings.HasPrefix(upper, "HOST 2:"):
			speaker = 1
		}
		if speaker < 0 {
			if len(turns) > 0 {
				turns[len(turns)-1].Text += " " + line
			} else {
				turns = append(turns, Turn{Speaker: 0, Text: line})
			}
			continue
		}
		text := strings.TrimSpace(strings.TrimLeft(line[strings.Index(line, ":")+1:], "* "))
		if text == "" {
			continue
		}
		turns = append(turns, Turn{Speaker: speaker, Text: text})
	}
	return turns
}

func fileName(t time.Time) string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("podcast_%s_%s.mp3", t.Format("20060102_150405"), hex.EncodeToString(b))
}
