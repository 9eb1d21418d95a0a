package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// TextGenerator turns a prompt into model text.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Gemini asks a Google Gemini model for news items.
type Gemini struct {
	gen     TextGenerator
	timeout time.Duration
	closer  func() error
}

// NewGemini connects to the Gemini API with the given key and model.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key not configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{
		gen:     &genaiGenerator{model: client.GenerativeModel(model)},
		timeout: timeout,
		closer:  client.Close,
	}, nil
}

// NewGeminiWithGenerator builds a Gemini provider over an arbitrary generator.
func NewGeminiWithGenerator(gen TextGenerator, timeout time.Duration) *Gemini {
	return &Gemini{gen: gen, timeout: timeout}
}

func (g *Gemini) Name() string { return SourceGemini }

// Fetch prompts the model and decodes the JSON array in its answer.
func (g *Gemini) Fetch(ctx context.Context, category string, limit int) ([]RawArticle, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	text, err := g.gen.Generate(ctx, newsPrompt(category, limit))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	return parseItems(text)
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer()
}

type genaiGenerator struct {
	model *genai.GenerativeModel
}

func (g *genaiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("no response from gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}
