// Package contentgen drafts snippet content from a short prompt.
package contentgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/clipswift/internal/domain/apperr"
	"google.golang.org/genai"
)

const (
	DefaultModel = "gemini-2.0-flash"

	systemInstruction = "You are a helpful assistant that generates professional content for text snippets. " +
		"Generate concise, well-written content based on the user's prompt."
	temperature     = 0.7
	maxOutputTokens = 200
)

var ErrEmptyPrompt = fmt.Errorf("%w: prompt is required", apperr.ErrValidation)

// Generator turns a prompt into snippet content.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Model is the part of the GenAI client the generator uses.
type Model interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIGenerator generates content with the Gemini API.
type GenAIGenerator struct {
	models Model
	model  string
}

// NewGenAIGenerator creates a client for the Gemini API.
func NewGenAIGenerator(ctx context.Context, apiKey, model string) (*GenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GenAI API key is required", apperr.ErrValidation)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return NewGenerator(client.Models, model), nil
}

// NewGenerator wraps an existing model client.
func NewGenerator(models Model, model string) *GenAIGenerator {
	if model == "" {
		model = DefaultModel
	}
	return &GenAIGenerator{models: models, model: model}
}

func (g *GenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](temperature),
		MaxOutputTokens:   maxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: generate content: %v", apperr.ErrNetwork, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: %w", apperr.ErrNetwork, errors.New("model returned no content"))
	}
	return text, nil
}
