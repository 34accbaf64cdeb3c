package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
)

// GeminiClient calls the Gemini API with an API key.
type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

// GeminiConfig holds Gemini connection settings.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
}

// NewGeminiClient connects to the Gemini API. An empty key is a config error.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, domain.ConfigError("GEMINI_API_KEY is empty", nil)
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	name := strings.TrimSpace(cfg.Model)
	m := cl.GenerativeModel(name)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(cfg.Temperature),
		ResponseMIMEType: responseMIMEType,
		ResponseSchema:   geminiResponseSchema(),
	}

	return &GeminiClient{client: cl, model: m, name: name}, nil
}

// Model returns the model name.
func (g *GeminiClient) Model() string { return g.name }

// Generate sends the drawing followed by the instruction and returns the first text part.
func (g *GeminiClient) Generate(ctx context.Context, data []byte, mimeType string) (string, error) {
	resp, err := g.model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text(Instruction),
	)
	if err != nil {
		return "", err
	}

	txt := geminiFirstText(resp)
	if txt == "" {
		return "", errors.New("gemini: response has no text part")
	}
	return txt, nil
}

// Close releases the underlying connection.
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

func geminiResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			FieldStructuredData: {Type: genai.TypeString, Description: structuredDataDescription},
			FieldVectorDrawing:  {Type: genai.TypeString, Description: vectorDrawingDescription},
		},
		Required: []string{FieldStructuredData, FieldVectorDrawing},
	}
}

func geminiFirstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}
