package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
)

// VertexClient calls Gemini through Vertex AI using application default credentials.
type VertexClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

// VertexConfig holds Vertex AI connection settings.
type VertexConfig struct {
	Project     string
	Location    string
	Model       string
	Temperature float32
}

// NewVertexClient connects to Vertex AI in the given project and location.
func NewVertexClient(ctx context.Context, cfg VertexConfig) (*VertexClient, error) {
	if strings.TrimSpace(cfg.Project) == "" {
		return nil, domain.ConfigError("VERTEX_PROJECT is empty", nil)
	}

	cl, err := genai.NewClient(ctx, cfg.Project, cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	name := strings.TrimSpace(cfg.Model)
	m := cl.GenerativeModel(name)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      genai.Ptr(cfg.Temperature),
		ResponseMIMEType: responseMIMEType,
		ResponseSchema:   vertexResponseSchema(),
	}
	// Drawings routinely trip the default filters on dimension text.
	m.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockOnlyHigh},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockOnlyHigh},
	}

	return &VertexClient{client: cl, model: m, name: name}, nil
}

// Model returns the model name.
func (v *VertexClient) Model() string { return v.name }

// Generate sends the drawing followed by the instruction and returns the first text part.
func (v *VertexClient) Generate(ctx context.Context, data []byte, mimeType string) (string, error) {
	resp, err := v.model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text(Instruction),
	)
	if err != nil {
		return "", err
	}

	txt := vertexFirstText(resp)
	if txt == "" {
		return "", errors.New("vertex: response has no text part")
	}
	return txt, nil
}

// Close releases the underlying connection.
func (v *VertexClient) Close() error {
	return v.client.Close()
}

func vertexResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			FieldStructuredData: {Type: genai.TypeString, Description: structuredDataDescription},
			FieldVectorDrawing:  {Type: genai.TypeString, Description: vectorDrawingDescription},
		},
		Required: []string{FieldStructuredData, FieldVectorDrawing},
	}
}

func vertexFirstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
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
