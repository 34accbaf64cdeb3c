// Package transform performs the single schema-constrained call to the remote
// generative model and validates what comes back.
package transform

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/encoder"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/observability"
)

// Transformer turns an encoded drawing into its two artifacts.
type Transformer interface {
	Transform(ctx context.Context, payload domain.EncodedPayload) (domain.ProcessedResult, error)
}

// Generator performs the raw model call and returns the response text.
type Generator interface {
	Generate(ctx context.Context, data []byte, mimeType string) (string, error)
	Model() string
}

// Client validates Generator output against the response contract.
type Client struct {
	gen    Generator
	logger *observability.Logger
}

// NewClient creates a transform client over gen.
func NewClient(gen Generator, logger *observability.Logger) *Client {
	return &Client{
		gen:    gen,
		logger: logger.WithOperation("transform"),
	}
}

// Transform makes exactly one remote call. Transport problems come back as a
// TransportFailure and contract violations as a MalformedResponse; both keep
// the underlying cause in the error chain for logging.
func (c *Client) Transform(ctx context.Context, payload domain.EncodedPayload) (domain.ProcessedResult, error) {
	data, err := encoder.Decode(payload)
	if err != nil {
		return domain.ProcessedResult{}, err
	}

	start := time.Now()
	text, err := c.gen.Generate(ctx, data, payload.MIMEType)
	if err != nil {
		c.logger.WithContext(ctx).Error().
			Err(err).
			Str("model", c.gen.Model()).
			Dur("elapsed", time.Since(start)).
			Msg("Remote call failed")
		return domain.ProcessedResult{}, domain.TransportFailure("remote transform failed", err)
	}

	result, err := ParseResponse(text)
	if err != nil {
		c.logger.WithContext(ctx).Warn().
			Err(err).
			Str("model", c.gen.Model()).
			Int("response_bytes", len(text)).
			Msg("Remote response rejected")
		return domain.ProcessedResult{}, err
	}

	c.logger.WithContext(ctx).Debug().
		Str("model", c.gen.Model()).
		Dur("elapsed", time.Since(start)).
		Int("structured_bytes", len(result.StructuredData)).
		Int("vector_bytes", len(result.VectorDrawing)).
		Msg("Remote transform complete")

	return result, nil
}

// ParseResponse validates the model's JSON body. Both fields must be present
// and non-blank. A field returned as a JSON object instead of a string is kept
// as its raw JSON text.
func ParseResponse(text string) (domain.ProcessedResult, error) {
	text = StripCodeFences(strings.TrimSpace(text))
	if text == "" {
		return domain.ProcessedResult{}, domain.MalformedResponse("empty AI response", nil)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return domain.ProcessedResult{}, domain.MalformedResponse("AI response is not a JSON object", err)
	}

	structured, ok1 := fieldText(raw[FieldStructuredData])
	vector, ok2 := fieldText(raw[FieldVectorDrawing])
	result := domain.ProcessedResult{StructuredData: structured, VectorDrawing: vector}
	if !ok1 || !ok2 || !result.Complete() {
		return domain.ProcessedResult{}, domain.MalformedResponse("AI response is missing required fields.", nil)
	}

	return result, nil
}

func fieldText(msg json.RawMessage) (string, bool) {
	trimmed := strings.TrimSpace(string(msg))
	if trimmed == "" || trimmed == "null" {
		return "", false
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return "", false
		}
		return s, true
	case '{', '[':
		return trimmed, true
	}
	return "", false
}

// StripCodeFences removes a surrounding ```json ... ``` block, if any.
func StripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
