package transform

import (
	"context"
	"io"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/config"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
)

// GeneratorCloser is a Generator holding a connection.
type GeneratorCloser interface {
	Generator
	io.Closer
}

// NewGenerator builds the backend selected by cfg.Provider.
func NewGenerator(ctx context.Context, cfg config.RemoteConfig) (GeneratorCloser, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		g, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	case config.ProviderVertex:
		v, err := NewVertexClient(ctx, VertexConfig{
			Project:     cfg.Vertex.Project,
			Location:    cfg.Vertex.Location,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, domain.ConfigError("unknown remote provider: "+cfg.Provider, nil)
	}
}
