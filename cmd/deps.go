package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/facebuddy/facebuddy/internal/agent"
	"github.com/facebuddy/facebuddy/internal/ai"
	"github.com/facebuddy/facebuddy/internal/blobstore"
	"github.com/facebuddy/facebuddy/internal/config"
	"github.com/facebuddy/facebuddy/internal/database"
	_ "github.com/facebuddy/facebuddy/internal/database/mariadb"
	_ "github.com/facebuddy/facebuddy/internal/database/postgres"
	"github.com/facebuddy/facebuddy/internal/gallery"
	"github.com/facebuddy/facebuddy/internal/humanity"
	"github.com/facebuddy/facebuddy/internal/logger"
)

// openStore connects to DATABASE_URL, or returns nil for an in-memory gallery.
func openStore(cfg *config.Config) (database.Backend, error) {
	store, err := database.Open(&cfg.Database)
	if errors.Is(err, database.ErrNoDatabase) {
		logger.Warning("DATABASE_URL not set, registrations are kept in memory only")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open gallery database: %w", err)
	}
	logger.Info("gallery database connected", logger.Options{Key: "backend", Data: store.Name()})
	return store, nil
}

// newGalleryService wires the store, blob store and credential issuer into a
// gallery service and loads the current faces.
func newGalleryService(ctx context.Context, cfg *config.Config, store database.Backend) (*gallery.Service, error) {
	opts := []gallery.Option{
		gallery.WithBlobStore(blobstore.NewWalrus(
			cfg.Walrus.PublisherURL,
			cfg.Walrus.AggregatorURL,
			cfg.Walrus.Epochs,
			cfg.Walrus.Enabled,
		)),
		gallery.WithThreshold(cfg.Gallery.MatchThreshold),
	}
	if issuer := humanity.NewClient(cfg.Humanity.IssuerURL, cfg.Humanity.APIKey); issuer.Enabled() {
		opts = append(opts, gallery.WithIssuer(issuer))
	}

	svc := gallery.NewService(store, opts...)
	if err := svc.Bootstrap(ctx, cfg.Gallery.BlobID); err != nil {
		return nil, fmt.Errorf("failed to load gallery: %w", err)
	}
	return svc, nil
}

// newInferer picks the agent backend named by FACEBUDDY_AGENT_PROVIDER.
func newInferer(ctx context.Context, cfg *config.Config) (ai.Inferer, error) {
	switch cfg.Agent.Provider {
	case "", "http":
		return ai.NewHTTPInferer(cfg.Agent.URL, cfg.Agent.Timeout), nil
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN environment variable is required for the openai provider")
		}
		return ai.NewOpenAIInferer(cfg.OpenAI.Token), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY environment variable is required for the gemini provider")
		}
		return ai.NewGeminiInferer(ctx, cfg.Gemini.APIKey)
	default:
		return nil, fmt.Errorf("unknown agent provider %q (use http, openai or gemini)", cfg.Agent.Provider)
	}
}

// newRunner builds the recognition pipeline used by the agent endpoint.
func newRunner(ctx context.Context, cfg *config.Config, detector agent.Detector, svc *gallery.Service) (*agent.Runner, error) {
	inferer, err := newInferer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("agent provider ready", logger.Options{Key: "provider", Data: inferer.Name()})

	return agent.NewRunner(detector, svc, agent.NewDispatcher(inferer),
		agent.WithThreshold(cfg.Gallery.MatchThreshold),
		agent.WithTrigger(true),
		agent.WithAssets(cfg),
	), nil
}
