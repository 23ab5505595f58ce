// Package gateway wires the dialect adapters, normalizer, provider registry
// and upstream client into one request lifecycle per inbound call.
//
// Request flow:
//   - dialect adapter parses the body into the canonical request
//   - normalization passes rewrite the message list
//   - the registry resolves the provider profile from the model prefix
//   - the upstream client executes with retry and credential rotation
//   - the adapter's response side converts back to the caller's format
package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/omnirelay/llm-gateway/internal/config"
	"github.com/omnirelay/llm-gateway/internal/dialect"
	"github.com/omnirelay/llm-gateway/internal/monitoring"
	"github.com/omnirelay/llm-gateway/internal/providers"
	"github.com/omnirelay/llm-gateway/internal/upstream"
)

// Version is reported by the version and health endpoints.
const Version = "0.2.0"

// Gateway holds the process-wide collaborators shared by all requests.
type Gateway struct {
	cfg      *config.Config
	registry *providers.Registry
	client   *upstream.Client
	catalog  *Catalog

	feed    *monitoring.Feed
	tracker *monitoring.Tracker

	ollama    *dialect.OllamaAdapter
	openai    *dialect.OpenAIAdapter
	anthropic *dialect.AnthropicAdapter
}

// New builds a gateway from the resolved configuration.
func New(cfg *config.Config) (*Gateway, error) {
	registry, err := providers.NewRegistry(cfg)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		cfg:       cfg,
		registry:  registry,
		client:    upstream.NewClient(cfg.MaxAttempts, cfg.RetryBackoff),
		catalog:   NewCatalog(cfg.ModelsPath),
		feed:      monitoring.NewFeed(),
		ollama:    dialect.NewOllamaAdapter(),
		openai:    dialect.NewOpenAIAdapter(),
		anthropic: dialect.NewAnthropicAdapter(),
	}

	if cfg.TelemetryDB != "" {
		tracker, err := monitoring.NewTracker(cfg.TelemetryDB)
		if err != nil {
			// Telemetry is not worth refusing to serve over.
			log.Error().Err(err).Str("path", cfg.TelemetryDB).Msg("telemetry database unavailable")
		} else {
			g.tracker = tracker
		}
	}

	log.Info().Strs("providers", registry.Names()).Int("max_attempts", cfg.MaxAttempts).Msg("gateway ready")
	return g, nil
}

// Routes returns the HTTP handler covering all gateway endpoints.
func (g *Gateway) Routes() http.Handler {
	mux := http.NewServeMux()

	// Chat endpoints, one per dialect.
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		g.handleChat(w, r, g.ollama)
	})
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		g.handleChat(w, r, g.openai)
	})
	mux.HandleFunc("POST /v1/messages", func(w http.ResponseWriter, r *http.Request) {
		g.handleChat(w, r, g.anthropic)
	})

	// Static catalog and status endpoints.
	mux.HandleFunc("GET /", g.handleRoot)
	mux.HandleFunc("GET /api/version", g.handleVersion)
	mux.HandleFunc("GET /api/tags", g.handleTags)
	mux.HandleFunc("GET /v1/models", g.handleModels)
	mux.HandleFunc("GET /health", g.handleHealth)

	// Observability.
	mux.Handle("GET /metrics", monitoring.MetricsHandler())
	mux.HandleFunc("GET /api/events", g.handleEvents)

	return mux
}

// Close releases gateway resources.
func (g *Gateway) Close() {
	if err := g.tracker.Close(); err != nil {
		log.Debug().Err(err).Msg("tracker close")
	}
}
