package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/omnirelay/llm-gateway/internal/chat"
	"github.com/omnirelay/llm-gateway/internal/config"
	"github.com/omnirelay/llm-gateway/internal/dialect"
	"github.com/omnirelay/llm-gateway/internal/monitoring"
	"github.com/omnirelay/llm-gateway/internal/providers"
	"github.com/omnirelay/llm-gateway/internal/upstream"
	"github.com/omnirelay/llm-gateway/internal/utils"
)

// handleChat runs the full request lifecycle for one dialect.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request, adapter dialect.Adapter) {
	start := time.Now()
	requestID := uuid.NewString()

	ev := monitoring.RequestEvent{
		Timestamp: start,
		RequestID: requestID,
		Dialect:   adapter.Name(),
	}
	finish := func(status int) {
		ev.Status = status
		ev.DurationMs = time.Since(start).Milliseconds()
		monitoring.RequestsTotal.WithLabelValues(ev.Dialect, orUnknown(ev.Provider), statusClass(status)).Inc()
		monitoring.RequestDuration.WithLabelValues(ev.Dialect, orUnknown(ev.Provider)).Observe(time.Since(start).Seconds())
		g.feed.Publish(ev)
		g.tracker.Record(ev)
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		ev.Error = "unreadable body"
		adapter.WriteError(w, http.StatusBadRequest, "failed to read request")
		finish(http.StatusBadRequest)
		return
	}

	req, err := adapter.ParseRequest(body)
	if err != nil {
		ev.Error = err.Error()
		adapter.WriteError(w, http.StatusBadRequest, err.Error())
		finish(http.StatusBadRequest)
		return
	}
	ev.Model = req.Model
	ev.Streamed = req.Stream

	// Resolution failures are client errors: fast, structured, no network.
	profile, strippedModel, err := g.registry.Resolve(req.Model)
	if err != nil {
		ev.Error = err.Error()
		adapter.WriteError(w, http.StatusBadRequest, "unsupported model: "+req.Model)
		finish(http.StatusBadRequest)
		return
	}
	ev.Provider = profile.Name

	messages := chat.Normalize(req.Messages, profile.MergeRoles)
	if len(messages) == 0 {
		ev.Error = "no usable message content"
		adapter.WriteError(w, http.StatusBadRequest, "messages contain no usable content")
		finish(http.StatusBadRequest)
		return
	}
	ev.InputTokens = chat.EstimateMessageTokens(messages)

	payload, err := buildPayload(strippedModel, messages, req.Stream, profile)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("payload build failed")
		ev.Error = "payload build failed"
		adapter.WriteError(w, http.StatusInternalServerError, "internal error")
		finish(http.StatusInternalServerError)
		return
	}

	log.Debug().
		Str("request_id", requestID).
		Str("dialect", adapter.Name()).
		Str("provider", profile.Name).
		Str("model", strippedModel).
		Bool("stream", req.Stream).
		Int("messages", len(messages)).
		Msg("dispatching upstream")

	resp, err := g.client.Send(r.Context(), profile, payload, req.Stream)
	if err != nil {
		if r.Context().Err() != nil {
			// Caller disconnected; nothing left to write.
			ev.Error = "client disconnected"
			finish(499)
			return
		}
		ev.Error = err.Error()
		switch {
		case errors.Is(err, upstream.ErrNoCredential):
			adapter.WriteError(w, http.StatusInternalServerError, "no credential configured for provider "+profile.Name)
		default:
			adapter.WriteError(w, http.StatusInternalServerError, "API request failed")
		}
		finish(http.StatusInternalServerError)
		return
	}

	if req.Stream {
		adapter.StreamResponse(w, resp, req.Model)
	} else {
		adapter.WriteResponse(w, resp, req.Model)
	}
	finish(resp.StatusCode)
}

// buildPayload serializes the outbound body and attaches the provider's
// opaque extra_body configuration when present.
func buildPayload(model string, messages []chat.Message, stream bool, profile *providers.Profile) ([]byte, error) {
	payload, err := utils.MarshalNoEscape(struct {
		Model    string         `json:"model"`
		Messages []chat.Message `json:"messages"`
		Stream   bool           `json:"stream"`
	}{model, messages, stream})
	if err != nil {
		return nil, err
	}
	if profile.ExtraBody != nil {
		payload, err = sjson.SetRawBytes(payload, "extra_body", profile.ExtraBody)
		if err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func statusClass(status int) string {
	switch {
	case status < 400:
		return "ok"
	case status < 500:
		return "client_error"
	default:
		return "server_error"
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// handleRoot mirrors the local-inference server banner so agent clients
// detect the gateway as a running Ollama instance.
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("Ollama is running"))
}

func (g *Gateway) handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"version": Version + "-openai-proxy"})
}

// handleTags lists the advertised models in local-inference form.
func (g *Gateway) handleTags(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"models": g.catalog.Models()})
}

// handleModels lists the advertised models in OpenAI list form.
func (g *Gateway) handleModels(w http.ResponseWriter, _ *http.Request) {
	models := g.catalog.Models()
	data := make([]map[string]any, 0, len(models))
	for _, m := range models {
		data = append(data, map[string]any{
			"id":       m.Model,
			"object":   "model",
			"created":  0,
			"owned_by": "proxy",
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
}

// handleHealth returns gateway health status.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"time":      time.Now().Format(time.RFC3339),
		"version":   Version,
		"providers": g.registry.Names(),
	})
}
