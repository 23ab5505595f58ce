package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/omnirelay/llm-gateway/internal/monitoring"
	"github.com/omnirelay/llm-gateway/internal/utils"
)

const eventWriteTimeout = 10 * time.Second

// handleEvents streams request telemetry over a WebSocket: recent history
// first, then live events as requests complete.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("events websocket accept failed")
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

	ctx := r.Context()

	recent, err := g.tracker.Recent(50)
	if err != nil {
		log.Warn().Err(err).Msg("telemetry history unavailable")
	}
	// Oldest first so the client appends in arrival order.
	for i := len(recent) - 1; i >= 0; i-- {
		if err := writeEventJSON(ctx, conn, recent[i]); err != nil {
			return
		}
	}

	events, cancel := g.feed.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEventJSON(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

func writeEventJSON(ctx context.Context, conn *websocket.Conn, ev monitoring.RequestEvent) error {
	data, err := utils.MarshalNoEscape(ev)
	if err != nil {
		log.Error().Err(err).Msg("event marshal failed")
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
