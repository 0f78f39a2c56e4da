package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/triagehub/triagehub/internal/api/respond"
	"github.com/triagehub/triagehub/internal/broadcast"
)

// heartbeatInterval is how often an SSE comment line is written so proxies
// and clients can tell a quiet stream from a dead one.
const heartbeatInterval = 15 * time.Second

// EventsHandler serves GET /v0/events as a server-sent event stream. Each hub
// event becomes one `data:` record. A client that stops reading is dropped by
// the hub; the closed subscription channel ends the stream.
type EventsHandler struct {
	hub       *broadcast.Hub
	log       zerolog.Logger
	heartbeat time.Duration
}

func NewEventsHandler(hub *broadcast.Hub, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, log: log, heartbeat: heartbeatInterval}
}

// Stream handles one SSE connection.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respond.WriteInternalError(w, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// An opening comment makes the stream observable immediately.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)
	h.log.Debug().Int("viewers", h.hub.Viewers()).Msg("sse viewer connected")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Debug().Msg("sse viewer disconnected")
			return

		case evt, open := <-sub.Events():
			if !open {
				// Dropped by the hub for falling behind.
				h.log.Debug().Msg("sse viewer dropped")
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				h.log.Error().Stack().Err(err).Msg("failed to encode event")
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
