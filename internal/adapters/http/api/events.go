package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// sseKeepAliveInterval keeps idle proxies from dropping the stream.
const sseKeepAliveInterval = 15 * time.Second

// EventsHandler streams session events over Server-Sent Events.
type EventsHandler struct {
	subs Subscriber
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(subs Subscriber) *EventsHandler {
	return &EventsHandler{subs: subs}
}

// HandleStream serves GET /sessions/{id}/events. Delivery is best-effort;
// events dropped under backpressure are not replayed.
func (h *EventsHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session_id", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", nil)
		return
	}

	events, cancel := h.subs.Subscribe(sessionID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case e, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
			flusher.Flush()
		}
	}
}
