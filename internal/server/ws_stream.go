package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/stockworks/workbench/internal/events"
)

// WSStreamHandler is the WebSocket sibling of EventsStreamHandler: the same
// event fan-out, pushed as JSON frames instead of SSE, for clients that
// want a bidirectional socket (e.g. to later send a subscribe/unsubscribe
// frame) rather than a one-way text/event-stream.
type WSStreamHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewWSStreamHandler creates a WebSocket push handler over bus.
func NewWSStreamHandler(eventBus *events.Bus, log zerolog.Logger) *WSStreamHandler {
	return &WSStreamHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "ws_stream").Logger(),
	}
}

// ServeHTTP upgrades the request and pushes every bus event to the client
// until it disconnects.
func (h *WSStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	eventChan := make(chan *events.Event, 100)
	handler := func(event *events.Event) {
		select {
		case eventChan <- event:
		default:
			h.log.Warn().Str("event_type", string(event.Type)).Msg("ws channel full, dropping event")
		}
	}
	for _, t := range []events.EventType{
		events.StockResolved,
		events.ResolutionFailed,
		events.RealtimeRecordAppended,
		events.AlertTriggered,
		events.BackupCompleted,
		events.JobFailed,
		events.ErrorOccurred,
	} {
		h.eventBus.Subscribe(t, handler)
	}

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventChan:
			if err := wsjson.Write(ctx, conn, event); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}
