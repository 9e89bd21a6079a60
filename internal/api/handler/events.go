package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/events"
)

const (
	eventBuffer  = 256
	writeTimeout = 10 * time.Second
)

// Events streams notification events over a websocket as JSON text frames.
type Events struct {
	bus    Subscriber
	logger zerolog.Logger
}

func NewEvents(logger zerolog.Logger, bus Subscriber) *Events {
	return &Events{bus: bus, logger: logger.With().Str("component", "events-handler").Logger()}
}

// Stream accepts optional ?kind= and ?source= filters. A source filter
// matches the event's source or site by prefix, so "blog" also yields
// "blog-dev" command output.
func (h *Events) Stream(w http.ResponseWriter, r *http.Request) {
	kinds := map[events.Kind]bool{}
	for _, k := range strings.Split(r.URL.Query().Get("kind"), ",") {
		if k != "" {
			kinds[events.Kind(k)] = true
		}
	}
	source := r.URL.Query().Get("source")

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.CloseNow()

	// Clients never send; CloseRead handles their close frame for us.
	ctx := ws.CloseRead(r.Context())

	ch, cancel := h.bus.Subscribe(eventBuffer)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				ws.Close(websocket.StatusGoingAway, "event stream closed")
				return
			}
			if !matches(e, kinds, source) {
				continue
			}
			if err := writeEvent(ctx, ws, e); err != nil {
				h.logger.Debug().Err(err).Msg("event subscriber gone")
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, ws *websocket.Conn, e events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, e)
}

func matches(e events.Event, kinds map[events.Kind]bool, source string) bool {
	if len(kinds) > 0 && !kinds[e.Kind] {
		return false
	}
	if source == "" {
		return true
	}
	return strings.HasPrefix(e.Source, source) || strings.HasPrefix(e.Site, source)
}
