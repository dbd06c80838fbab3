package routes

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kabili207/pda-messenger/internal/web/components"
	"github.com/kabili207/pda-messenger/pkg/messenger"
	"github.com/kabili207/pda-messenger/pkg/models"
)

var _ messenger.Notifier = (*PresenceNotifier)(nil)

// PresenceNotifier provides a way to notify SSE subscribers about presence
// changes on a station
type PresenceNotifier struct {
	// subscriber -> station it watches, empty for all stations
	subscribers map[chan struct{}]models.StationID
	mu          sync.RWMutex
}

// NewPresenceNotifier creates a new PresenceNotifier
func NewPresenceNotifier() *PresenceNotifier {
	return &PresenceNotifier{
		subscribers: make(map[chan struct{}]models.StationID),
	}
}

// Subscribe adds a new subscriber that will be notified on presence
// changes for station
func (pn *PresenceNotifier) Subscribe(station models.StationID) chan struct{} {
	pn.mu.Lock()
	defer pn.mu.Unlock()
	ch := make(chan struct{}, 1)
	pn.subscribers[ch] = station
	return ch
}

// Unsubscribe removes a subscriber
func (pn *PresenceNotifier) Unsubscribe(ch chan struct{}) {
	pn.mu.Lock()
	defer pn.mu.Unlock()
	delete(pn.subscribers, ch)
	close(ch)
}

// Notify triggers all subscribers watching station
func (pn *PresenceNotifier) Notify(station models.StationID) {
	pn.mu.RLock()
	defer pn.mu.RUnlock()
	for ch, watched := range pn.subscribers {
		if watched != "" && watched != station {
			continue
		}
		select {
		case ch <- struct{}{}:
		default:
			// Channel already has a pending notification, skip
		}
	}
}

func (pn *PresenceNotifier) BroadcastPresence(change models.PresenceChanged) {
	pn.Notify(change.Station)
}

func (pn *PresenceNotifier) PushState(models.TerminalID, models.UiState) {}

// SSE endpoint for presence updates
func (wr *WebRouter) presenceSSE(w http.ResponseWriter, r *http.Request) {
	// Check if SSE is supported
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	station := models.StationID(r.URL.Query().Get("station"))
	if station == "" {
		http.Error(w, "station is required", http.StatusBadRequest)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	notifyCh := wr.PresenceNotifier.Subscribe(station)
	defer wr.PresenceNotifier.Unsubscribe(notifyCh)

	ctx := r.Context()

	ticker := time.NewTicker(30 * time.Second) // Heartbeat to keep connection alive
	defer ticker.Stop()

	sendPresenceUpdate := func() error {
		var buf bytes.Buffer
		if err := components.PresenceTableContent(wr.presenceRows(station)).Render(ctx, &buf); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: presence-update\ndata: %s\n\n", escapeSSEData(buf.String())); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := sendPresenceUpdate(); err != nil {
		slog.Error("error sending initial SSE data", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-notifyCh:
			if err := sendPresenceUpdate(); err != nil {
				slog.Error("error sending SSE update", "error", err)
				return
			}
		case <-ticker.C:
			// Send heartbeat comment to keep connection alive
			if _, err := fmt.Fprintf(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// escapeSSEData keeps a fragment on a single data: line
func escapeSSEData(s string) string {
	var result bytes.Buffer
	for _, c := range s {
		switch c {
		case '\n':
			result.WriteString("\\n")
		case '\r':
			// Skip carriage returns
		default:
			result.WriteRune(c)
		}
	}
	return result.String()
}

// presenceHTML returns the presence table body for a station
func (wr *WebRouter) presenceHTML(w http.ResponseWriter, r *http.Request) {
	station := models.StationID(r.URL.Query().Get("station"))
	if station == "" {
		http.Error(w, "station is required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	if err := components.PresenceTableContent(wr.presenceRows(station)).Render(r.Context(), w); err != nil {
		slog.Error("error rendering presence HTML", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
