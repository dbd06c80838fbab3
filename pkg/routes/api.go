package routes

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kabili207/pda-messenger/pkg/models"
	"github.com/kabili207/pda-messenger/pkg/store"
)

type StationsResponse struct {
	Stations []models.StationID `json:"stations"`
}

type TerminalResponse struct {
	ID       models.TerminalID `json:"id"`
	Station  models.StationID  `json:"station"`
	Owner    *models.Contact   `json:"owner,omitempty"`
	State    string            `json:"state"`
	ChatOpen models.Identity   `json:"chat_open,omitempty"`
}

type PresenceResponse struct {
	Station  models.StationID       `json:"station"`
	Presence []models.PresenceEntry `json:"presence"`
}

type ConversationsResponse struct {
	Station       models.StationID            `json:"station"`
	Conversations []store.ConversationSummary `json:"conversations"`
}

type HistoryResponse struct {
	Station  models.StationID `json:"station"`
	Messages []models.Message `json:"messages"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("error encoding response", "error", err)
	}
}

func (wr *WebRouter) getStations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, StationsResponse{Stations: wr.storage.History.Stations()})
}

func (wr *WebRouter) getTerminals(w http.ResponseWriter, r *http.Request) {
	views := wr.router.Terminals()
	terminals := make([]TerminalResponse, len(views))
	for i, v := range views {
		terminals[i] = TerminalResponse{
			ID:       v.ID,
			Station:  v.Station,
			Owner:    v.Owner,
			State:    v.State().String(),
			ChatOpen: v.ChatOpen,
		}
	}
	writeJSON(w, terminals)
}

func (wr *WebRouter) getPresence(w http.ResponseWriter, r *http.Request) {
	station := models.StationID(mux.Vars(r)["station"])
	entries := []models.PresenceEntry{}
	for _, e := range wr.storage.Presence.All() {
		if e.Station == station {
			entries = append(entries, e)
		}
	}
	writeJSON(w, PresenceResponse{Station: station, Presence: entries})
}

// getConversations lists a station's conversations, optionally only those
// one identity took part in.
func (wr *WebRouter) getConversations(w http.ResponseWriter, r *http.Request) {
	station := models.StationID(mux.Vars(r)["station"])
	conversations := wr.storage.History.Conversations(station)
	if id := models.Identity(r.URL.Query().Get("identity")); id != "" {
		filtered := []store.ConversationSummary{}
		for _, c := range conversations {
			if c.Key.Includes(id) {
				filtered = append(filtered, c)
			}
		}
		conversations = filtered
	}
	writeJSON(w, ConversationsResponse{Station: station, Conversations: conversations})
}

func (wr *WebRouter) getHistory(w http.ResponseWriter, r *http.Request) {
	station := models.StationID(mux.Vars(r)["station"])
	query := r.URL.Query()
	a, b := models.Identity(query.Get("a")), models.Identity(query.Get("b"))
	if a == "" || b == "" {
		http.Error(w, "a and b are required", http.StatusBadRequest)
		return
	}
	writeJSON(w, HistoryResponse{Station: station, Messages: wr.storage.History.GetLog(station, models.KeyFor(a, b))})
}
