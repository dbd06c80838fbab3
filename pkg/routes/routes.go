package routes

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"

	"github.com/kabili207/pda-messenger/internal/web"
	"github.com/kabili207/pda-messenger/internal/web/components"
	"github.com/kabili207/pda-messenger/pkg/config"
	"github.com/kabili207/pda-messenger/pkg/messenger"
	"github.com/kabili207/pda-messenger/pkg/models"
	"github.com/kabili207/pda-messenger/pkg/store"
)

const (
	sessionName = "pda_messenger"
)

type WebRouter struct {
	config           config.Configuration
	storage          *store.Stores
	router           *messenger.Router
	sessionStore     *sessions.CookieStore
	PresenceNotifier *PresenceNotifier
}

func (wr *WebRouter) getSession(r *http.Request) (*sessions.Session, error) {
	return wr.sessionStore.Get(r, sessionName)
}

// Initialize prepares the router. The presence notifier must also be
// registered with the message router for live updates to arrive.
func (wr *WebRouter) Initialize(config config.Configuration, router *messenger.Router, notifier *PresenceNotifier) {
	wr.config = config
	wr.router = router
	wr.storage = router.Stores()
	wr.sessionStore = sessions.NewCookieStore([]byte(config.SessionSecret))
	wr.sessionStore.Options.HttpOnly = true
	wr.sessionStore.Options.SameSite = http.SameSiteLaxMode
	if notifier == nil {
		notifier = NewPresenceNotifier()
	}
	wr.PresenceNotifier = notifier
}

type Alert struct {
	Type    string
	Message string
}

type PageVariables struct {
	PageTitle     string
	Alerts        []Alert
	SignedIn      bool
	Stations      []models.StationID
	Station       models.StationID
	PresenceRows  template.HTML
	TerminalRows  template.HTML
	Conversations []components.ConversationRow
}

type ConversationPageVariables struct {
	PageVariables
	A, B     string
	AID      models.Identity
	Messages []models.Message
	Names    map[models.Identity]string
}

// Handler builds the full admin handler chain.
func (wr *WebRouter) Handler() http.Handler {
	// creates a new instance of a mux router
	myRouter := mux.NewRouter().StrictSlash(true)

	myRouter.HandleFunc("/login", wr.loginPage).Methods("GET")
	myRouter.HandleFunc("/login", wr.loginHandler).Methods("POST")
	myRouter.HandleFunc("/logout", wr.logoutHandler).Methods("POST")

	admin := func(path string, f http.HandlerFunc) *mux.Route {
		return myRouter.Handle(path, wr.requireAdmin(f))
	}
	admin("/", wr.dashboardPage).Methods("GET")
	admin("/conversation", wr.conversationPage).Methods("GET")
	admin("/api/stations", wr.getStations).Methods("GET")
	admin("/api/terminals", wr.getTerminals).Methods("GET")
	admin("/api/stations/{station}/presence", wr.getPresence).Methods("GET")
	admin("/api/stations/{station}/conversations", wr.getConversations).Methods("GET")
	admin("/api/stations/{station}/history", wr.getHistory).Methods("GET")
	admin("/api/presence-html", wr.presenceHTML).Methods("GET")
	admin("/api/presence-sse", wr.presenceSSE).Methods("GET")
	admin("/api/accounts", wr.getAccounts).Methods("GET")
	admin("/api/accounts", wr.createAccount).Methods("POST")
	admin("/api/accounts/{id:[0-9]+}/password", wr.resetPassword).Methods("POST")
	admin("/api/accounts/{id:[0-9]+}", wr.deleteAccount).Methods("DELETE")

	staticFS, _ := fs.Sub(web.ContentFS, "static")
	myRouter.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	myRouter.Use(handlers.ProxyHeaders)
	myRouter.Use(RequestLogger)
	h := handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}), handlers.PrintRecoveryStack(false))

	return h(rememberPeer(myRouter))
}

// ListenAndServe serves the admin pages until ctx is cancelled.
func (wr *WebRouter) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              wr.config.ListenAddr,
		Handler:           wr.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	slog.Info("admin web listening", "address", wr.config.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func RequestLogger(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		slog.Info("endpoint hit", "method", r.Method, "path", r.URL.Path, "remote_host", r.RemoteAddr, "user_agent", r.UserAgent())
		// Call the next handler in the chain.
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...any) {
	slog.Error("panic while serving request", "panic", v)
}

func renderHTML(ctx context.Context, c templ.Component) template.HTML {
	html, err := templ.ToGoHTML(ctx, c)
	if err != nil {
		slog.Error("error rendering component", "error", err)
	}
	return html
}

func (wr *WebRouter) renderTemplate(w http.ResponseWriter, name string, data any) {
	tmpl, err := web.GetHTMLTemplate(name)
	if err != nil {
		slog.Error("error loading template", "template", name, "error", err)
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, name+".tmpl.html", data); err != nil {
		slog.Error("error rendering page", "template", name, "error", err)
	}
}

func (wr *WebRouter) basePage(r *http.Request, title string) PageVariables {
	return PageVariables{
		PageTitle: title,
		SignedIn:  wr.storage.Accounts != nil,
		Stations:  wr.storage.History.Stations(),
	}
}

func (wr *WebRouter) dashboardPage(w http.ResponseWriter, r *http.Request) {
	page := wr.basePage(r, "Dashboard")
	page.TerminalRows = renderHTML(r.Context(), components.TerminalsTableContent(wr.terminalRows()))

	if station := models.StationID(r.URL.Query().Get("station")); station != "" {
		page.Station = station
		page.PresenceRows = renderHTML(r.Context(), components.PresenceTableContent(wr.presenceRows(station)))
		page.Conversations = wr.conversationRows(station)
	}

	wr.renderTemplate(w, "dashboard", page)
}

func (wr *WebRouter) conversationPage(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	station := models.StationID(query.Get("station"))
	a, b := models.Identity(query.Get("a")), models.Identity(query.Get("b"))
	if station == "" || a == "" || b == "" {
		http.Error(w, "station, a and b are required", http.StatusBadRequest)
		return
	}

	key := models.KeyFor(a, b)
	page := ConversationPageVariables{
		PageVariables: wr.basePage(r, "Conversation"),
		AID:           a,
		Messages:      wr.storage.History.GetLog(station, key),
		Names:         map[models.Identity]string{},
	}
	page.Station = station
	for _, c := range wr.storage.History.Conversations(station) {
		if c.Key == key {
			page.Names[c.Low.Identity] = c.Low.GetDisplayName()
			page.Names[c.High.Identity] = c.High.GetDisplayName()
		}
	}
	page.A = nameOr(page.Names[a], a)
	page.B = nameOr(page.Names[b], b)

	wr.renderTemplate(w, "conversation", page)
}

func nameOr(name string, id models.Identity) string {
	if name == "" {
		return string(id)
	}
	return name
}

func (wr *WebRouter) presenceRows(station models.StationID) []components.PresenceRow {
	rows := []components.PresenceRow{}
	for _, e := range wr.storage.Presence.All() {
		if e.Station != station {
			continue
		}
		rows = append(rows, components.PresenceRow{
			Identity:    string(e.Identity),
			DisplayName: e.DisplayName,
			Online:      e.Online,
		})
	}
	components.SortPresence(rows)
	return rows
}

func (wr *WebRouter) terminalRows() []components.TerminalRow {
	views := wr.router.Terminals()
	rows := make([]components.TerminalRow, len(views))
	for i, v := range views {
		rows[i] = components.TerminalRow{
			ID:       string(v.ID),
			Station:  string(v.Station),
			State:    v.State().String(),
			ChatOpen: string(v.ChatOpen),
		}
		if v.Owner != nil {
			rows[i].Owner = v.Owner.GetDisplayName()
		}
	}
	components.SortTerminals(rows)
	return rows
}

func (wr *WebRouter) conversationRows(station models.StationID) []components.ConversationRow {
	summaries := wr.storage.History.Conversations(station)
	rows := make([]components.ConversationRow, len(summaries))
	for i, s := range summaries {
		rows[i] = components.ConversationRow{
			Station:  string(station),
			A:        components.PresenceRow{Identity: string(s.Low.Identity), DisplayName: s.Low.GetDisplayName()},
			B:        components.PresenceRow{Identity: string(s.High.Identity), DisplayName: s.High.GetDisplayName()},
			Messages: s.Messages,
			LastSent: components.FormatRoundTime(s.LastSent),
		}
	}
	return rows
}
