package routes

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/kabili207/pda-messenger/internal/web/components"
	"github.com/kabili207/pda-messenger/pkg/auth"
	"github.com/kabili207/pda-messenger/pkg/models"
)

const sessionAccountKey = "account_id"

func (wr *WebRouter) getAccount(session *sessions.Session) (*models.Account, error) {
	id, ok := session.Values[sessionAccountKey].(int)
	if !ok {
		return nil, nil
	}
	return wr.storage.Accounts.GetByID(id)
}

type peerAddrKey struct{}

// rememberPeer records the address of the connection itself. It has to run
// before handlers.ProxyHeaders, which rewrites RemoteAddr from headers the
// client controls.
func rememberPeer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), peerAddrKey{}, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func peerAddr(r *http.Request) string {
	if addr, ok := r.Context().Value(peerAddrKey{}).(string); ok {
		return addr
	}
	return r.RemoteAddr
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// isLoopback requires both the connection and any forwarded client address
// to be local, so a local reverse proxy does not open the pages to everyone.
func isLoopback(r *http.Request) bool {
	return isLoopbackAddr(peerAddr(r)) && isLoopbackAddr(r.RemoteAddr)
}

// requireAdmin only lets superusers through. Without an account store
// there is nobody to sign in as, so only local clients are allowed.
func (wr *WebRouter) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wr.storage.Accounts == nil {
			if !isLoopback(r) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		session, _ := wr.getSession(r)
		id, ok := session.Values[sessionAccountKey].(int)
		if !ok {
			if r.Method == http.MethodGet && r.URL.Path == "/" {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		isSU, err := wr.storage.Accounts.IsSuperuser(id)
		if err != nil {
			slog.Error("error checking superuser", "error", err, "account_id", id)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		// also covers accounts deleted since signing in
		if !isSU {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (wr *WebRouter) loginPage(w http.ResponseWriter, r *http.Request) {
	if wr.storage.Accounts == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	session, _ := wr.getSession(r)
	account, err := wr.getAccount(session)
	if err == nil && account != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	wr.renderLogin(w, r, http.StatusOK, "")
}

func (wr *WebRouter) renderLogin(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := components.LoginPage(components.LoginPageData{Error: message}).Render(r.Context(), w); err != nil {
		slog.Error("error rendering login page", "error", err)
	}
}

func (wr *WebRouter) loginHandler(w http.ResponseWriter, r *http.Request) {
	if wr.storage.Accounts == nil {
		http.Error(w, "No account store configured", http.StatusNotFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")

	account, err := wr.storage.Accounts.GetByUserName(username)
	if err != nil {
		slog.Error("error fetching account", "error", err, "username", username)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if account == nil || !auth.CheckPassword(password, account.Salt, account.PasswordHash) {
		slog.Info("admin login failed", "username", username, "remote_host", r.RemoteAddr)
		wr.renderLogin(w, r, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if !account.IsSuperuser {
		slog.Info("admin login refused for non-superuser", "username", username)
		wr.renderLogin(w, r, http.StatusForbidden, "This account may not use the admin pages")
		return
	}

	session, _ := wr.getSession(r)
	session.Values[sessionAccountKey] = account.ID
	if err := session.Save(r, w); err != nil {
		slog.Error("error saving session", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	slog.Info("admin signed in", "username", username)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (wr *WebRouter) logoutHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := wr.getSession(r)
	delete(session.Values, sessionAccountKey)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		slog.Error("error clearing session", "error", err)
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}
