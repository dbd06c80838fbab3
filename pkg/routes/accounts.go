package routes

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/kabili207/pda-messenger/pkg/auth"
	"github.com/kabili207/pda-messenger/pkg/models"
	"github.com/kabili207/pda-messenger/pkg/store"
)

// generated passwords are hex encoded, so twice this many characters
const generatedPasswordBytes = 16

type AccountResponse struct {
	ID          int               `json:"id"`
	UserName    string            `json:"username"`
	DisplayName *string           `json:"display_name"`
	Station     *models.StationID `json:"station"`
	IsSuperuser bool              `json:"is_superuser"`
	Created     string            `json:"created"`
}

type AccountsResponse struct {
	Accounts []AccountResponse `json:"accounts"`
}

type CreateAccountRequest struct {
	UserName    string            `json:"username"`
	DisplayName *string           `json:"display_name"`
	Station     *models.StationID `json:"station"`
	IsSuperuser bool              `json:"is_superuser"`
	// Password is generated when empty.
	Password string `json:"password"`
}

type SetPasswordRequest struct {
	Password string `json:"password"`
}

type PasswordResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Password is only returned when it was generated.
	Password string `json:"password,omitempty"`
}

func (wr *WebRouter) accountStore(w http.ResponseWriter) (store.AccountStore, bool) {
	if wr.storage.Accounts == nil {
		http.Error(w, "No account store configured", http.StatusNotFound)
		return nil, false
	}
	return wr.storage.Accounts, true
}

func accountID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid account ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// passwordOrGenerated hashes password, generating one first when it is empty.
func passwordOrGenerated(password string) (plain, hash, salt string, generated bool, err error) {
	if password == "" {
		if password, err = auth.RandomHex(generatedPasswordBytes); err != nil {
			return "", "", "", false, err
		}
		generated = true
	}
	hash, salt, err = auth.GenerateHashAndSalt(password)
	return password, hash, salt, generated, err
}

func (wr *WebRouter) getAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, ok := wr.accountStore(w)
	if !ok {
		return
	}
	all, err := accounts.GetAll()
	if err != nil {
		slog.Error("error fetching accounts", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := AccountsResponse{Accounts: make([]AccountResponse, len(all))}
	for i, a := range all {
		resp.Accounts[i] = AccountResponse{
			ID:          a.ID,
			UserName:    a.UserName,
			DisplayName: a.DisplayName,
			Station:     a.Station,
			IsSuperuser: a.IsSuperuser,
			Created:     a.Created.Format(time.DateTime),
		}
	}
	writeJSON(w, resp)
}

func (wr *WebRouter) createAccount(w http.ResponseWriter, r *http.Request) {
	accounts, ok := wr.accountStore(w)
	if !ok {
		return
	}
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	req.UserName = strings.TrimSpace(req.UserName)
	if req.UserName == "" {
		http.Error(w, "Username required", http.StatusBadRequest)
		return
	}

	existing, err := accounts.GetByUserName(req.UserName)
	if err != nil {
		slog.Error("error fetching account", "error", err, "username", req.UserName)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		http.Error(w, "Username already taken", http.StatusConflict)
		return
	}

	password, hash, salt, generated, err := passwordOrGenerated(req.Password)
	if err != nil {
		slog.Error("error generating password", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	account := &models.Account{
		UserName:     req.UserName,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
		Salt:         salt,
		Station:      req.Station,
		IsSuperuser:  req.IsSuperuser,
	}
	if err := accounts.AddAccount(account); err != nil {
		slog.Error("error adding account", "error", err, "username", req.UserName)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	slog.Info("account created", "username", req.UserName, "superuser", req.IsSuperuser)

	resp := PasswordResponse{Success: true, Message: "Account created successfully"}
	if generated {
		resp.Password = password
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (wr *WebRouter) resetPassword(w http.ResponseWriter, r *http.Request) {
	accounts, ok := wr.accountStore(w)
	if !ok {
		return
	}
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	var req SetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	account, err := accounts.GetByID(id)
	if err != nil || account == nil {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}

	password, hash, salt, generated, err := passwordOrGenerated(req.Password)
	if err != nil {
		slog.Error("error generating password", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := accounts.SetPassword(id, hash, salt); err != nil {
		slog.Error("error setting account password", "error", err, "account_id", id)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	slog.Info("account password reset", "username", account.UserName)

	resp := PasswordResponse{Success: true, Message: "Password set successfully"}
	if generated {
		resp.Password = password
	}
	writeJSON(w, resp)
}

func (wr *WebRouter) deleteAccount(w http.ResponseWriter, r *http.Request) {
	accounts, ok := wr.accountStore(w)
	if !ok {
		return
	}
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	session, _ := wr.getSession(r)
	if self, _ := session.Values[sessionAccountKey].(int); self == id {
		http.Error(w, "Cannot delete your own account", http.StatusBadRequest)
		return
	}

	account, err := accounts.GetByID(id)
	if err != nil || account == nil {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}
	if err := accounts.DeleteAccount(id); err != nil {
		slog.Error("error deleting account", "error", err, "account_id", id)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	slog.Info("account deleted", "username", account.UserName)

	writeJSON(w, map[string]any{
		"success": true,
		"message": "Account deleted successfully",
	})
}
