// Package tokensvc is a small HTTP service that obtains NAS API tokens by
// logging into the web UI with a headless browser.
//
// GET /token?username=&password= answers in the vendor envelope:
// {"code":200,"msg":"success","data":{"token":"..."}} on success and
// {"code":401,"msg":"Token refresh failed"} otherwise.
package tokensvc

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
)

type envelope struct {
	Code int        `json:"code"`
	Msg  string     `json:"msg"`
	Data *tokenData `json:"data,omitempty"`
}

type tokenData struct {
	Token string `json:"token"`
}

// Handler serves GET /token. Logins are serialized so concurrent requests
// never start more than one browser.
type Handler struct {
	fetcher Fetcher
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewHandler creates a [Handler] backed by fetcher.
func NewHandler(fetcher Fetcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{fetcher: fetcher, logger: logger}
}

// Routes returns a mux with the token route.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /token", h)
	return mux
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	username, password := q.Get("username"), q.Get("password")
	if username == "" || password == "" {
		h.write(w, http.StatusBadRequest, envelope{Code: http.StatusBadRequest, Msg: "username and password are required"})
		return
	}

	h.mu.Lock()
	token, err := h.fetcher.FetchToken(r.Context(), username, password)
	h.mu.Unlock()

	if err != nil {
		h.logger.Error("token refresh failed", "username", username, "error", err)
		h.write(w, http.StatusUnauthorized, envelope{Code: http.StatusUnauthorized, Msg: "Token refresh failed"})
		return
	}

	h.write(w, http.StatusOK, envelope{Code: http.StatusOK, Msg: "success", Data: &tokenData{Token: token}})
}

func (h *Handler) write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode token response", "error", err)
	}
}
