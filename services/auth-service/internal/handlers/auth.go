package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/inkhouse/inkbook/libs/auth"
	"github.com/inkhouse/inkbook/libs/httpx"
	"github.com/inkhouse/inkbook/services/auth-service/internal/accounts"
	"github.com/inkhouse/inkbook/services/auth-service/internal/audit"
	"github.com/inkhouse/inkbook/services/auth-service/internal/storage"
)

// Accounts is the account service behind the HTTP API.
type Accounts interface {
	Register(ctx context.Context, in accounts.RegisterInput) (storage.User, accounts.Tokens, error)
	CreateArtist(ctx context.Context, actor auth.Identity, in accounts.RegisterInput) (storage.User, error)
	Login(ctx context.Context, email, password string) (storage.User, accounts.Tokens, error)
	Refresh(ctx context.Context, raw string) (accounts.Tokens, error)
	Logout(ctx context.Context, raw string) error
	Me(ctx context.Context, id string) (storage.User, error)
	Audit(ctx context.Context, actor auth.Identity, eventType string, limit int) ([]audit.Event, error)
}

type AuthHandler struct {
	accounts Accounts
	signer   *auth.Signer
	logger   *slog.Logger
}

func NewAuthHandler(accts Accounts, signer *auth.Signer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accts, signer: signer, logger: logger}
}

// Register mounts the auth routes on mux.
func (h *AuthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/auth/register", h.SignUp)
	mux.HandleFunc("/api/v1/auth/login", h.Login)
	mux.HandleFunc("/api/v1/auth/refresh", h.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", h.Logout)
	mux.HandleFunc("/api/v1/auth/me", h.Me)
	mux.HandleFunc("/api/v1/auth/artists", h.CreateArtist)
	mux.HandleFunc("/api/v1/auth/audit", h.Audit)
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

func (r registerRequest) input() accounts.RegisterInput {
	return accounts.RegisterInput{
		Email:     r.Email,
		Password:  r.Password,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Phone:     r.Phone,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toUser(u storage.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
	}
}

type sessionResponse struct {
	accounts.Tokens
	User userResponse `json:"user"`
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	user, tokens, err := h.accounts.Register(r.Context(), req.input())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, sessionResponse{Tokens: tokens, User: toUser(user)})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}
	user, tokens, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{Tokens: tokens, User: toUser(user)})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token, ok := decodeRefresh(w, r)
	if !ok {
		return
	}
	tokens, err := h.accounts.Refresh(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token, ok := decodeRefresh(w, r)
	if !ok {
		return
	}
	if err := h.accounts.Logout(r.Context(), token); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeRefresh(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return "", false
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return "", false
	}
	return req.RefreshToken, true
}

// Me verifies the bearer token itself so it also works without the gateway.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token, ok := auth.BearerToken(r)
	if !ok {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}
	claims, err := h.signer.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	user, err := h.accounts.Me(r.Context(), claims.UserID())
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUser(user))
}

func (h *AuthHandler) CreateArtist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	user, err := h.accounts.CreateArtist(r.Context(), auth.IdentityFromRequest(r), req.input())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toUser(user))
}

func (h *AuthHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	events, err := h.accounts.Audit(r.Context(), auth.IdentityFromRequest(r), r.URL.Query().Get("type"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, events)
}

func (h *AuthHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, accounts.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, accounts.ErrInvalidCredentials):
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, accounts.ErrInvalidRefresh):
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
	case errors.Is(err, accounts.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, storage.ErrEmailTaken):
		http.Error(w, "email already registered", http.StatusConflict)
	default:
		h.logger.Error("auth request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
