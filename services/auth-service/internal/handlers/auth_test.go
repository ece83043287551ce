package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/inkhouse/inkbook/libs/auth"
	"github.com/inkhouse/inkbook/services/auth-service/internal/accounts"
	"github.com/inkhouse/inkbook/services/auth-service/internal/audit"
	"github.com/inkhouse/inkbook/services/auth-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

type fakeAccounts struct {
	registerErr error
	loginErr    error
	actor       auth.Identity
	users       map[string]storage.User
}

func (f *fakeAccounts) Register(_ context.Context, in accounts.RegisterInput) (storage.User, accounts.Tokens, error) {
	if f.registerErr != nil {
		return storage.User{}, accounts.Tokens{}, f.registerErr
	}
	return storage.User{ID: "u-1", Email: in.Email, Role: auth.RoleClient, FirstName: in.FirstName},
		accounts.Tokens{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer", ExpiresIn: 3600}, nil
}

func (f *fakeAccounts) CreateArtist(_ context.Context, actor auth.Identity, in accounts.RegisterInput) (storage.User, error) {
	f.actor = actor
	if !actor.IsAdmin() {
		return storage.User{}, accounts.ErrForbidden
	}
	return storage.User{ID: "artist-1", Email: in.Email, Role: auth.RoleArtist}, nil
}

func (f *fakeAccounts) Login(_ context.Context, email, _ string) (storage.User, accounts.Tokens, error) {
	if f.loginErr != nil {
		return storage.User{}, accounts.Tokens{}, f.loginErr
	}
	return storage.User{ID: "u-1", Email: email}, accounts.Tokens{AccessToken: "access"}, nil
}

func (f *fakeAccounts) Refresh(_ context.Context, raw string) (accounts.Tokens, error) {
	if raw != "good" {
		return accounts.Tokens{}, accounts.ErrInvalidRefresh
	}
	return accounts.Tokens{AccessToken: "new"}, nil
}

func (f *fakeAccounts) Logout(context.Context, string) error { return nil }

func (f *fakeAccounts) Me(_ context.Context, id string) (storage.User, error) {
	u, ok := f.users[id]
	if !ok {
		return storage.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (f *fakeAccounts) Audit(_ context.Context, actor auth.Identity, _ string, _ int) ([]audit.Event, error) {
	if !actor.IsAdmin() {
		return nil, accounts.ErrForbidden
	}
	return []audit.Event{{ID: 1, EventType: audit.EventLoginSucceeded}}, nil
}

func newServer(f *fakeAccounts, signer *auth.Signer) http.Handler {
	mux := http.NewServeMux()
	NewAuthHandler(f, signer, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(mux)
	return mux
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSignUp(t *testing.T) {
	h := newServer(&fakeAccounts{}, auth.NewHS256Signer("s", "inkbook"))
	rec := do(h, http.MethodPost, "/api/v1/auth/register", `{"email":"ana@example.com","password":"correct-horse","first_name":"Ana"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["access_token"] != "access" || resp["refresh_token"] != "refresh" {
		t.Fatalf("tokens not flattened into response: %v", resp)
	}
	user, _ := resp["user"].(map[string]any)
	if user["role"] != auth.RoleClient {
		t.Fatalf("unexpected user: %v", resp["user"])
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: password too short", accounts.ErrInvalidInput), http.StatusBadRequest},
		{storage.ErrEmailTaken, http.StatusConflict},
		{accounts.ErrInvalidCredentials, http.StatusUnauthorized},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := newServer(&fakeAccounts{registerErr: tc.err}, auth.NewHS256Signer("s", "inkbook"))
		rec := do(h, http.MethodPost, "/api/v1/auth/register", `{"email":"a@b.c","password":"x"}`, nil)
		if rec.Code != tc.code {
			t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.code)
		}
	}
}

func TestMethodAndBodyChecks(t *testing.T) {
	h := newServer(&fakeAccounts{}, auth.NewHS256Signer("s", "inkbook"))
	if rec := do(h, http.MethodGet, "/api/v1/auth/login", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET login status = %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/v1/auth/login", `{"email":"a@b.c","password":"x","extra":1}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":""}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty refresh status = %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"stale"}`, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale refresh status = %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/v1/auth/logout", `{"refresh_token":"any"}`, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", rec.Code)
	}
}

func TestMeVerifiesBearer(t *testing.T) {
	signer := auth.NewHS256Signer("s", "inkbook")
	f := &fakeAccounts{users: map[string]storage.User{"u-1": {ID: "u-1", Email: "ana@example.com", Role: auth.RoleClient}}}
	h := newServer(f, signer)

	if rec := do(h, http.MethodGet, "/api/v1/auth/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/v1/auth/me", "", map[string]string{"Authorization": "Bearer junk"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("junk token status = %d", rec.Code)
	}
	token, err := signer.Sign("u-1", "ana@example.com", auth.RoleClient, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	rec := do(h, http.MethodGet, "/api/v1/auth/me", "", map[string]string{"Authorization": "Bearer " + token})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ana@example.com") {
		t.Fatalf("me status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAdminRoutesUseGatewayIdentity(t *testing.T) {
	f := &fakeAccounts{}
	h := newServer(f, auth.NewHS256Signer("s", "inkbook"))
	body := `{"email":"ada@inkhouse.example","password":"correct-horse","first_name":"Ada"}`

	rec := do(h, http.MethodPost, "/api/v1/auth/artists", body, map[string]string{auth.HeaderUserID: "c-1", auth.HeaderRole: auth.RoleClient})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("client status = %d", rec.Code)
	}
	rec = do(h, http.MethodPost, "/api/v1/auth/artists", body, map[string]string{auth.HeaderUserID: "admin-1", auth.HeaderRole: auth.RoleAdmin})
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin status = %d body=%s", rec.Code, rec.Body.String())
	}
	if f.actor.UserID != "admin-1" {
		t.Fatalf("actor = %+v", f.actor)
	}
	rec = do(h, http.MethodGet, "/api/v1/auth/audit?limit=5", "", map[string]string{auth.HeaderUserID: "admin-1", auth.HeaderRole: auth.RoleAdmin})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), audit.EventLoginSucceeded) {
		t.Fatalf("audit status = %d body=%s", rec.Code, rec.Body.String())
	}
}
