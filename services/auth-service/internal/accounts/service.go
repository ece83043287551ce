// Package accounts implements registration, login and refresh-token rotation.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inkhouse/inkbook/libs/auth"
	"github.com/inkhouse/inkbook/services/auth-service/internal/audit"
	"github.com/inkhouse/inkbook/services/auth-service/internal/sessions"
	"github.com/inkhouse/inkbook/services/auth-service/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
	ErrForbidden          = errors.New("forbidden")
)

const minPasswordLen = 8

type Users interface {
	GetByEmail(ctx context.Context, email string) (storage.User, error)
	GetByID(ctx context.Context, id string) (storage.User, error)
}

type Registrar interface {
	Register(ctx context.Context, user *storage.User, actorID, auditEvent string) error
}

type RefreshTokens interface {
	Create(ctx context.Context, userID string, rawToken string, expiresAt time.Time) (string, error)
	GetByHash(ctx context.Context, hash string) (sessions.RefreshToken, error)
	Revoke(ctx context.Context, id, reason string) (bool, error)
	RevokeAll(ctx context.Context, userID, reason string) (int64, error)
}

type AuditLog interface {
	Record(ctx context.Context, eventType string, actorID string, metadata map[string]any) error
	ListRecent(ctx context.Context, eventType string, limit int) ([]audit.Event, error)
}

type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int
}

type Deps struct {
	Users     Users
	Registrar Registrar
	Refresh   RefreshTokens
	Audit     AuditLog
	Signer    *auth.Signer
	Logger    *slog.Logger
	Config    Config
}

type Service struct {
	users     Users
	registrar Registrar
	refresh   RefreshTokens
	audit     AuditLog
	signer    *auth.Signer
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

func NewService(d Deps) *Service {
	cfg := d.Config
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		users:     d.Users,
		registrar: d.Registrar,
		refresh:   d.Refresh,
		audit:     d.Audit,
		signer:    d.Signer,
		logger:    d.Logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Register creates a client account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (storage.User, Tokens, error) {
	user, err := s.create(ctx, in, auth.RoleClient, "", audit.EventRegistered)
	if err != nil {
		return storage.User{}, Tokens{}, err
	}
	tokens, err := s.issue(ctx, user)
	return user, tokens, err
}

// CreateArtist is the admin path for adding an artist account. The
// registration event is what puts the artist on booking's roster.
func (s *Service) CreateArtist(ctx context.Context, actor auth.Identity, in RegisterInput) (storage.User, error) {
	if !actor.IsAdmin() {
		return storage.User{}, ErrForbidden
	}
	return s.create(ctx, in, auth.RoleArtist, actor.UserID, audit.EventArtistCreated)
}

// BootstrapAdmin creates the admin account if the email is unused. It reports
// whether an account was created.
func (s *Service) BootstrapAdmin(ctx context.Context, email, password string) (bool, error) {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return false, nil
	} else if !storage.IsNotFound(err) {
		return false, err
	}
	_, err := s.create(ctx, RegisterInput{Email: email, Password: password, FirstName: "Studio", LastName: "Admin"}, auth.RoleAdmin, "", audit.EventAdminBootstrap)
	if errors.Is(err, storage.ErrEmailTaken) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) create(ctx context.Context, in RegisterInput, role, actorID, auditEvent string) (storage.User, error) {
	in.Email = storage.NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := validate(in); err != nil {
		return storage.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return storage.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := storage.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         role,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.registrar.Register(ctx, &user, actorID, auditEvent); err != nil {
		return storage.User{}, err
	}
	return user, nil
}

func validate(in RegisterInput) error {
	if _, err := mail.ParseAddress(in.Email); err != nil || in.Email == "" {
		return fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	if len(in.Password) > 72 {
		return fmt.Errorf("%w: password must be at most 72 bytes", ErrInvalidInput)
	}
	if in.FirstName == "" {
		return fmt.Errorf("%w: first name is required", ErrInvalidInput)
	}
	return nil
}

func (s *Service) Login(ctx context.Context, email, password string) (storage.User, Tokens, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if storage.IsNotFound(err) {
			s.record(ctx, audit.EventLoginFailed, "", map[string]any{"email": storage.NormalizeEmail(email), "reason": "unknown email"})
			return storage.User{}, Tokens{}, ErrInvalidCredentials
		}
		return storage.User{}, Tokens{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.record(ctx, audit.EventLoginFailed, user.ID, map[string]any{"email": user.Email, "reason": "bad password"})
		return storage.User{}, Tokens{}, ErrInvalidCredentials
	}
	tokens, err := s.issue(ctx, user)
	if err != nil {
		return storage.User{}, Tokens{}, err
	}
	s.record(ctx, audit.EventLoginSucceeded, user.ID, map[string]any{"email": user.Email})
	return user, tokens, nil
}

// Refresh exchanges a refresh token for a new pair. The old token is revoked
// first; a token that lost the revoke race is rejected. Replaying a token
// that was already rotated ends every session of its user.
func (s *Service) Refresh(ctx context.Context, raw string) (Tokens, error) {
	rec, err := s.refresh.GetByHash(ctx, sessions.HashToken(raw))
	if err != nil {
		if sessions.IsNotFound(err) {
			return Tokens{}, ErrInvalidRefresh
		}
		return Tokens{}, err
	}
	if rec.Replayed() {
		n, err := s.refresh.RevokeAll(ctx, rec.UserID, sessions.RevokedReuse)
		if err != nil {
			return Tokens{}, err
		}
		s.logger.Warn("refresh token replayed, sessions revoked", "user_id", rec.UserID, "revoked", n)
		s.record(ctx, audit.EventRefreshReused, rec.UserID, map[string]any{"revoked_sessions": n})
		return Tokens{}, ErrInvalidRefresh
	}
	if !rec.Usable(s.now()) {
		return Tokens{}, ErrInvalidRefresh
	}
	user, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		if storage.IsNotFound(err) {
			return Tokens{}, ErrInvalidRefresh
		}
		return Tokens{}, err
	}
	revoked, err := s.refresh.Revoke(ctx, rec.ID, sessions.RevokedRotated)
	if err != nil {
		return Tokens{}, err
	}
	if !revoked {
		return Tokens{}, ErrInvalidRefresh
	}
	return s.issue(ctx, user)
}

// Logout revokes the refresh token. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, raw string) error {
	rec, err := s.refresh.GetByHash(ctx, sessions.HashToken(raw))
	if err != nil {
		if sessions.IsNotFound(err) {
			return nil
		}
		return err
	}
	_, err = s.refresh.Revoke(ctx, rec.ID, sessions.RevokedLogout)
	return err
}

func (s *Service) Me(ctx context.Context, id string) (storage.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) Audit(ctx context.Context, actor auth.Identity, eventType string, limit int) ([]audit.Event, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.audit.ListRecent(ctx, eventType, limit)
}

func (s *Service) issue(ctx context.Context, user storage.User) (Tokens, error) {
	access, err := s.signer.Sign(user.ID, user.Email, user.Role, s.cfg.AccessTTL)
	if err != nil {
		return Tokens{}, err
	}
	raw, err := sessions.NewToken()
	if err != nil {
		return Tokens{}, err
	}
	if _, err := s.refresh.Create(ctx, user.ID, raw, s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return Tokens{}, fmt.Errorf("store refresh token: %w", err)
	}
	return Tokens{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTTL / time.Second),
	}, nil
}

// record writes an audit row; failures are logged, never returned.
func (s *Service) record(ctx context.Context, eventType, actorID string, metadata map[string]any) {
	if err := s.audit.Record(ctx, eventType, actorID, metadata); err != nil {
		s.logger.Error("audit write failed", "event_type", eventType, "err", err)
	}
}
