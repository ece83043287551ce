package auth

import "net/http"

// Headers set by the gateway after verifying the access token. Backends trust
// them and never parse tokens themselves.
const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-Role"
	HeaderEmail  = "X-User-Email"
)

type Identity struct {
	UserID string
	Role   string
	Email  string
}

func (i Identity) Authenticated() bool { return i.UserID != "" }

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

func IdentityFromRequest(r *http.Request) Identity {
	return Identity{
		UserID: r.Header.Get(HeaderUserID),
		Role:   r.Header.Get(HeaderRole),
		Email:  r.Header.Get(HeaderEmail),
	}
}

// StripIdentity removes identity headers so callers cannot spoof them.
func StripIdentity(h http.Header) {
	h.Del(HeaderUserID)
	h.Del(HeaderRole)
	h.Del(HeaderEmail)
}

func SetIdentity(h http.Header, claims *Claims) {
	h.Set(HeaderUserID, claims.UserID())
	h.Set(HeaderRole, claims.Role)
	if claims.Email != "" {
		h.Set(HeaderEmail, claims.Email)
	}
}
