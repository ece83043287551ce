package main

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/inkhouse/inkbook/libs/auth"
)

type routeConfig struct {
	AuthURL    *url.URL
	BookingURL *url.URL
	Signer     *auth.Signer
	Transport  http.RoundTripper
	Logger     *slog.Logger
}

// registerRoutes maps the public API onto the backends. Every proxied request
// has identity headers stripped; only a verified token puts them back.
func registerRoutes(mux *http.ServeMux, cfg routeConfig) {
	authProxy := newProxy(cfg.AuthURL, cfg.Transport, cfg.Logger)
	bookingProxy := newProxy(cfg.BookingURL, cfg.Transport, cfg.Logger)
	signer := cfg.Signer

	admin := func(next http.Handler) http.Handler {
		return requireAuth(requireRole(next, auth.RoleAdmin), signer)
	}
	artist := func(next http.Handler) http.Handler {
		return requireAuth(requireRole(next, auth.RoleArtist), signer)
	}

	mux.Handle("/api/v1/auth/", publicRoute(authProxy))
	mux.Handle("/api/v1/auth/artists", admin(authProxy))
	mux.Handle("/api/v1/auth/audit", admin(authProxy))

	mux.Handle("/api/v1/services", publicRoute(bookingProxy))
	mux.Handle("/api/v1/artists", publicRoute(bookingProxy))
	mux.Handle("/api/v1/availability", publicRoute(bookingProxy))
	// Guests may book without a token; booking-service decides per route.
	mux.Handle("/api/v1/appointments", optionalAuth(bookingProxy, signer))
	mux.Handle("/api/v1/appointments/", optionalAuth(bookingProxy, signer))
	// Stripe reaches the webhook without a JWT; the signature is the auth.
	mux.Handle("/api/v1/payments/stripe/webhook", publicRoute(bookingProxy))

	mux.Handle("/api/v1/artist/", artist(bookingProxy))
	mux.Handle("/api/v1/admin/", admin(bookingProxy))
}

func newProxy(target *url.URL, transport http.RoundTripper, logger *slog.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	if transport != nil {
		proxy.Transport = transport
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("upstream request failed", "upstream", target.Host, "path", r.URL.Path, "err", err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}
	return proxy
}

func publicRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.StripIdentity(r.Header)
		next.ServeHTTP(w, r)
	})
}

func requireAuth(next http.Handler, signer *auth.Signer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.StripIdentity(r.Header)
		token, ok := auth.BearerToken(r)
		if !ok {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		claims, err := signer.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		auth.SetIdentity(r.Header, claims)
		next.ServeHTTP(w, r)
	})
}

// optionalAuth passes anonymous requests through. A token, when sent, must be
// valid.
func optionalAuth(next http.Handler, signer *auth.Signer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.StripIdentity(r.Header)
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		requireAuth(next, signer).ServeHTTP(w, r)
	})
}

func requireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := r.Header.Get(auth.HeaderRole)
		if _, ok := allowed[role]; !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
