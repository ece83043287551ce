package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/inkhouse/inkbook/libs/auth"
	"github.com/inkhouse/inkbook/services/booking-service/internal/booking"
	"github.com/inkhouse/inkbook/services/booking-service/internal/catalog"
	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
	"github.com/inkhouse/inkbook/services/booking-service/internal/scheduling"
	"github.com/inkhouse/inkbook/services/booking-service/internal/storage"
)

// Bookings is the application service behind the HTTP API.
type Bookings interface {
	Hours() scheduling.Hours
	Catalog() *catalog.Catalog
	DepositsEnabled() bool
	Artists(ctx context.Context) ([]model.Artist, error)
	Availability(ctx context.Context, date, serviceID string, choice scheduling.ArtistChoice) ([]string, error)
	Book(ctx context.Context, req booking.BookRequest) (booking.Booking, error)
	ManualEntry(ctx context.Context, actor auth.Identity, req booking.ManualEntryRequest) (booking.Booking, error)
	Transition(ctx context.Context, id string, to model.Status, actor auth.Identity, reason string) (model.Appointment, error)
	Cancel(ctx context.Context, id string, actor auth.Identity, reason string) (model.Appointment, error)
	List(ctx context.Context, f booking.ListFilter) ([]model.Appointment, error)
}

// ArtistAdmin manages roster rows.
type ArtistAdmin interface {
	List(ctx context.Context, activeOnly bool) ([]model.Artist, error)
	Update(ctx context.Context, id string, patch storage.ArtistPatch) (model.Artist, error)
}

type Idempotency interface {
	Claim(ctx context.Context, scope, key string) (storage.IdempotencyRecord, bool, error)
	Finalize(ctx context.Context, scope, key, appointmentID string, statusCode int, response []byte) error
	Release(ctx context.Context, scope, key string) error
}

type AvailabilityObserver interface {
	AvailabilityServed(slots int, err error)
}

type Deps struct {
	Bookings    Bookings
	Artists     ArtistAdmin
	Roster      interface{ Invalidate() }
	Idempotency Idempotency
	Observer    AvailabilityObserver
	Webhook     http.Handler
	Logger      *slog.Logger
}

type Handler struct {
	bookings Bookings
	artists  ArtistAdmin
	roster   interface{ Invalidate() }
	idem     Idempotency
	observer AvailabilityObserver
	webhook  http.Handler
	logger   *slog.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		bookings: d.Bookings,
		artists:  d.Artists,
		roster:   d.Roster,
		idem:     d.Idempotency,
		observer: d.Observer,
		webhook:  d.Webhook,
		logger:   d.Logger,
	}
}

// Routes registers the booking API on r.
func (h *Handler) Routes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/services", h.Services).Methods(http.MethodGet)
	api.HandleFunc("/artists", h.ListArtists).Methods(http.MethodGet)
	api.HandleFunc("/availability", h.Availability).Methods(http.MethodGet)
	api.HandleFunc("/appointments", h.CreateAppointment).Methods(http.MethodPost)
	api.Handle("/appointments", requireAuth(http.HandlerFunc(h.MyAppointments))).Methods(http.MethodGet)
	api.Handle("/appointments/{id}/cancel", requireAuth(http.HandlerFunc(h.CancelAppointment))).Methods(http.MethodPost)
	if h.webhook != nil {
		api.Handle("/payments/stripe/webhook", h.webhook).Methods(http.MethodPost)
	}

	artist := api.PathPrefix("/artist").Subrouter()
	artist.Use(requireRole(auth.RoleArtist))
	artist.HandleFunc("/appointments", h.ArtistAppointments).Methods(http.MethodGet)
	artist.HandleFunc("/appointments/{id}/status", h.UpdateStatus).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(requireRole(auth.RoleAdmin))
	admin.HandleFunc("/appointments", h.AdminAppointments).Methods(http.MethodGet)
	admin.HandleFunc("/appointments", h.ManualEntry).Methods(http.MethodPost)
	admin.HandleFunc("/appointments/{id}/status", h.UpdateStatus).Methods(http.MethodPost)
	admin.HandleFunc("/artists", h.AdminArtists).Methods(http.MethodGet)
	admin.HandleFunc("/artists/{id}", h.UpdateArtist).Methods(http.MethodPatch)
}

func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IdentityFromRequest(r).Authenticated() {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireRole(role string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.IdentityFromRequest(r)
			if !id.Authenticated() {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if id.Role != role {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and reported as 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidRequest),
		errors.Is(err, catalog.ErrUnknownService),
		errors.Is(err, booking.ErrUnknownArtist),
		errors.Is(err, scheduling.ErrInvalidDuration):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrSlotUnavailable):
		http.Error(w, "slot no longer available", http.StatusConflict)
	case errors.Is(err, booking.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, storage.ErrIdempotencyInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrArtistNotFound):
		http.Error(w, "artist not found", http.StatusNotFound)
	case errors.Is(err, scheduling.ErrRepositoryTimeout):
		http.Error(w, "schedule lookup timed out, please retry", http.StatusGatewayTimeout)
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
