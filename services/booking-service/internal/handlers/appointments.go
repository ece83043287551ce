package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/inkhouse/inkbook/libs/auth"
	"github.com/inkhouse/inkbook/libs/httpx"
	"github.com/inkhouse/inkbook/services/booking-service/internal/booking"
	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
	"github.com/inkhouse/inkbook/services/booking-service/internal/scheduling"
)

type createAppointmentRequest struct {
	ServiceID   string `json:"service_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	ArtistID    string `json:"artist_id"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientPhone string `json:"client_phone"`
	Notes       string `json:"notes"`
	// ClientID is honoured for admin manual entries only.
	ClientID string `json:"client_id,omitempty"`
}

func (req createAppointmentRequest) toBookRequest() booking.BookRequest {
	return booking.BookRequest{
		ServiceID:   strings.TrimSpace(req.ServiceID),
		Date:        strings.TrimSpace(req.Date),
		Time:        strings.TrimSpace(req.Time),
		Choice:      scheduling.ChoiceFromID(req.ArtistID),
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		ClientPhone: req.ClientPhone,
		Notes:       req.Notes,
	}
}

type bookingResponse struct {
	Appointment appointmentResponse `json:"appointment"`
	ArtistName  string              `json:"artist_name"`
	CheckoutURL string              `json:"checkout_url,omitempty"`
}

// CreateAppointment books for the signed-in client or a guest. An
// Idempotency-Key header makes retries return the first response.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	identity := auth.IdentityFromRequest(r)
	bookReq := req.toBookRequest()
	if identity.Authenticated() {
		bookReq.ClientID = identity.UserID
		if bookReq.ClientEmail == "" {
			bookReq.ClientEmail = identity.Email
		}
	}

	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	scope := idempotencyScope(identity, req)
	if key != "" && h.idem != nil {
		rec, done, err := h.idem.Claim(ctx, scope, key)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if done {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replay", "true")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.ResponsePayload)
			return
		}
	}

	b, err := h.bookings.Book(ctx, bookReq)
	if err != nil {
		if key != "" && h.idem != nil {
			if rerr := h.idem.Release(ctx, scope, key); rerr != nil {
				h.logger.Warn("release idempotency key failed", "err", rerr)
			}
		}
		h.writeError(w, r, err)
		return
	}

	resp := bookingResponse{
		Appointment: toAppointment(h.bookings.Hours(), b.Appointment),
		ArtistName:  b.Artist.DisplayName(),
		CheckoutURL: b.CheckoutURL,
	}
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(resp); err != nil {
		h.writeError(w, r, fmt.Errorf("encode response: %w", err))
		return
	}
	if key != "" && h.idem != nil {
		if err := h.idem.Finalize(ctx, scope, key, b.Appointment.ID, http.StatusCreated, body.Bytes()); err != nil {
			h.logger.Warn("finalize idempotency key failed", "appointment_id", b.Appointment.ID, "err", err)
			if rerr := h.idem.Release(ctx, scope, key); rerr != nil {
				h.logger.Warn("release idempotency key failed", "err", rerr)
			}
		}
	}
	h.logger.Info("appointment booked",
		"appointment_id", b.Appointment.ID,
		"artist_id", b.Appointment.ArtistID,
		"status", b.Appointment.Status,
		"guest", b.Appointment.IsGuest(),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body.Bytes())
}

// idempotencyScope keys signed-in clients by user id. Guests share no
// identity, so their scope is a digest of who is booking what; two guests
// reusing one key never see each other's booking.
func idempotencyScope(identity auth.Identity, req createAppointmentRequest) string {
	if identity.Authenticated() {
		return "appointments:" + identity.UserID
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{
		strings.ToLower(strings.TrimSpace(req.ClientEmail)),
		strings.TrimSpace(req.ClientPhone),
		strings.TrimSpace(req.ClientName),
		req.ServiceID,
		req.Date,
		req.Time,
		req.ArtistID,
	}, "|")))
	return "appointments:" + model.GuestClientID + ":" + hex.EncodeToString(sum[:16])
}

func (h *Handler) MyAppointments(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromRequest(r)
	f, err := h.listFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.ClientID = identity.UserID
	f.ArtistID = ""
	h.writeList(w, r, f)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
	}
	appt, err := h.bookings.Cancel(r.Context(), mux.Vars(r)["id"], auth.IdentityFromRequest(r), strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointment(h.bookings.Hours(), appt))
}

func (h *Handler) ArtistAppointments(w http.ResponseWriter, r *http.Request) {
	f, err := h.listFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.ArtistID = auth.IdentityFromRequest(r).UserID
	f.ClientID = ""
	h.writeList(w, r, f)
}

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// UpdateStatus moves an appointment along its lifecycle. Admins may touch any
// appointment, artists only their own.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	to, err := model.ParseStatus(strings.TrimSpace(req.Status))
	if err != nil {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}
	appt, err := h.bookings.Transition(r.Context(), mux.Vars(r)["id"], to, auth.IdentityFromRequest(r), strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointment(h.bookings.Hours(), appt))
}

func (h *Handler) writeList(w http.ResponseWriter, r *http.Request, f booking.ListFilter) {
	appts, err := h.bookings.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": toAppointments(h.bookings.Hours(), appts)})
}

// listFilter reads from/to (YYYY-MM-DD, inclusive days), status, artist_id,
// client_id and limit from the query string.
func (h *Handler) listFilter(r *http.Request) (booking.ListFilter, error) {
	q := r.URL.Query()
	hours := h.bookings.Hours()
	var f booking.ListFilter
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		day, err := hours.ParseDate(v)
		if err != nil {
			return f, err
		}
		f.From = day
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		day, err := hours.ParseDate(v)
		if err != nil {
			return f, err
		}
		f.To = day.AddDate(0, 0, 1)
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.To.After(f.From) {
		return f, errors.New("to must not be before from")
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		st, err := model.ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = n
	}
	f.ArtistID = strings.TrimSpace(q.Get("artist_id"))
	f.ClientID = strings.TrimSpace(q.Get("client_id"))
	return f, nil
}
