package handlers

import (
	"net/http"
	"strings"

	"github.com/inkhouse/inkbook/libs/httpx"
	"github.com/inkhouse/inkbook/services/booking-service/internal/catalog"
	"github.com/inkhouse/inkbook/services/booking-service/internal/scheduling"
)

type servicesResponse struct {
	Currency        string            `json:"currency"`
	DepositsEnabled bool              `json:"deposits_enabled"`
	Open            string            `json:"open"`
	Close           string            `json:"close"`
	Services        []catalog.Service `json:"services"`
}

func (h *Handler) Services(w http.ResponseWriter, _ *http.Request) {
	hours := h.bookings.Hours()
	cat := h.bookings.Catalog()
	httpx.WriteJSON(w, http.StatusOK, servicesResponse{
		Currency:        cat.Currency,
		DepositsEnabled: h.bookings.DepositsEnabled(),
		Open:            hours.Open.String(),
		Close:           hours.Close.String(),
		Services:        cat.Services(),
	})
}

func (h *Handler) ListArtists(w http.ResponseWriter, r *http.Request) {
	artists, err := h.bookings.Artists(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"artists": toArtists(artists, false)})
}

type availabilityResponse struct {
	Date      string   `json:"date"`
	ServiceID string   `json:"service_id"`
	ArtistID  string   `json:"artist_id"`
	Slots     []string `json:"slots"`
}

// Availability serves GET /api/v1/availability?date=YYYY-MM-DD&service_id=..&artist_id=..
// A missing artist_id or "any" means any artist.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := strings.TrimSpace(q.Get("date"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if date == "" || serviceID == "" {
		http.Error(w, "date and service_id required", http.StatusBadRequest)
		return
	}
	choice := scheduling.ChoiceFromID(q.Get("artist_id"))

	slots, err := h.bookings.Availability(r.Context(), date, serviceID, choice)
	if h.observer != nil {
		h.observer.AvailabilityServed(len(slots), err)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	artistID := "any"
	if c, ok := choice.(scheduling.SpecificArtist); ok {
		artistID = c.ID
	}
	httpx.WriteJSON(w, http.StatusOK, availabilityResponse{
		Date:      date,
		ServiceID: serviceID,
		ArtistID:  artistID,
		Slots:     slots,
	})
}
