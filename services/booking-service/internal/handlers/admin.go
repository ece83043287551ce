package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/inkhouse/inkbook/libs/auth"
	"github.com/inkhouse/inkbook/libs/httpx"
	"github.com/inkhouse/inkbook/services/booking-service/internal/booking"
	"github.com/inkhouse/inkbook/services/booking-service/internal/storage"
)

func (h *Handler) AdminAppointments(w http.ResponseWriter, r *http.Request) {
	f, err := h.listFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeList(w, r, f)
}

// ManualEntry records an appointment taken outside the booking flow (phone,
// walk-in). It is confirmed immediately and skips deposit checkout.
func (h *Handler) ManualEntry(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	bookReq := req.toBookRequest()
	bookReq.ClientID = req.ClientID
	b, err := h.bookings.ManualEntry(r.Context(), auth.IdentityFromRequest(r), booking.ManualEntryRequest{BookRequest: bookReq})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, bookingResponse{
		Appointment: toAppointment(h.bookings.Hours(), b.Appointment),
		ArtistName:  b.Artist.DisplayName(),
	})
}

func (h *Handler) AdminArtists(w http.ResponseWriter, r *http.Request) {
	artists, err := h.artists.List(r.Context(), false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"artists": toArtists(artists, true)})
}

type updateArtistRequest struct {
	Active   *bool `json:"active"`
	Position *int  `json:"position"`
}

func (h *Handler) UpdateArtist(w http.ResponseWriter, r *http.Request) {
	var req updateArtistRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Active == nil && req.Position == nil {
		http.Error(w, "nothing to update", http.StatusBadRequest)
		return
	}
	if req.Position != nil && *req.Position < 0 {
		http.Error(w, "position must not be negative", http.StatusBadRequest)
		return
	}
	artist, err := h.artists.Update(r.Context(), mux.Vars(r)["id"], storage.ArtistPatch{Active: req.Active, Position: req.Position})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.roster != nil {
		h.roster.Invalidate()
	}
	h.logger.Info("artist updated", "artist_id", artist.ID, "active", artist.Active, "position", artist.Position)
	httpx.WriteJSON(w, http.StatusOK, toArtist(artist, true))
}
