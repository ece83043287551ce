package handlers

import (
	"time"

	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
	"github.com/inkhouse/inkbook/services/booking-service/internal/scheduling"
)

type appointmentResponse struct {
	ID           string `json:"id"`
	ArtistID     string `json:"artist_id"`
	ClientID     string `json:"client_id"`
	ClientName   string `json:"client_name"`
	ClientEmail  string `json:"client_email,omitempty"`
	ClientPhone  string `json:"client_phone,omitempty"`
	ServiceID    string `json:"service_id"`
	Type         string `json:"type"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Status       string `json:"status"`
	Notes        string `json:"notes,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

func toAppointment(h scheduling.Hours, a model.Appointment) appointmentResponse {
	local := a.StartTime.In(h.Location)
	resp := appointmentResponse{
		ID:           a.ID,
		ArtistID:     a.ArtistID,
		ClientID:     a.ClientID,
		ClientName:   a.ClientName,
		ClientEmail:  a.ClientEmail,
		ClientPhone:  a.ClientPhone,
		ServiceID:    a.ServiceID,
		Type:         a.Type,
		Date:         local.Format("2006-01-02"),
		Time:         h.Label(a.StartTime),
		StartTime:    a.StartTime.UTC().Format(time.RFC3339),
		EndTime:      a.EndTime.UTC().Format(time.RFC3339),
		Status:       string(a.Status),
		Notes:        a.Notes,
		CancelReason: a.CancelReason,
	}
	if !a.CreatedAt.IsZero() {
		resp.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toAppointments(h scheduling.Hours, appts []model.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointment(h, a))
	}
	return out
}

type artistResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Active    *bool  `json:"active,omitempty"`
	Position  *int   `json:"position,omitempty"`
}

// toArtist renders an artist; admin views include email and roster fields.
func toArtist(a model.Artist, admin bool) artistResponse {
	resp := artistResponse{
		ID:        a.ID,
		Name:      a.DisplayName(),
		FirstName: a.FirstName,
		LastName:  a.LastName,
	}
	if admin {
		active, position := a.Active, a.Position
		resp.Email = a.Email
		resp.Active = &active
		resp.Position = &position
	}
	return resp
}

func toArtists(artists []model.Artist, admin bool) []artistResponse {
	out := make([]artistResponse, 0, len(artists))
	for _, a := range artists {
		out = append(out, toArtist(a, admin))
	}
	return out
}
