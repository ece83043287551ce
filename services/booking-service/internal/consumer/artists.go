package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/inkhouse/inkbook/libs/auth"
	"github.com/inkhouse/inkbook/libs/kafkax"
	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

const TopicUserRegistered = "auth.user.registered.v1"

type userRegistered struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type ArtistStore interface {
	UpsertFromUser(ctx context.Context, a model.Artist) (model.Artist, error)
}

type RosterInvalidator interface {
	Invalidate()
}

// Artists grows the roster when auth-service registers an artist account.
type Artists struct {
	store  ArtistStore
	roster RosterInvalidator
	logger *slog.Logger
}

func NewArtists(store ArtistStore, roster RosterInvalidator, logger *slog.Logger) *Artists {
	return &Artists{store: store, roster: roster, logger: logger}
}

func (h *Artists) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventType != "" && meta.EventType != TopicUserRegistered {
		return nil
	}
	var evt userRegistered
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		h.logger.Error("invalid user registered payload", "event_id", meta.EventID, "err", err)
		return nil
	}
	if evt.Role != auth.RoleArtist {
		return nil
	}
	if strings.TrimSpace(evt.UserID) == "" {
		h.logger.Warn("artist registration without user id", "event_id", meta.EventID)
		return nil
	}

	artist, err := h.store.UpsertFromUser(ctx, model.Artist{
		ID:        evt.UserID,
		FirstName: evt.FirstName,
		LastName:  evt.LastName,
		Email:     evt.Email,
	})
	if err != nil {
		return fmt.Errorf("upsert artist %s: %w", evt.UserID, err)
	}
	h.roster.Invalidate()
	h.logger.Info("artist added to roster", "artist_id", artist.ID, "position", artist.Position)
	return nil
}
