package scheduling

import (
	"strings"

	"github.com/inkhouse/inkbook/services/booking-service/internal/model"
)

// ArtistChoice is either SpecificArtist or AnyArtist.
type ArtistChoice interface {
	isArtistChoice()
}

// SpecificArtist restricts a request to one artist.
type SpecificArtist struct {
	ID string
}

// AnyArtist accepts whichever roster artist is free.
type AnyArtist struct{}

func (SpecificArtist) isArtistChoice() {}
func (AnyArtist) isArtistChoice()      {}

// ChoiceFromID maps the wire value used by clients: empty or "any" means
// AnyArtist, anything else names an artist.
func ChoiceFromID(id string) ArtistChoice {
	id = strings.TrimSpace(id)
	if id == "" || strings.EqualFold(id, "any") {
		return AnyArtist{}
	}
	return SpecificArtist{ID: id}
}

// candidates returns the artist ids a choice may be served by, in order.
func candidates(choice ArtistChoice, roster []model.Artist) []string {
	switch c := choice.(type) {
	case SpecificArtist:
		return []string{c.ID}
	case AnyArtist:
		ids := make([]string, 0, len(roster))
		for _, a := range roster {
			ids = append(ids, a.ID)
		}
		return ids
	default:
		return nil
	}
}
