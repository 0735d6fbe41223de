package simulate

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/okian/tierank/internal/domain/model"
)

var tiers = []model.Tier{model.Good, model.Medium, model.Bad}

// Generate creates count titles of kind with a random hidden order. The
// returned slice is in insertion order, which is shuffled independently of
// the hidden order.
func Generate(rng *rand.Rand, kind model.MediaKind, count int) []Title {
	titles := make([]Title, count)
	for i := range titles {
		titles[i] = Title{
			ExternalID: uuid.NewString(),
			Name:       fmt.Sprintf("%s #%d", kind, i+1),
			MediaKind:  kind,
			Tier:       tiers[rng.IntN(len(tiers))],
			Position:   i,
		}
	}
	rng.Shuffle(len(titles), func(i, j int) {
		titles[i], titles[j] = titles[j], titles[i]
	})
	return titles
}

// HiddenOrder returns the external ids of titles, best first.
func HiddenOrder(titles []Title) []string {
	order := make([]string, len(titles))
	for _, t := range titles {
		order[t.Position] = t.ExternalID
	}
	return order
}
