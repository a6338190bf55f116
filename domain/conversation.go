package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the unordered pair of two participants.
// Participants are always kept sorted so that (a, b) and (b, a) share a key.
type Conversation struct {
	ID           uuid.UUID   `json:"id"`
	Participants [2]Identity `json:"participants"`
	CreatedAt    time.Time   `json:"createdAt"`
}

func NewConversation(a, b Identity, at time.Time) Conversation {
	return Conversation{
		ID:           uuid.New(),
		Participants: Pair(a, b),
		CreatedAt:    at,
	}
}

// Pair orders two identities.
func Pair(a, b Identity) [2]Identity {
	if b < a {
		return [2]Identity{b, a}
	}
	return [2]Identity{a, b}
}

func (c Conversation) Has(id Identity) bool {
	return c.Participants[0] == id || c.Participants[1] == id
}
