// Package domain contains core concepts of the chat system.
// This file defines participant identities.
// No runtime, network, or UI logic should be added here.
package domain

// Identity is an opaque participant identifier issued outside this service.
type Identity string

func (i Identity) String() string {
	return string(i)
}

// ConnectionID identifies one live channel of a participant.
type ConnectionID string
