package persistence

import "errors"

// ErrClosed is returned by every operation after Close
var ErrClosed = errors.New("persistence layer is closed")

// HubState represents hub state that must persist across restarts.
type HubState struct {
	// Nonce is the next value mixed into a derived channel ID.
	// It only ever increases so IDs are never reissued after a restart.
	Nonce uint64 `json:"nonce"`

	// HashFunction is the name of the hash the hub verifies claims with.
	// Stored so a restart with a different hash is detected.
	HashFunction string `json:"hashFunction,omitempty"`
}
