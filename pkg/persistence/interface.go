package persistence

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/ethword-go/pkg/types"
)

// IChannelPersistence defines the interface for persisting hub state across restarts.
// All implementations must be thread-safe as ledger reads run concurrently with writes.
//
// The interface supports:
// - Channel records (save, load, list)
// - Account balances held by the hub's bank
// - Hub operational state (the channel id nonce)
// - Lifecycle management (close, health check)
type IChannelPersistence interface {
	// Channel Management

	// SaveChannel persists a channel record keyed by its ID.
	// Overwrites any existing record with the same ID.
	SaveChannel(ch *types.Channel) error

	// LoadChannel retrieves a channel by ID.
	// Returns nil if the channel doesn't exist, error only on storage failure.
	LoadChannel(id common.Hash) (*types.Channel, error)

	// ListChannels returns all channels sorted by ID (ascending).
	// Returns empty slice if no channels exist, error only on storage failure.
	ListChannels() ([]*types.Channel, error)

	// Account Balances

	// SaveAccount persists the balance of an account.
	SaveAccount(addr common.Address, balance *uint256.Int) error

	// LoadAccount returns the balance of an account.
	// Returns nil if the account was never written, error only on storage failure.
	LoadAccount(addr common.Address) (*uint256.Int, error)

	// Hub Operational State

	// SaveHubState persists hub state. Overwrites any existing state.
	SaveHubState(state *HubState) error

	// LoadHubState retrieves hub state.
	// Returns nil state if none exists (first run), error only on storage failure.
	LoadHubState() (*HubState, error)

	// Lifecycle Management

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	// Returns nil if healthy, error describing the problem if not.
	HealthCheck() error
}
