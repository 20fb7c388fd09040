package memory

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/ethword-go/pkg/persistence"
	"github.com/Layr-Labs/ethword-go/pkg/types"
)

// MemoryPersistence is an in-memory implementation of IChannelPersistence.
// This implementation is intended for TESTING ONLY.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Deep copies data to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	// Channel storage: id -> Channel
	channels map[common.Hash]*types.Channel

	// Account balances: address -> balance
	accounts map[common.Address]*uint256.Int

	// Hub state
	hubState *persistence.HubState

	// Closed flag
	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Prints a loud warning since this should only be used for testing.
func NewMemoryPersistence() *MemoryPersistence {
	fmt.Println("⚠️  WARNING: Using in-memory persistence - ALL DATA WILL BE LOST ON RESTART")
	fmt.Println("⚠️  This should ONLY be used for testing. Set PAYWORD_PERSISTENCE_TYPE=badger for production")

	return &MemoryPersistence{
		channels: make(map[common.Hash]*types.Channel),
		accounts: make(map[common.Address]*uint256.Int),
	}
}

// SaveChannel persists a channel record.
func (m *MemoryPersistence) SaveChannel(ch *types.Channel) error {
	if ch == nil {
		return fmt.Errorf("cannot save nil Channel")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	m.channels[ch.ID] = ch.Clone()
	return nil
}

// LoadChannel retrieves a channel by ID.
func (m *MemoryPersistence) LoadChannel(id common.Hash) (*types.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	ch, exists := m.channels[id]
	if !exists {
		return nil, nil // Not found is not an error
	}

	return ch.Clone(), nil
}

// ListChannels returns all channels sorted by ID.
func (m *MemoryPersistence) ListChannels() ([]*types.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	result := make([]*types.Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		result = append(result, ch.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].ID[:], result[j].ID[:]) < 0
	})

	return result, nil
}

// SaveAccount persists an account balance.
func (m *MemoryPersistence) SaveAccount(addr common.Address, balance *uint256.Int) error {
	if balance == nil {
		return fmt.Errorf("cannot save nil balance")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	m.accounts[addr] = new(uint256.Int).Set(balance)
	return nil
}

// LoadAccount retrieves an account balance.
func (m *MemoryPersistence) LoadAccount(addr common.Address) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	balance, exists := m.accounts[addr]
	if !exists {
		return nil, nil
	}
	return new(uint256.Int).Set(balance), nil
}

// SaveHubState persists hub state.
func (m *MemoryPersistence) SaveHubState(state *persistence.HubState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil HubState")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	stateCopy := *state
	m.hubState = &stateCopy
	return nil
}

// LoadHubState retrieves hub state.
func (m *MemoryPersistence) LoadHubState() (*persistence.HubState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	if m.hubState == nil {
		return nil, nil // First run
	}

	stateCopy := *m.hubState
	return &stateCopy, nil
}

// Close marks the persistence layer as closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}

	return nil
}
