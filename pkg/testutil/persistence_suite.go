package testutil

import (
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/ethword-go/pkg/persistence"
	"github.com/Layr-Labs/ethword-go/pkg/types"
)

// NewTestChannel returns an open channel record with the given id byte
func NewTestChannel(id byte) *types.Channel {
	return &types.Channel{
		ID:               common.BytesToHash([]byte{id}),
		Recipient:        RecipientAddress,
		Sender:           SenderAddress,
		Balance:          Ether(3000),
		TotalWordCount:   10,
		Commitment:       common.BytesToHash([]byte{0xc0, id}),
		Variant:          types.VariantHashChain,
		Status:           types.StatusOpen,
		InitialWordCount: 10,
	}
}

// RunPersistenceSuite runs the behaviour every IChannelPersistence must share.
// newStore must return a fresh, empty store for each call.
func RunPersistenceSuite(t *testing.T, newStore func(t *testing.T) persistence.IChannelPersistence) {
	t.Run("SaveAndLoadChannel", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		ch := NewTestChannel(1)
		require.NoError(t, store.SaveChannel(ch))

		loaded, err := store.LoadChannel(ch.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, ch, loaded)
	})

	t.Run("LoadChannel_NotFound", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		loaded, err := store.LoadChannel(common.HexToHash("0x99"))
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("SaveChannel_Nil", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		err := store.SaveChannel(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nil Channel")
	})

	t.Run("SaveChannel_Overwrite", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		ch := NewTestChannel(2)
		require.NoError(t, store.SaveChannel(ch))

		ch.Balance = uint256.NewInt(0)
		ch.Status = types.StatusClosed
		ch.TotalWordCount = 3
		require.NoError(t, store.SaveChannel(ch))

		loaded, err := store.LoadChannel(ch.ID)
		require.NoError(t, err)
		assert.Equal(t, ch, loaded)
	})

	t.Run("ChannelIsolation", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		ch := NewTestChannel(3)
		require.NoError(t, store.SaveChannel(ch))
		ch.Balance.SetUint64(1)

		loaded, err := store.LoadChannel(ch.ID)
		require.NoError(t, err)
		assert.Equal(t, Ether(3000), loaded.Balance)

		loaded.Balance.SetUint64(2)
		again, err := store.LoadChannel(ch.ID)
		require.NoError(t, err)
		assert.Equal(t, Ether(3000), again.Balance)
	})

	t.Run("ListChannels_Sorted", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		empty, err := store.ListChannels()
		require.NoError(t, err)
		assert.Empty(t, empty)

		for _, id := range []byte{5, 1, 9, 3} {
			require.NoError(t, store.SaveChannel(NewTestChannel(id)))
		}

		list, err := store.ListChannels()
		require.NoError(t, err)
		require.Len(t, list, 4)
		for i, id := range []byte{1, 3, 5, 9} {
			assert.Equal(t, NewTestChannel(id), list[i])
		}
	})

	t.Run("Accounts", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		balance, err := store.LoadAccount(SenderAddress)
		require.NoError(t, err)
		assert.Nil(t, balance)

		require.NoError(t, store.SaveAccount(SenderAddress, Ether(5)))
		require.NoError(t, store.SaveAccount(RecipientAddress, uint256.NewInt(0)))

		balance, err = store.LoadAccount(SenderAddress)
		require.NoError(t, err)
		assert.Equal(t, Ether(5), balance)

		balance, err = store.LoadAccount(RecipientAddress)
		require.NoError(t, err)
		require.NotNil(t, balance)
		assert.True(t, balance.IsZero())

		require.Error(t, store.SaveAccount(SenderAddress, nil))
	})

	t.Run("HubState", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		state, err := store.LoadHubState()
		require.NoError(t, err)
		assert.Nil(t, state)

		require.NoError(t, store.SaveHubState(&persistence.HubState{Nonce: 4, HashFunction: "keccak256"}))
		require.NoError(t, store.SaveHubState(&persistence.HubState{Nonce: 5, HashFunction: "keccak256"}))

		state, err = store.LoadHubState()
		require.NoError(t, err)
		assert.Equal(t, &persistence.HubState{Nonce: 5, HashFunction: "keccak256"}, state)

		require.Error(t, store.SaveHubState(nil))
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id byte) {
				defer wg.Done()
				assert.NoError(t, store.SaveChannel(NewTestChannel(id)))
				_, err := store.LoadChannel(common.BytesToHash([]byte{id}))
				assert.NoError(t, err)
				_, err = store.ListChannels()
				assert.NoError(t, err)
			}(byte(i + 1))
		}
		wg.Wait()

		list, err := store.ListChannels()
		require.NoError(t, err)
		assert.Len(t, list, 10)
	})

	t.Run("CloseAndHealthCheck", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.HealthCheck())
		require.NoError(t, store.Close())
		require.NoError(t, store.Close(), "close must be idempotent")

		assert.Error(t, store.HealthCheck())
		assert.Error(t, store.SaveChannel(NewTestChannel(1)))
		_, err := store.LoadChannel(common.Hash{})
		assert.Error(t, err)
		_, err = store.ListChannels()
		assert.Error(t, err)
		assert.Error(t, store.SaveAccount(SenderAddress, uint256.NewInt(1)))
		_, err = store.LoadAccount(SenderAddress)
		assert.Error(t, err)
		assert.Error(t, store.SaveHubState(&persistence.HubState{}))
		_, err = store.LoadHubState()
		assert.Error(t, err)
	})
}
