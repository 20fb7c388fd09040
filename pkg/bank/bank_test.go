package bank

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Layr-Labs/ethword-go/pkg/persistence/memory"
	"github.com/Layr-Labs/ethword-go/pkg/testutil"
)

var _ Controller = (*Bank)(nil)

// failingStore fails SaveAccount for one address
type failingStore struct {
	*memory.MemoryPersistence
	failFor common.Address
}

func (f *failingStore) SaveAccount(addr common.Address, balance *uint256.Int) error {
	if addr == f.failFor {
		return errors.New("disk full")
	}
	return f.MemoryPersistence.SaveAccount(addr, balance)
}

func newTestBank(t *testing.T) *Bank {
	t.Helper()
	return NewBank(memory.NewMemoryPersistence(), zap.NewNop())
}

func TestIssueAndBalance(t *testing.T) {
	ctx := context.Background()
	b := newTestBank(t)

	balance, err := b.Balance(ctx, testutil.SenderAddress)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	require.NoError(t, b.IssueCoins(ctx, testutil.SenderAddress, testutil.Ether(10)))
	require.NoError(t, b.IssueCoins(ctx, testutil.SenderAddress, testutil.Ether(5)))

	balance, err = b.Balance(ctx, testutil.SenderAddress)
	require.NoError(t, err)
	assert.Equal(t, testutil.Ether(15), balance)

	require.ErrorIs(t, b.IssueCoins(ctx, testutil.SenderAddress, uint256.NewInt(0)), ErrInvalidAmount)
	require.ErrorIs(t, b.IssueCoins(ctx, testutil.SenderAddress, nil), ErrInvalidAmount)
}

func TestIssueOverflow(t *testing.T) {
	ctx := context.Background()
	b := newTestBank(t)

	require.NoError(t, b.IssueCoins(ctx, testutil.SenderAddress, new(uint256.Int).SetAllOne()))
	require.ErrorIs(t, b.IssueCoins(ctx, testutil.SenderAddress, uint256.NewInt(1)), ErrBalanceOverflow)

	balance, err := b.Balance(ctx, testutil.SenderAddress)
	require.NoError(t, err)
	assert.Equal(t, new(uint256.Int).SetAllOne(), balance)
}

func TestMoveCoins(t *testing.T) {
	ctx := context.Background()
	b := newTestBank(t)
	require.NoError(t, b.IssueCoins(ctx, testutil.SenderAddress, uint256.NewInt(100)))

	require.NoError(t, b.MoveCoins(ctx, testutil.SenderAddress, testutil.RecipientAddress, uint256.NewInt(40)))

	from, err := b.Balance(ctx, testutil.SenderAddress)
	require.NoError(t, err)
	to, err := b.Balance(ctx, testutil.RecipientAddress)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), from.Uint64())
	assert.Equal(t, uint64(40), to.Uint64())

	t.Run("insufficient funds", func(t *testing.T) {
		err := b.MoveCoins(ctx, testutil.SenderAddress, testutil.RecipientAddress, uint256.NewInt(61))
		require.ErrorIs(t, err, ErrInsufficientFunds)

		from, err := b.Balance(ctx, testutil.SenderAddress)
		require.NoError(t, err)
		assert.Equal(t, uint64(60), from.Uint64())
	})

	t.Run("zero amount is a no-op", func(t *testing.T) {
		require.NoError(t, b.MoveCoins(ctx, testutil.StrangerAddress, testutil.RecipientAddress, uint256.NewInt(0)))
	})

	t.Run("nil amount", func(t *testing.T) {
		require.ErrorIs(t, b.MoveCoins(ctx, testutil.SenderAddress, testutil.RecipientAddress, nil), ErrInvalidAmount)
	})

	t.Run("self transfer", func(t *testing.T) {
		require.NoError(t, b.MoveCoins(ctx, testutil.SenderAddress, testutil.SenderAddress, uint256.NewInt(10)))
		from, err := b.Balance(ctx, testutil.SenderAddress)
		require.NoError(t, err)
		assert.Equal(t, uint64(60), from.Uint64())
	})
}

func TestMoveCoinsRestoresDebitOnFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryPersistence: memory.NewMemoryPersistence(), failFor: testutil.RecipientAddress}
	b := NewBank(store, zap.NewNop())
	require.NoError(t, b.IssueCoins(ctx, testutil.SenderAddress, uint256.NewInt(100)))

	err := b.MoveCoins(ctx, testutil.SenderAddress, testutil.RecipientAddress, uint256.NewInt(30))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	from, err := b.Balance(ctx, testutil.SenderAddress)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), from.Uint64())
}

func TestEscrowAccount(t *testing.T) {
	a := EscrowAccount(common.HexToHash("0x01"))
	b := EscrowAccount(common.HexToHash("0x02"))

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, common.Address{}, a)
	assert.Equal(t, a, EscrowAccount(common.HexToHash("0x01")))
}
