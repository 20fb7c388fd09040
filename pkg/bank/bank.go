// Package bank holds account balances for the hub and moves funds in and out
// of channel escrow accounts.
package bank

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/Layr-Labs/ethword-go/pkg/hashing"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrBalanceOverflow   = errors.New("balance overflows uint256")
)

// escrowDomain separates escrow addresses from any externally owned address
var escrowDomain = []byte("payword/escrow")

// Controller moves funds between accounts
type Controller interface {
	// MoveCoins transfers amount from src to dst. A zero amount is a no-op.
	MoveCoins(ctx context.Context, src, dst common.Address, amount *uint256.Int) error
	// Balance returns the balance of addr, zero for unknown accounts
	Balance(ctx context.Context, addr common.Address) (*uint256.Int, error)
	// IssueCoins credits amount to dst out of thin air
	IssueCoins(ctx context.Context, dst common.Address, amount *uint256.Int) error
}

// AccountStore is the subset of persistence the bank needs
type AccountStore interface {
	SaveAccount(addr common.Address, balance *uint256.Int) error
	LoadAccount(addr common.Address) (*uint256.Int, error)
}

// EscrowAccount returns the account holding a channel's deposit
func EscrowAccount(channelID common.Hash) common.Address {
	return common.BytesToAddress(hashing.Keccak256(escrowDomain, channelID.Bytes()).Bytes()[12:])
}

// Bank is a Controller backed by an AccountStore
type Bank struct {
	mu     sync.Mutex
	store  AccountStore
	logger *zap.Logger
}

// NewBank creates a bank over store
func NewBank(store AccountStore, logger *zap.Logger) *Bank {
	return &Bank{store: store, logger: logger}
}

func (b *Bank) load(addr common.Address) (*uint256.Int, error) {
	balance, err := b.store.LoadAccount(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", addr.Hex(), err)
	}
	if balance == nil {
		return new(uint256.Int), nil
	}
	return balance, nil
}

// Balance returns the balance of addr
func (b *Bank) Balance(_ context.Context, addr common.Address) (*uint256.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.load(addr)
}

// MoveCoins transfers amount from src to dst
func (b *Bank) MoveCoins(_ context.Context, src, dst common.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("%w: nil amount", ErrInvalidAmount)
	}
	if amount.IsZero() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	from, err := b.load(src)
	if err != nil {
		return err
	}
	if from.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, src.Hex(), from.Dec(), amount.Dec())
	}
	if src == dst {
		return nil
	}

	to, err := b.load(dst)
	if err != nil {
		return err
	}
	if _, overflow := new(uint256.Int).AddOverflow(to, amount); overflow {
		return ErrBalanceOverflow
	}

	from.Sub(from, amount)
	to.Add(to, amount)

	if err := b.store.SaveAccount(src, from); err != nil {
		return fmt.Errorf("failed to save account %s: %w", src.Hex(), err)
	}
	if err := b.store.SaveAccount(dst, to); err != nil {
		// restore the debit so the move is all or nothing
		from.Add(from, amount)
		if rerr := b.store.SaveAccount(src, from); rerr != nil {
			b.logger.Sugar().Errorw("Failed to restore debited account",
				"account", src.Hex(), "amount", amount.Dec(), "error", rerr)
		}
		return fmt.Errorf("failed to save account %s: %w", dst.Hex(), err)
	}

	b.logger.Sugar().Debugw("Moved coins", "from", src.Hex(), "to", dst.Hex(), "amount", amount.Dec())
	return nil
}

// IssueCoins credits amount to dst
func (b *Bank) IssueCoins(_ context.Context, dst common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	to, err := b.load(dst)
	if err != nil {
		return err
	}
	if _, overflow := to.AddOverflow(to, amount); overflow {
		return ErrBalanceOverflow
	}
	if err := b.store.SaveAccount(dst, to); err != nil {
		return fmt.Errorf("failed to save account %s: %w", dst.Hex(), err)
	}

	b.logger.Sugar().Infow("Issued coins", "account", dst.Hex(), "amount", amount.Dec())
	return nil
}
