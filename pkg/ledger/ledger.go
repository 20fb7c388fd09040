// Package ledger owns the authoritative channel records and moves funds when
// channels are created and redeemed.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Layr-Labs/ethword-go/pkg/bank"
	"github.com/Layr-Labs/ethword-go/pkg/channel"
	"github.com/Layr-Labs/ethword-go/pkg/persistence"
	"github.com/Layr-Labs/ethword-go/pkg/types"
	"github.com/Layr-Labs/ethword-go/pkg/verifier"
)

// Config holds the dependencies of a Ledger
type Config struct {
	Store    persistence.IChannelPersistence
	Bank     bank.Controller
	Verifier verifier.Verifier
	Policy   channel.Policy
	// MaxWordCount caps new channels; zero means channel.DefaultMaxWordCount
	MaxWordCount uint64
	Logger       *zap.Logger
}

// Ledger serialises every mutation of channel state behind a single lock
type Ledger struct {
	mu       sync.Mutex
	store    persistence.IChannelPersistence
	bank     bank.Controller
	verifier verifier.Verifier
	policy   channel.Policy
	maxWords uint64
	logger   *zap.Logger
}

// Simulation is the outcome a close would have, without performing it
type Simulation struct {
	Valid      bool
	Reason     string
	Err        error
	Settlement *channel.Settlement
}

// NewLedger creates a ledger
func NewLedger(cfg *Config) (*Ledger, error) {
	if cfg == nil || cfg.Store == nil || cfg.Bank == nil || cfg.Verifier == nil {
		return nil, fmt.Errorf("ledger requires a store, a bank and a verifier")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxWords := cfg.MaxWordCount
	if maxWords == 0 {
		maxWords = channel.DefaultMaxWordCount
	}
	return &Ledger{
		store:    cfg.Store,
		bank:     cfg.Bank,
		verifier: cfg.Verifier,
		policy:   cfg.Policy,
		maxWords: maxWords,
		logger:   logger,
	}, nil
}

// MaxWordCount returns the largest word count a new channel may commit to
func (l *Ledger) MaxWordCount() uint64 {
	return l.maxWords
}

// Policy returns the close policy
func (l *Ledger) Policy() channel.Policy {
	return l.policy
}

// CreateChannel escrows the deposit and stores a new open channel under id
func (l *Ledger) CreateChannel(ctx context.Context, id common.Hash, params *channel.Params) (*types.Channel, error) {
	ch, err := channel.New(id, params, l.maxWords)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.store.LoadChannel(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load channel: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", channel.ErrChannelExists, id.Hex())
	}

	escrow := bank.EscrowAccount(id)
	if err := l.bank.MoveCoins(ctx, params.Sender, escrow, params.Deposit); err != nil {
		return nil, fmt.Errorf("failed to escrow deposit: %w", err)
	}

	if err := l.store.SaveChannel(ch); err != nil {
		if rerr := l.bank.MoveCoins(ctx, escrow, params.Sender, params.Deposit); rerr != nil {
			l.logger.Sugar().Errorw("Failed to return escrowed deposit",
				"channelId", id.Hex(), "sender", params.Sender.Hex(), "error", rerr)
		}
		return nil, fmt.Errorf("failed to save channel: %w", err)
	}

	l.logger.Sugar().Infow("Channel created",
		"channelId", id.Hex(),
		"sender", ch.Sender.Hex(),
		"recipient", ch.Recipient.Hex(),
		"deposit", ch.Balance.Dec(),
		"wordCount", ch.TotalWordCount,
		"variant", ch.Variant.String(),
	)
	return ch.Clone(), nil
}

// settle loads the channel and computes its settlement; l.mu must be held
func (l *Ledger) settle(caller common.Address, id common.Hash, claim types.Claim) (*channel.Settlement, error) {
	ch, err := l.store.LoadChannel(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load channel: %w", err)
	}
	if ch == nil {
		return nil, fmt.Errorf("%w: %s", channel.ErrChannelNotFound, id.Hex())
	}
	return channel.Settle(ch, caller, claim, l.verifier, l.policy)
}

// CloseChannel redeems claim on behalf of caller. Failed checks leave the
// channel and every balance unchanged.
func (l *Ledger) CloseChannel(ctx context.Context, caller common.Address, id common.Hash, claim types.Claim) (*channel.Settlement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := l.settle(caller, id, claim)
	if err != nil {
		l.logger.Sugar().Warnw("Rejected redemption",
			"channelId", id.Hex(), "caller", caller.Hex(), "error", err)
		return nil, err
	}

	escrow := bank.EscrowAccount(id)
	if err := l.bank.MoveCoins(ctx, escrow, s.After.Recipient, s.Payout); err != nil {
		return nil, fmt.Errorf("failed to pay recipient: %w", err)
	}
	if err := l.bank.MoveCoins(ctx, escrow, s.After.Sender, s.Refund); err != nil {
		l.revert(ctx, id, escrow, s, false)
		return nil, fmt.Errorf("failed to refund sender: %w", err)
	}

	if err := l.store.SaveChannel(s.After); err != nil {
		l.revert(ctx, id, escrow, s, true)
		return nil, fmt.Errorf("failed to save channel: %w", err)
	}

	l.logger.Sugar().Infow("Channel redeemed",
		"channelId", id.Hex(),
		"recipient", s.After.Recipient.Hex(),
		"wordsRedeemed", s.WordsRedeemed,
		"payout", s.Payout.Dec(),
		"refund", s.Refund.Dec(),
		"closed", s.Closed,
	)
	return s, nil
}

// revert returns funds moved for a settlement that could not be persisted
func (l *Ledger) revert(ctx context.Context, id common.Hash, escrow common.Address, s *channel.Settlement, refunded bool) {
	if refunded {
		if err := l.bank.MoveCoins(ctx, s.After.Sender, escrow, s.Refund); err != nil {
			l.logger.Sugar().Errorw("Failed to revert refund", "channelId", id.Hex(), "error", err)
		}
	}
	if err := l.bank.MoveCoins(ctx, s.After.Recipient, escrow, s.Payout); err != nil {
		l.logger.Sugar().Errorw("Failed to revert payout", "channelId", id.Hex(), "error", err)
	}
}

// SimulateClose reports what CloseChannel would do for the same inputs.
// Only storage failures are returned as errors; rejected claims produce an
// invalid Simulation.
func (l *Ledger) SimulateClose(_ context.Context, caller common.Address, id common.Hash, claim types.Claim) (*Simulation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := l.settle(caller, id, claim)
	if err != nil {
		if isRejection(err) {
			return &Simulation{Valid: false, Reason: err.Error(), Err: err}, nil
		}
		return nil, err
	}
	return &Simulation{Valid: true, Settlement: s}, nil
}

// GetChannel returns the channel stored under id
func (l *Ledger) GetChannel(_ context.Context, id common.Hash) (*types.Channel, error) {
	ch, err := l.store.LoadChannel(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load channel: %w", err)
	}
	if ch == nil {
		return nil, fmt.Errorf("%w: %s", channel.ErrChannelNotFound, id.Hex())
	}
	return ch, nil
}

// ListChannels returns every channel sorted by id
func (l *Ledger) ListChannels(_ context.Context) ([]*types.Channel, error) {
	channels, err := l.store.ListChannels()
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

var rejections = []error{
	channel.ErrChannelNotFound,
	channel.ErrChannelClosed,
	channel.ErrUnauthorized,
	verifier.ErrZeroWordCount,
	verifier.ErrWordCountExceedsAvailable,
	verifier.ErrInvalidPreimageChain,
	verifier.ErrInvalidMerkleProof,
	verifier.ErrVariantMismatch,
}

// isRejection reports whether err is a claim being refused rather than a fault
func isRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
