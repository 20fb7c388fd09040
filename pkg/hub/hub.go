// Package hub is the multi-channel registry: it assigns channel ids, emits
// lifecycle events and delegates state changes to the ledger.
package hub

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/Layr-Labs/ethword-go/pkg/bank"
	"github.com/Layr-Labs/ethword-go/pkg/channel"
	"github.com/Layr-Labs/ethword-go/pkg/events"
	"github.com/Layr-Labs/ethword-go/pkg/hashing"
	"github.com/Layr-Labs/ethword-go/pkg/ledger"
	"github.com/Layr-Labs/ethword-go/pkg/persistence"
	"github.com/Layr-Labs/ethword-go/pkg/types"
	"github.com/Layr-Labs/ethword-go/pkg/util"
	"github.com/Layr-Labs/ethword-go/pkg/verifier"
)

// Config holds the dependencies of a Hub
type Config struct {
	Store persistence.IChannelPersistence
	// HashName selects the hash used for ids and claim verification
	HashName string
	Policy   channel.Policy
	// MaxWordCount caps new channels; zero means channel.DefaultMaxWordCount
	MaxWordCount uint64
	// Sink receives lifecycle events; defaults to logging them
	Sink   events.Sink
	Logger *zap.Logger
}

// Hub hosts many channels in one ledger
type Hub struct {
	mu     sync.Mutex
	store  persistence.IChannelPersistence
	ledger *ledger.Ledger
	bank   *bank.Bank
	hash   hashing.HashFunc
	sink   events.Sink
	logger *zap.Logger
}

// DeriveChannelID computes H(sender ‖ recipient ‖ uint256(nonce))
func DeriveChannelID(hash hashing.HashFunc, sender, recipient common.Address, nonce uint64) common.Hash {
	return hash(util.EncodePackedChannelSeed(sender, recipient, nonce))
}

// NewHub wires a ledger and bank over cfg.Store. A store previously used with
// a different hash function is refused.
func NewHub(cfg *Config) (*Hub, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("hub requires a store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	hash, err := hashing.Parse(cfg.HashName)
	if err != nil {
		return nil, err
	}
	hashName := strings.ToLower(strings.TrimSpace(cfg.HashName))
	if hashName == "" {
		hashName = hashing.NameKeccak256
	}

	state, err := cfg.Store.LoadHubState()
	if err != nil {
		return nil, fmt.Errorf("failed to load hub state: %w", err)
	}
	switch {
	case state == nil:
		if err := cfg.Store.SaveHubState(&persistence.HubState{HashFunction: hashName}); err != nil {
			return nil, fmt.Errorf("failed to initialize hub state: %w", err)
		}
	case state.HashFunction != "" && state.HashFunction != hashName:
		return nil, fmt.Errorf("store was created with hash %s, configured %s", state.HashFunction, hashName)
	}

	b := bank.NewBank(cfg.Store, logger)
	l, err := ledger.NewLedger(&ledger.Config{
		Store:    cfg.Store,
		Bank:     b,
		Verifier: verifier.NewDispatcher(hash),
		Policy:       cfg.Policy,
		MaxWordCount: cfg.MaxWordCount,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	sink := cfg.Sink
	if sink == nil {
		sink = events.NewLogSink(logger)
	}

	logger.Sugar().Infow("Hub initialized", "hash", hashName, "policy", cfg.Policy.String(), "maxWordCount", l.MaxWordCount())

	return &Hub{
		store:  cfg.Store,
		ledger: l,
		bank:   b,
		hash:   hash,
		sink:   sink,
		logger: logger,
	}, nil
}

// nextNonce reserves a nonce; h.mu must be held. The counter is persisted
// before use so an id is never derived twice, even across restarts.
func (h *Hub) nextNonce() (uint64, error) {
	state, err := h.store.LoadHubState()
	if err != nil {
		return 0, fmt.Errorf("failed to load hub state: %w", err)
	}
	if state == nil {
		state = &persistence.HubState{}
	}
	nonce := state.Nonce
	state.Nonce++
	if err := h.store.SaveHubState(state); err != nil {
		return 0, fmt.Errorf("failed to save hub state: %w", err)
	}
	return nonce, nil
}

// CreateChannel opens a channel funded by caller, who becomes its sender
func (h *Hub) CreateChannel(ctx context.Context, caller common.Address, params channel.Params) (*types.Channel, error) {
	params.Sender = caller
	if err := params.ValidateLimit(h.ledger.MaxWordCount()); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	nonce, err := h.nextNonce()
	if err != nil {
		return nil, err
	}
	id := DeriveChannelID(h.hash, params.Sender, params.Recipient, nonce)

	ch, err := h.ledger.CreateChannel(ctx, id, &params)
	if err != nil {
		return nil, err
	}

	h.sink.Emit(ctx, events.ChannelCreated{
		ChannelID:  ch.ID,
		Sender:     ch.Sender,
		Recipient:  ch.Recipient,
		Amount:     new(uint256.Int).Set(ch.Balance),
		WordCount:  ch.TotalWordCount,
		Commitment: ch.Commitment,
		Variant:    ch.Variant,
	})
	return ch, nil
}

// CloseChannel redeems claim against channel id on behalf of caller
func (h *Hub) CloseChannel(ctx context.Context, caller common.Address, id common.Hash, claim types.Claim) (*channel.Settlement, error) {
	s, err := h.ledger.CloseChannel(ctx, caller, id, claim)
	if err != nil {
		return nil, err
	}

	if s.Closed {
		h.sink.Emit(ctx, events.ChannelClosed{
			ChannelID:     s.ChannelID,
			Recipient:     s.After.Recipient,
			Amount:        new(uint256.Int).Set(s.Payout),
			Sender:        s.After.Sender,
			Refund:        new(uint256.Int).Set(s.Refund),
			WordsRedeemed: s.WordsRedeemed,
		})
	} else {
		h.sink.Emit(ctx, events.ChannelRedeemed{
			ChannelID:      s.ChannelID,
			Recipient:      s.After.Recipient,
			Amount:         new(uint256.Int).Set(s.Payout),
			WordsRedeemed:  s.WordsRedeemed,
			RemainingWords: s.After.TotalWordCount,
		})
	}
	return s, nil
}

// SimulateClose reports what CloseChannel would do without doing it
func (h *Hub) SimulateClose(ctx context.Context, caller common.Address, id common.Hash, claim types.Claim) (*ledger.Simulation, error) {
	return h.ledger.SimulateClose(ctx, caller, id, claim)
}

// GetChannel returns a single channel
func (h *Hub) GetChannel(ctx context.Context, id common.Hash) (*types.Channel, error) {
	return h.ledger.GetChannel(ctx, id)
}

// ListChannels returns every channel sorted by id
func (h *Hub) ListChannels(ctx context.Context) ([]*types.Channel, error) {
	return h.ledger.ListChannels(ctx)
}

// FundAccount credits an account so it can open channels
func (h *Hub) FundAccount(ctx context.Context, addr common.Address, amount *uint256.Int) error {
	return h.bank.IssueCoins(ctx, addr, amount)
}

// Balance returns an account's spendable balance
func (h *Hub) Balance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	return h.bank.Balance(ctx, addr)
}

// HealthCheck reports whether the backing store is usable
func (h *Hub) HealthCheck() error {
	return h.store.HealthCheck()
}
