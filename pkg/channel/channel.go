// Package channel implements the pure state transitions of a payword channel.
// Functions here never mutate their inputs; callers persist the returned state.
package channel

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/ethword-go/pkg/types"
	"github.com/Layr-Labs/ethword-go/pkg/verifier"
)

var (
	ErrInvalidParameters = errors.New("invalid channel parameters")
	ErrUnauthorized      = errors.New("caller is not the channel recipient")
	ErrChannelNotFound   = errors.New("channel not found")
	ErrChannelClosed     = errors.New("channel is closed")
	ErrChannelExists     = errors.New("channel already exists")
)

// DefaultMaxWordCount caps the words a channel may commit to. A hash chain
// claim costs up to WordCount hashes to verify under the ledger lock.
const DefaultMaxWordCount uint64 = 1 << 20

// Policy decides whether a successful redemption closes the channel
type Policy uint8

const (
	// PolicyAlwaysClose closes the channel on the first successful redemption
	PolicyAlwaysClose Policy = iota
	// PolicyPartial keeps merkle channels open until their words or balance run out
	PolicyPartial
)

func (p Policy) String() string {
	switch p {
	case PolicyAlwaysClose:
		return "always-close"
	case PolicyPartial:
		return "partial"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// ParsePolicy resolves a policy from its configured name
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "always-close":
		return PolicyAlwaysClose, nil
	case "partial":
		return PolicyPartial, nil
	default:
		return PolicyAlwaysClose, fmt.Errorf("unknown close policy %q", s)
	}
}

// Params are the inputs to channel creation
type Params struct {
	Sender     common.Address
	Recipient  common.Address
	Deposit    *uint256.Int
	WordCount  uint64
	Commitment common.Hash
	Variant    types.Variant
}

// Validate checks the creation parameters against DefaultMaxWordCount
func (p *Params) Validate() error {
	return p.ValidateLimit(DefaultMaxWordCount)
}

// ValidateLimit checks the creation parameters, refusing more than maxWords
// words. A zero maxWords means DefaultMaxWordCount.
func (p *Params) ValidateLimit(maxWords uint64) error {
	if maxWords == 0 {
		maxWords = DefaultMaxWordCount
	}
	switch {
	case p.Recipient == (common.Address{}):
		return fmt.Errorf("%w: recipient is the zero address", ErrInvalidParameters)
	case p.Sender == (common.Address{}):
		return fmt.Errorf("%w: sender is the zero address", ErrInvalidParameters)
	case p.WordCount == 0:
		return fmt.Errorf("%w: word count must be positive", ErrInvalidParameters)
	case p.WordCount > maxWords:
		return fmt.Errorf("%w: word count %d exceeds limit %d", ErrInvalidParameters, p.WordCount, maxWords)
	case p.Commitment == (common.Hash{}):
		return fmt.Errorf("%w: commitment is empty", ErrInvalidParameters)
	case p.Deposit == nil || p.Deposit.IsZero():
		return fmt.Errorf("%w: deposit must be positive", ErrInvalidParameters)
	case !p.Variant.Valid():
		return fmt.Errorf("%w: unknown variant %s", ErrInvalidParameters, p.Variant)
	}
	return nil
}

// New builds the open channel record, validating p against maxWords
func New(id common.Hash, p *Params, maxWords uint64) (*types.Channel, error) {
	if err := p.ValidateLimit(maxWords); err != nil {
		return nil, err
	}
	return &types.Channel{
		ID:               id,
		Recipient:        p.Recipient,
		Sender:           p.Sender,
		Balance:          new(uint256.Int).Set(p.Deposit),
		TotalWordCount:   p.WordCount,
		Commitment:       p.Commitment,
		Variant:          p.Variant,
		Status:           types.StatusOpen,
		InitialWordCount: p.WordCount,
	}, nil
}

// ComputePayout returns floor(balance * words / total) without intermediate overflow.
// The remainder of the division stays in the channel.
func ComputePayout(balance *uint256.Int, words, total uint64) *uint256.Int {
	if total == 0 || balance == nil {
		return new(uint256.Int)
	}
	if words >= total {
		return new(uint256.Int).Set(balance)
	}
	payout, _ := new(uint256.Int).MulDivOverflow(balance, uint256.NewInt(words), uint256.NewInt(total))
	return payout
}

// Settlement is the outcome of a successful redemption
type Settlement struct {
	ChannelID     common.Hash
	WordsRedeemed uint64
	// Payout goes to the recipient
	Payout *uint256.Int
	// Refund goes back to the sender when the channel closes
	Refund *uint256.Int
	Before *types.Channel
	After  *types.Channel
	Closed bool
}

// Settle computes the next state of ch after caller redeems claim.
// ch is left untouched; on any error no settlement is returned.
func Settle(ch *types.Channel, caller common.Address, claim types.Claim, v verifier.Verifier, policy Policy) (*Settlement, error) {
	if ch == nil {
		return nil, ErrChannelNotFound
	}
	if ch.IsClosed() {
		return nil, fmt.Errorf("%w: %s", ErrChannelClosed, ch.ID.Hex())
	}
	if caller != ch.Recipient {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}

	words, err := v.Verify(ch, claim)
	if err != nil {
		return nil, err
	}

	before := ch.Clone()
	after := ch.Clone()

	payout := ComputePayout(before.Balance, words, before.TotalWordCount)
	after.Balance.Sub(after.Balance, payout)
	after.TotalWordCount -= words

	// the revealed word becomes the new tip
	if after.Variant == types.VariantHashChain {
		if hc, ok := claim.(types.HashChainClaim); ok {
			after.Commitment = hc.Word
		} else if hp, ok := claim.(*types.HashChainClaim); ok {
			after.Commitment = hp.Word
		}
	}

	closed := policy == PolicyAlwaysClose ||
		after.Variant == types.VariantHashChain ||
		after.TotalWordCount == 0 ||
		after.Balance.IsZero()

	refund := new(uint256.Int)
	if closed {
		refund.Set(after.Balance)
		after.Balance.Clear()
		after.Status = types.StatusClosed
	}

	return &Settlement{
		ChannelID:     ch.ID,
		WordsRedeemed: words,
		Payout:        payout,
		Refund:        refund,
		Before:        before,
		After:         after,
		Closed:        closed,
	}, nil
}
