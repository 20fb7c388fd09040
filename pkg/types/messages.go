package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CreateChannelRequest opens a channel funded by the caller
type CreateChannelRequest struct {
	Recipient  common.Address `json:"recipient"`
	Deposit    string         `json:"deposit"` // decimal or 0x-prefixed hex
	WordCount  uint64         `json:"word_count"`
	Commitment common.Hash    `json:"commitment"`
	Variant    string         `json:"variant"`
}

// ClaimMessage is the wire form of a Claim
type ClaimMessage struct {
	Variant   string        `json:"variant"`
	Word      common.Hash   `json:"word"`
	WordCount uint64        `json:"word_count,omitempty"` // hash chain only
	Index     uint64        `json:"index,omitempty"`      // merkle only
	Proof     []common.Hash `json:"proof,omitempty"`      // merkle only
}

// CloseChannelRequest submits a claim for a channel
type CloseChannelRequest struct {
	Claim ClaimMessage `json:"claim"`
}

// ChannelResponse is the wire form of a Channel
type ChannelResponse struct {
	ID               common.Hash    `json:"id"`
	Recipient        common.Address `json:"recipient"`
	Sender           common.Address `json:"sender"`
	Balance          string         `json:"balance"`
	TotalWordCount   uint64         `json:"total_word_count"`
	InitialWordCount uint64         `json:"initial_word_count"`
	Commitment       common.Hash    `json:"commitment"`
	Variant          string         `json:"variant"`
	Status           string         `json:"status"`
}

// ListChannelsResponse lists every channel known to the hub
type ListChannelsResponse struct {
	Channels []ChannelResponse `json:"channels"`
}

// SettlementResponse describes the effect of a close
type SettlementResponse struct {
	ChannelID     common.Hash     `json:"channel_id"`
	WordsRedeemed uint64          `json:"words_redeemed"`
	Payout        string          `json:"payout"`
	Refund        string          `json:"refund"`
	Closed        bool            `json:"closed"`
	Channel       ChannelResponse `json:"channel"`
}

// SimulationResponse describes what a close would do
type SimulationResponse struct {
	Valid      bool                `json:"valid"`
	Reason     string              `json:"reason,omitempty"`
	Settlement *SettlementResponse `json:"settlement,omitempty"`
}

// FundAccountRequest credits an account on the hub's bank
type FundAccountRequest struct {
	Amount string `json:"amount"`
}

// AccountResponse reports an account balance
type AccountResponse struct {
	Address common.Address `json:"address"`
	Balance string         `json:"balance"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewChannelResponse converts a channel to its wire form
func NewChannelResponse(ch *Channel) ChannelResponse {
	balance := "0"
	if ch.Balance != nil {
		balance = ch.Balance.Dec()
	}
	return ChannelResponse{
		ID:               ch.ID,
		Recipient:        ch.Recipient,
		Sender:           ch.Sender,
		Balance:          balance,
		TotalWordCount:   ch.TotalWordCount,
		InitialWordCount: ch.InitialWordCount,
		Commitment:       ch.Commitment,
		Variant:          ch.Variant.String(),
		Status:           ch.Status.String(),
	}
}

// NewClaimMessage converts a claim to its wire form
func NewClaimMessage(claim Claim) (ClaimMessage, error) {
	switch c := claim.(type) {
	case HashChainClaim:
		return ClaimMessage{Variant: VariantHashChain.String(), Word: c.Word, WordCount: c.WordCount}, nil
	case *HashChainClaim:
		return NewClaimMessage(*c)
	case MerkleClaim:
		return ClaimMessage{Variant: VariantMerkle.String(), Word: c.Word, Index: c.Index, Proof: c.Proof}, nil
	case *MerkleClaim:
		return NewClaimMessage(*c)
	default:
		return ClaimMessage{}, fmt.Errorf("unsupported claim type %T", claim)
	}
}

// ToClaim converts the wire form back into a Claim
func (m ClaimMessage) ToClaim() (Claim, error) {
	variant, err := ParseVariant(m.Variant)
	if err != nil {
		return nil, err
	}
	switch variant {
	case VariantHashChain:
		return HashChainClaim{Word: m.Word, WordCount: m.WordCount}, nil
	default:
		proof := make([]common.Hash, len(m.Proof))
		copy(proof, m.Proof)
		return MerkleClaim{Word: m.Word, Index: m.Index, Proof: proof}, nil
	}
}

// ParseAmount parses a decimal or 0x-prefixed hex amount
func ParseAmount(s string) (*uint256.Int, error) {
	if len(s) > 1 && (s[:2] == "0x" || s[:2] == "0X") {
		v, err := uint256.FromHex(s)
		if err != nil {
			return nil, fmt.Errorf("invalid hex amount %q: %w", s, err)
		}
		return v, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}
