package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Variant identifies how a channel's commitment is structured
type Variant uint8

const (
	VariantUnknown Variant = iota
	// VariantHashChain commits to the tip of a hash chain
	VariantHashChain
	// VariantMerkle commits to the root of a Merkle tree over the chain words
	VariantMerkle
)

// String returns the wire name of the variant
func (v Variant) String() string {
	switch v {
	case VariantHashChain:
		return "hashchain"
	case VariantMerkle:
		return "merkle"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(v))
	}
}

// Valid reports whether v is a known variant
func (v Variant) Valid() bool {
	return v == VariantHashChain || v == VariantMerkle
}

// ParseVariant resolves a variant from its wire name
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hashchain", "hash-chain", "ethword":
		return VariantHashChain, nil
	case "merkle":
		return VariantMerkle, nil
	default:
		return VariantUnknown, fmt.Errorf("unknown channel variant %q", s)
	}
}

// Status is the lifecycle state of a channel
type Status uint8

const (
	StatusUnknown Status = iota
	StatusOpen
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Channel is the ledger record of a single payer/recipient channel
type Channel struct {
	ID        common.Hash
	Recipient common.Address
	Sender    common.Address
	// Balance is the escrowed amount still owed to either party
	Balance *uint256.Int
	// TotalWordCount is the number of words still redeemable
	TotalWordCount uint64
	// Commitment is the chain tip or Merkle root the claims are checked against
	Commitment common.Hash
	Variant    Variant
	Status     Status
	// InitialWordCount is the word count at creation, equal to the Merkle leaf count
	InitialWordCount uint64
}

// IsClosed reports whether the channel accepts no further redemptions
func (c *Channel) IsClosed() bool {
	return c.Status == StatusClosed
}

// RedeemedWordCount returns how many words have been redeemed so far
func (c *Channel) RedeemedWordCount() uint64 {
	return c.InitialWordCount - c.TotalWordCount
}

// Clone returns a deep copy of the channel
func (c *Channel) Clone() *Channel {
	if c == nil {
		return nil
	}
	out := *c
	if c.Balance != nil {
		out.Balance = new(uint256.Int).Set(c.Balance)
	} else {
		out.Balance = new(uint256.Int)
	}
	return &out
}

// Claim is a redemption proof submitted by a recipient
type Claim interface {
	Variant() Variant
}

// HashChainClaim reveals a chain word that hashes to the tip in WordCount-1 steps
type HashChainClaim struct {
	Word      common.Hash
	WordCount uint64
}

func (HashChainClaim) Variant() Variant { return VariantHashChain }

// MerkleClaim reveals the word at Index together with its sibling path
type MerkleClaim struct {
	Word  common.Hash
	Index uint64
	Proof []common.Hash
}

func (MerkleClaim) Variant() Variant { return VariantMerkle }
