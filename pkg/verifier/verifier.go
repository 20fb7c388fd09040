// Package verifier checks redemption claims against a channel's commitment.
package verifier

import (
	"errors"
	"fmt"

	"github.com/Layr-Labs/ethword-go/pkg/hashchain"
	"github.com/Layr-Labs/ethword-go/pkg/hashing"
	"github.com/Layr-Labs/ethword-go/pkg/merkle"
	"github.com/Layr-Labs/ethword-go/pkg/types"
)

var (
	ErrZeroWordCount             = errors.New("claim redeems zero words")
	ErrWordCountExceedsAvailable = errors.New("claimed word count exceeds words available")
	ErrInvalidPreimageChain      = errors.New("word does not hash to channel commitment")
	ErrInvalidMerkleProof        = errors.New("invalid merkle proof")
	ErrVariantMismatch           = errors.New("claim variant does not match channel")
)

// Verifier validates a claim and returns the number of words it redeems.
// Implementations never modify the channel.
type Verifier interface {
	Verify(ch *types.Channel, claim types.Claim) (uint64, error)
}

// HashChainVerifier verifies claims against a hash chain tip
type HashChainVerifier struct {
	Hash hashing.HashFunc
}

// NewHashChainVerifier creates a verifier using hash, defaulting to keccak256
func NewHashChainVerifier(hash hashing.HashFunc) *HashChainVerifier {
	if hash == nil {
		hash = hashing.Keccak256
	}
	return &HashChainVerifier{Hash: hash}
}

func (v *HashChainVerifier) Verify(ch *types.Channel, claim types.Claim) (uint64, error) {
	if ch.Variant != types.VariantHashChain {
		return 0, fmt.Errorf("%w: channel is %s", ErrVariantMismatch, ch.Variant)
	}
	c, ok := asHashChainClaim(claim)
	if !ok {
		return 0, fmt.Errorf("%w: expected hash chain claim, got %T", ErrVariantMismatch, claim)
	}

	if c.WordCount == 0 {
		return 0, ErrZeroWordCount
	}
	if c.WordCount > ch.TotalWordCount {
		return 0, fmt.Errorf("%w: claimed %d, available %d", ErrWordCountExceedsAvailable, c.WordCount, ch.TotalWordCount)
	}
	if !hashchain.Verify(v.Hash, c.Word, c.WordCount-1, ch.Commitment) {
		return 0, ErrInvalidPreimageChain
	}
	return c.WordCount, nil
}

// MerkleVerifier verifies claims against a Merkle root over index-bound leaves
type MerkleVerifier struct {
	Hash hashing.HashFunc
}

// NewMerkleVerifier creates a verifier using hash, defaulting to keccak256
func NewMerkleVerifier(hash hashing.HashFunc) *MerkleVerifier {
	if hash == nil {
		hash = hashing.Keccak256
	}
	return &MerkleVerifier{Hash: hash}
}

func (v *MerkleVerifier) Verify(ch *types.Channel, claim types.Claim) (uint64, error) {
	if ch.Variant != types.VariantMerkle {
		return 0, fmt.Errorf("%w: channel is %s", ErrVariantMismatch, ch.Variant)
	}
	c, ok := asMerkleClaim(claim)
	if !ok {
		return 0, fmt.Errorf("%w: expected merkle claim, got %T", ErrVariantMismatch, claim)
	}

	if c.Index >= ch.InitialWordCount {
		return 0, fmt.Errorf("%w: index %d, leaf count %d", ErrWordCountExceedsAvailable, c.Index, ch.InitialWordCount)
	}

	leaf := merkle.HashWord(v.Hash, c.Index, c.Word)
	if !merkle.Verify(v.Hash, leaf, int(c.Index), c.Proof, ch.Commitment, int(ch.InitialWordCount)) {
		return 0, ErrInvalidMerkleProof
	}

	// Index i entitles i+1 words in total; earlier redemptions are subtracted
	entitled := c.Index + 1
	redeemed := ch.RedeemedWordCount()
	if entitled <= redeemed {
		return 0, fmt.Errorf("%w: index %d already covered by %d redeemed words", ErrZeroWordCount, c.Index, redeemed)
	}
	return entitled - redeemed, nil
}

// Dispatcher routes a claim to the verifier registered for the channel's variant
type Dispatcher struct {
	verifiers map[types.Variant]Verifier
}

// NewDispatcher returns a dispatcher with both channel variants registered for hash
func NewDispatcher(hash hashing.HashFunc) *Dispatcher {
	return &Dispatcher{
		verifiers: map[types.Variant]Verifier{
			types.VariantHashChain: NewHashChainVerifier(hash),
			types.VariantMerkle:    NewMerkleVerifier(hash),
		},
	}
}

// Register replaces the verifier for a variant
func (d *Dispatcher) Register(variant types.Variant, v Verifier) {
	d.verifiers[variant] = v
}

func (d *Dispatcher) Verify(ch *types.Channel, claim types.Claim) (uint64, error) {
	v, ok := d.verifiers[ch.Variant]
	if !ok {
		return 0, fmt.Errorf("%w: no verifier for %s", ErrVariantMismatch, ch.Variant)
	}
	return v.Verify(ch, claim)
}

func asHashChainClaim(claim types.Claim) (types.HashChainClaim, bool) {
	switch c := claim.(type) {
	case types.HashChainClaim:
		return c, true
	case *types.HashChainClaim:
		if c != nil {
			return *c, true
		}
	}
	return types.HashChainClaim{}, false
}

func asMerkleClaim(claim types.Claim) (types.MerkleClaim, bool) {
	switch c := claim.(type) {
	case types.MerkleClaim:
		return c, true
	case *types.MerkleClaim:
		if c != nil {
			return *c, true
		}
	}
	return types.MerkleClaim{}, false
}
