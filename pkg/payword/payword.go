// Package payword holds the payer and payee sides of a channel: the payer
// publishes a commitment and releases words, the payee checks each payment
// off-chain and keeps the most valuable claim for redemption.
package payword

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/ethword-go/pkg/channel"
	"github.com/Layr-Labs/ethword-go/pkg/hashchain"
	"github.com/Layr-Labs/ethword-go/pkg/hashing"
	"github.com/Layr-Labs/ethword-go/pkg/merkle"
	"github.com/Layr-Labs/ethword-go/pkg/types"
	"github.com/Layr-Labs/ethword-go/pkg/verifier"
	"github.com/Layr-Labs/ethword-go/pkg/wordsource"
)

var ErrNoPayment = errors.New("no payment received")

// Publication is what a payer announces when opening a channel
type Publication struct {
	Commitment common.Hash
	WordCount  uint64
	Recipient  common.Address
	Deposit    *uint256.Int
	Variant    types.Variant
}

// Params converts the publication into channel creation parameters
func (p *Publication) Params(sender common.Address) channel.Params {
	return channel.Params{
		Sender:     sender,
		Recipient:  p.Recipient,
		Deposit:    new(uint256.Int).Set(p.Deposit),
		WordCount:  p.WordCount,
		Commitment: p.Commitment,
		Variant:    p.Variant,
	}
}

// Payer releases words from a hash chain
type Payer struct {
	hash    hashing.HashFunc
	chain   []common.Hash
	variant types.Variant
	tree    *merkle.MerkleTree
}

// NewPayer loads the chain from src. Merkle payers also build the tree.
func NewPayer(ctx context.Context, hash hashing.HashFunc, src wordsource.Source, variant types.Variant) (*Payer, error) {
	if !variant.Valid() {
		return nil, fmt.Errorf("unknown variant %s", variant)
	}
	chain, err := src.FetchFullChain(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch hash chain: %w", err)
	}
	if len(chain) == 0 {
		return nil, hashchain.ErrInvalidLength
	}

	p := &Payer{hash: hash, chain: chain, variant: variant}
	if variant == types.VariantMerkle {
		p.tree, err = merkle.BuildWordTree(hash, chain)
		if err != nil {
			return nil, fmt.Errorf("failed to build merkle tree: %w", err)
		}
	}
	return p, nil
}

// WordCount returns N
func (p *Payer) WordCount() uint64 {
	return uint64(len(p.chain))
}

// Commitment returns the chain tip or the Merkle root
func (p *Payer) Commitment() common.Hash {
	if p.variant == types.VariantMerkle {
		return p.tree.Root
	}
	return p.chain[len(p.chain)-1]
}

// Commit builds the publication for a channel to recipient
func (p *Payer) Commit(recipient common.Address, deposit *uint256.Int) *Publication {
	return &Publication{
		Commitment: p.Commitment(),
		WordCount:  p.WordCount(),
		Recipient:  recipient,
		Deposit:    new(uint256.Int).Set(deposit),
		Variant:    p.variant,
	}
}

// Pay returns the claim entitling the payee to the first words words
func (p *Payer) Pay(words uint64) (types.Claim, error) {
	if words == 0 {
		return nil, verifier.ErrZeroWordCount
	}
	if words > p.WordCount() {
		return nil, fmt.Errorf("%w: %d of %d", verifier.ErrWordCountExceedsAvailable, words, p.WordCount())
	}

	if p.variant == types.VariantHashChain {
		word, err := hashchain.WordFor(p.chain, words)
		if err != nil {
			return nil, err
		}
		return types.HashChainClaim{Word: word, WordCount: words}, nil
	}

	index := int(words - 1)
	proof, err := p.tree.GenerateProof(index)
	if err != nil {
		return nil, err
	}
	return types.MerkleClaim{Word: p.chain[index], Index: uint64(index), Proof: proof.Proof}, nil
}

// Payee tracks the payments received on one channel
type Payee struct {
	mu       sync.Mutex
	view     *types.Channel
	verifier verifier.Verifier
	best     types.Claim
	words    uint64
}

// NewPayee checks payments against the published commitment
func NewPayee(hash hashing.HashFunc, pub *Publication) *Payee {
	return &Payee{
		view: &types.Channel{
			Recipient:        pub.Recipient,
			Balance:          new(uint256.Int).Set(pub.Deposit),
			TotalWordCount:   pub.WordCount,
			InitialWordCount: pub.WordCount,
			Commitment:       pub.Commitment,
			Variant:          pub.Variant,
			Status:           types.StatusOpen,
		},
		verifier: verifier.NewDispatcher(hash),
	}
}

// Accept verifies claim and keeps it when it is worth more than the current
// best. It returns the number of words the payee is now owed.
func (p *Payee) Accept(claim types.Claim) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	words, err := p.verifier.Verify(p.view, claim)
	if err != nil {
		return p.words, err
	}
	if words > p.words {
		p.words = words
		p.best = claim
	}
	return p.words, nil
}

// Best returns the most valuable claim received so far
func (p *Payee) Best() (types.Claim, uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.best == nil {
		return nil, 0, ErrNoPayment
	}
	return p.best, p.words, nil
}

// Owed returns the payout the best claim would earn on redemption
func (p *Payee) Owed() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return channel.ComputePayout(p.view.Balance, p.words, p.view.TotalWordCount)
}
