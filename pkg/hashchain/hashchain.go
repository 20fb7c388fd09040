// Package hashchain builds and walks one-way payword chains.
//
// A chain of length N seeded by secret s is h[0] = H(s), h[i] = H(h[i-1]).
// The channel commitment is the tip h[N-1]. Revealing h[N-k] proves the
// holder is entitled to k words because hashing it forward k-1 times reaches
// the tip, while nothing earlier in the chain can be derived from it.
package hashchain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/ethword-go/pkg/hashing"
)

var (
	// ErrInvalidLength is returned when a chain of fewer than one word is requested.
	ErrInvalidLength = errors.New("hash chain length must be at least 1")
	// ErrWordCountOutOfRange is returned when a payment is zero or longer than the chain.
	ErrWordCountOutOfRange = errors.New("word count outside chain")
)

// Build materialises the full chain h[0..length-1] for a secret.
func Build(hash hashing.HashFunc, secret []byte, length int) ([]common.Hash, error) {
	if length < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLength, length)
	}

	chain := make([]common.Hash, length)
	chain[0] = hash(secret)
	for i := 1; i < length; i++ {
		chain[i] = hash(chain[i-1].Bytes())
	}
	return chain, nil
}

// Tip computes h[length-1] without keeping the intermediate words.
func Tip(hash hashing.HashFunc, secret []byte, length int) (common.Hash, error) {
	if length < 1 {
		return common.Hash{}, fmt.Errorf("%w: got %d", ErrInvalidLength, length)
	}
	return Walk(hash, hash(secret), uint64(length-1)), nil
}

// Walk hashes word forward hops times.
func Walk(hash hashing.HashFunc, word common.Hash, hops uint64) common.Hash {
	current := word
	for i := uint64(0); i < hops; i++ {
		current = hash(current.Bytes())
	}
	return current
}

// Verify reports whether word reaches tip after exactly hops applications of hash.
func Verify(hash hashing.HashFunc, word common.Hash, hops uint64, tip common.Hash) bool {
	return Walk(hash, word, hops) == tip
}

// WordFor returns the word a payer reveals to pay for count words of a chain,
// that is chain[len(chain)-count].
func WordFor(chain []common.Hash, count uint64) (common.Hash, error) {
	if count == 0 || count > uint64(len(chain)) {
		return common.Hash{}, fmt.Errorf("%w: %d of %d", ErrWordCountOutOfRange, count, len(chain))
	}
	return chain[uint64(len(chain))-count], nil
}
