// Package wordsource provides the payer's hash chain from wherever it is kept.
package wordsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/ethword-go/pkg/hashchain"
	"github.com/Layr-Labs/ethword-go/pkg/hashing"
)

var ErrBrokenChain = errors.New("hash chain is not linked")

// Source hands out a payer's hash chain
type Source interface {
	// FetchFullChain returns h[0]..h[N-1]
	FetchFullChain(ctx context.Context) ([]common.Hash, error)
	// FetchTip returns h[N-1]
	FetchTip(ctx context.Context) (common.Hash, error)
}

// SecretSource derives the chain from a secret held in memory
type SecretSource struct {
	hash   hashing.HashFunc
	secret []byte
	length int
}

func NewSecretSource(hash hashing.HashFunc, secret []byte, length int) *SecretSource {
	s := make([]byte, len(secret))
	copy(s, secret)
	return &SecretSource{hash: hash, secret: s, length: length}
}

func (s *SecretSource) FetchFullChain(ctx context.Context) ([]common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return hashchain.Build(s.hash, s.secret, s.length)
}

func (s *SecretSource) FetchTip(ctx context.Context) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	return hashchain.Tip(s.hash, s.secret, s.length)
}

// Element is one stored chain word
type Element struct {
	Index uint64      `json:"index"`
	Data  common.Hash `json:"data"`
}

// FileSource reads a chain written by WriteFile. The chain is checked for
// contiguous indices and h[i] = H(h[i-1]) on every read.
type FileSource struct {
	path string
	hash hashing.HashFunc
}

func NewFileSource(path string, hash hashing.HashFunc) *FileSource {
	return &FileSource{path: path, hash: hash}
}

func (f *FileSource) FetchFullChain(ctx context.Context) ([]common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hash chain file: %w", err)
	}

	var elements []Element
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("failed to parse hash chain file %s: %w", f.path, err)
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("hash chain file %s is empty", f.path)
	}

	sort.Slice(elements, func(i, j int) bool { return elements[i].Index < elements[j].Index })

	chain := make([]common.Hash, len(elements))
	for i, el := range elements {
		if el.Index != uint64(i) {
			return nil, fmt.Errorf("%w: missing index %d", ErrBrokenChain, i)
		}
		if i > 0 && f.hash(chain[i-1].Bytes()) != el.Data {
			return nil, fmt.Errorf("%w: word %d is not the hash of word %d", ErrBrokenChain, i, i-1)
		}
		chain[i] = el.Data
	}
	return chain, nil
}

func (f *FileSource) FetchTip(ctx context.Context) (common.Hash, error) {
	chain, err := f.FetchFullChain(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	return chain[len(chain)-1], nil
}

// WriteFile stores chain at path with owner-only permissions
func WriteFile(path string, chain []common.Hash) error {
	elements := make([]Element, len(chain))
	for i, w := range chain {
		elements[i] = Element{Index: uint64(i), Data: w}
	}

	data, err := json.MarshalIndent(elements, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode hash chain: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write hash chain file: %w", err)
	}
	return nil
}
