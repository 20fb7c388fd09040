package testutil

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/ethword-go/pkg/hashchain"
	"github.com/Layr-Labs/ethword-go/pkg/hashing"
	"github.com/Layr-Labs/ethword-go/pkg/merkle"
	"github.com/Layr-Labs/ethword-go/pkg/types"
)

// Fixed participants used across package tests
var (
	SenderAddress    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	RecipientAddress = common.HexToAddress("0x2222222222222222222222222222222222222222")
	StrangerAddress  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

// Ether returns n * 10^18
func Ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

// Fixture holds a keccak hash chain and the Merkle tree committed over it
type Fixture struct {
	Chain []common.Hash
	Tree  *merkle.MerkleTree
}

// NewFixture builds a chain of n words from secret
func NewFixture(t *testing.T, secret string, n int) *Fixture {
	t.Helper()
	chain, err := hashchain.Build(hashing.Keccak256, []byte(secret), n)
	require.NoError(t, err)
	tree, err := merkle.BuildWordTree(hashing.Keccak256, chain)
	require.NoError(t, err)
	return &Fixture{Chain: chain, Tree: tree}
}

// Tip returns the hash chain commitment
func (f *Fixture) Tip() common.Hash {
	return f.Chain[len(f.Chain)-1]
}

// HashChainClaim returns the claim for the first count words
func (f *Fixture) HashChainClaim(t *testing.T, count uint64) types.HashChainClaim {
	t.Helper()
	word, err := hashchain.WordFor(f.Chain, count)
	require.NoError(t, err)
	return types.HashChainClaim{Word: word, WordCount: count}
}

// MerkleClaim returns the claim revealing the word at index
func (f *Fixture) MerkleClaim(t *testing.T, index int) types.MerkleClaim {
	t.Helper()
	proof, err := f.Tree.GenerateProof(index)
	require.NoError(t, err)
	return types.MerkleClaim{Word: f.Chain[index], Index: uint64(index), Proof: proof.Proof}
}
