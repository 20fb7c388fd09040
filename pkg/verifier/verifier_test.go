package verifier

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/ethword-go/pkg/hashchain"
	"github.com/Layr-Labs/ethword-go/pkg/hashing"
	"github.com/Layr-Labs/ethword-go/pkg/merkle"
	"github.com/Layr-Labs/ethword-go/pkg/types"
)

const testWordCount = 10

func hashChainChannel(t *testing.T) (*types.Channel, []common.Hash) {
	t.Helper()
	chain, err := hashchain.Build(hashing.Keccak256, []byte("segredo"), testWordCount)
	require.NoError(t, err)
	return &types.Channel{
		Balance:          uint256.NewInt(3000),
		TotalWordCount:   testWordCount,
		InitialWordCount: testWordCount,
		Commitment:       chain[testWordCount-1],
		Variant:          types.VariantHashChain,
		Status:           types.StatusOpen,
	}, chain
}

func merkleChannel(t *testing.T, n int) (*types.Channel, []common.Hash, *merkle.MerkleTree) {
	t.Helper()
	chain, err := hashchain.Build(hashing.Keccak256, []byte("segredo"), n)
	require.NoError(t, err)
	tree, err := merkle.BuildWordTree(hashing.Keccak256, chain)
	require.NoError(t, err)
	return &types.Channel{
		Balance:          uint256.NewInt(1000),
		TotalWordCount:   uint64(n),
		InitialWordCount: uint64(n),
		Commitment:       tree.Root,
		Variant:          types.VariantMerkle,
		Status:           types.StatusOpen,
	}, chain, tree
}

func merkleClaim(t *testing.T, chain []common.Hash, tree *merkle.MerkleTree, index int) types.MerkleClaim {
	t.Helper()
	proof, err := tree.GenerateProof(index)
	require.NoError(t, err)
	return types.MerkleClaim{Word: chain[index], Index: uint64(index), Proof: proof.Proof}
}

func TestHashChainVerifier(t *testing.T) {
	ch, chain := hashChainChannel(t)
	v := NewHashChainVerifier(nil)

	t.Run("first word redeems all", func(t *testing.T) {
		words, err := v.Verify(ch, types.HashChainClaim{Word: chain[0], WordCount: testWordCount})
		require.NoError(t, err)
		assert.Equal(t, uint64(testWordCount), words)
	})

	t.Run("tip redeems one", func(t *testing.T) {
		words, err := v.Verify(ch, types.HashChainClaim{Word: chain[testWordCount-1], WordCount: 1})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), words)
	})

	t.Run("every prefix", func(t *testing.T) {
		for count := uint64(1); count <= testWordCount; count++ {
			word, err := hashchain.WordFor(chain, count)
			require.NoError(t, err)
			words, err := v.Verify(ch, types.HashChainClaim{Word: word, WordCount: count})
			require.NoError(t, err)
			assert.Equal(t, count, words)
		}
	})

	t.Run("zero word count", func(t *testing.T) {
		_, err := v.Verify(ch, types.HashChainClaim{Word: chain[0], WordCount: 0})
		require.ErrorIs(t, err, ErrZeroWordCount)
	})

	t.Run("exceeds available", func(t *testing.T) {
		_, err := v.Verify(ch, types.HashChainClaim{Word: chain[0], WordCount: testWordCount + 1})
		require.ErrorIs(t, err, ErrWordCountExceedsAvailable)
	})

	t.Run("wrong count for word", func(t *testing.T) {
		_, err := v.Verify(ch, types.HashChainClaim{Word: chain[1], WordCount: testWordCount})
		require.ErrorIs(t, err, ErrInvalidPreimageChain)
	})

	t.Run("forged word", func(t *testing.T) {
		_, err := v.Verify(ch, types.HashChainClaim{Word: common.HexToHash("0xdead"), WordCount: 3})
		require.ErrorIs(t, err, ErrInvalidPreimageChain)
	})

	t.Run("secret is not a word", func(t *testing.T) {
		_, err := v.Verify(ch, types.HashChainClaim{Word: common.BytesToHash([]byte("segredo")), WordCount: testWordCount})
		require.ErrorIs(t, err, ErrInvalidPreimageChain)
	})

	t.Run("zero checked before preimage", func(t *testing.T) {
		_, err := v.Verify(ch, types.HashChainClaim{Word: common.Hash{}, WordCount: 0})
		require.ErrorIs(t, err, ErrZeroWordCount)
	})

	t.Run("variant mismatch", func(t *testing.T) {
		_, err := v.Verify(ch, types.MerkleClaim{Word: chain[0]})
		require.ErrorIs(t, err, ErrVariantMismatch)
	})

	t.Run("does not modify channel", func(t *testing.T) {
		before := ch.Clone()
		_, _ = v.Verify(ch, types.HashChainClaim{Word: chain[0], WordCount: testWordCount})
		_, _ = v.Verify(ch, types.HashChainClaim{Word: chain[2], WordCount: testWordCount})
		assert.Equal(t, before, ch)
	})
}

func TestHashChainVerifierAlternateHash(t *testing.T) {
	chain, err := hashchain.Build(hashing.Blake2b256, []byte("segredo"), 4)
	require.NoError(t, err)
	ch := &types.Channel{TotalWordCount: 4, InitialWordCount: 4, Commitment: chain[3], Variant: types.VariantHashChain}

	words, err := NewHashChainVerifier(hashing.Blake2b256).Verify(ch, types.HashChainClaim{Word: chain[0], WordCount: 4})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), words)

	_, err = NewHashChainVerifier(hashing.Keccak256).Verify(ch, types.HashChainClaim{Word: chain[0], WordCount: 4})
	require.ErrorIs(t, err, ErrInvalidPreimageChain)
}

func TestMerkleVerifier(t *testing.T) {
	ch, chain, tree := merkleChannel(t, 5)
	v := NewMerkleVerifier(nil)

	t.Run("every index on a fresh channel", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			words, err := v.Verify(ch, merkleClaim(t, chain, tree, i))
			require.NoError(t, err)
			assert.Equal(t, uint64(i+1), words)
		}
	})

	t.Run("cumulative after partial redemption", func(t *testing.T) {
		partial := ch.Clone()
		partial.TotalWordCount = 2 // indices 0..2 already redeemed

		_, err := v.Verify(partial, merkleClaim(t, chain, tree, 2))
		require.ErrorIs(t, err, ErrZeroWordCount)
		_, err = v.Verify(partial, merkleClaim(t, chain, tree, 0))
		require.ErrorIs(t, err, ErrZeroWordCount)

		words, err := v.Verify(partial, merkleClaim(t, chain, tree, 4))
		require.NoError(t, err)
		assert.Equal(t, uint64(2), words)
	})

	t.Run("index out of range", func(t *testing.T) {
		claim := merkleClaim(t, chain, tree, 4)
		claim.Index = 5
		_, err := v.Verify(ch, claim)
		require.ErrorIs(t, err, ErrWordCountExceedsAvailable)
	})

	t.Run("wrong word", func(t *testing.T) {
		claim := merkleClaim(t, chain, tree, 3)
		claim.Word = chain[2]
		_, err := v.Verify(ch, claim)
		require.ErrorIs(t, err, ErrInvalidMerkleProof)
	})

	t.Run("raw leaf instead of word", func(t *testing.T) {
		claim := merkleClaim(t, chain, tree, 3)
		claim.Word = tree.Leaves[3]
		_, err := v.Verify(ch, claim)
		require.ErrorIs(t, err, ErrInvalidMerkleProof)
	})

	t.Run("word moved to another index", func(t *testing.T) {
		claim := merkleClaim(t, chain, tree, 1)
		claim.Index = 0
		_, err := v.Verify(ch, claim)
		require.ErrorIs(t, err, ErrInvalidMerkleProof)
	})

	t.Run("tampered sibling", func(t *testing.T) {
		claim := merkleClaim(t, chain, tree, 1)
		claim.Proof[0][0] ^= 0xff
		_, err := v.Verify(ch, claim)
		require.ErrorIs(t, err, ErrInvalidMerkleProof)
	})

	t.Run("hash chain claim rejected", func(t *testing.T) {
		_, err := v.Verify(ch, types.HashChainClaim{Word: chain[0], WordCount: 1})
		require.ErrorIs(t, err, ErrVariantMismatch)
	})
}

func TestMerkleVerifierSingleLeaf(t *testing.T) {
	ch, chain, tree := merkleChannel(t, 1)
	require.Equal(t, tree.Leaves[0], ch.Commitment)

	words, err := NewMerkleVerifier(hashing.Keccak256).Verify(ch, types.MerkleClaim{Word: chain[0], Index: 0})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), words)
}

func TestDispatcher(t *testing.T) {
	hc, hcChain := hashChainChannel(t)
	mc, mcChain, tree := merkleChannel(t, 4)
	d := NewDispatcher(hashing.Keccak256)

	words, err := d.Verify(hc, types.HashChainClaim{Word: hcChain[0], WordCount: testWordCount})
	require.NoError(t, err)
	assert.Equal(t, uint64(testWordCount), words)

	words, err = d.Verify(mc, &types.MerkleClaim{Word: mcChain[1], Index: 1, Proof: merkleClaim(t, mcChain, tree, 1).Proof})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), words)

	_, err = d.Verify(hc, types.MerkleClaim{})
	require.ErrorIs(t, err, ErrVariantMismatch)
	_, err = d.Verify(mc, nil)
	require.ErrorIs(t, err, ErrVariantMismatch)
	_, err = d.Verify(mc, (*types.MerkleClaim)(nil))
	require.ErrorIs(t, err, ErrVariantMismatch)
	_, err = d.Verify(&types.Channel{Variant: types.VariantUnknown}, types.HashChainClaim{})
	require.ErrorIs(t, err, ErrVariantMismatch)
}
