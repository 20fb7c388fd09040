// Package merkle builds positional binary merkle trees over payword leaves.
//
// Pairs are hashed left to right as H(left || right) without sorting. When a
// level has an odd number of nodes the last node is promoted to the next
// level unchanged. Because of the promotion, proof verification needs the
// number of leaves to know at which levels a sibling is absent.
package merkle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/ethword-go/pkg/hashing"
	"github.com/Layr-Labs/ethword-go/pkg/util"
)

var (
	// ErrEmptyTree is returned when building a tree without leaves.
	ErrEmptyTree = errors.New("cannot build merkle tree from empty leaf list")

	// ErrIndexOutOfRange is returned when a proof is requested for a leaf the tree does not have.
	ErrIndexOutOfRange = errors.New("leaf index out of range")
)

// BuildMerkleTree creates a binary merkle tree from already hashed leaves.
func BuildMerkleTree(hash hashing.HashFunc, leaves []common.Hash) (*MerkleTree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}

	leafCopy := make([]common.Hash, len(leaves))
	copy(leafCopy, leaves)

	levels := make([][]common.Hash, 0)
	levels = append(levels, leafCopy)

	currentLevel := leafCopy
	for len(currentLevel) > 1 {
		nextLevel := make([]common.Hash, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			if i+1 < len(currentLevel) {
				nextLevel = append(nextLevel, hashPair(hash, currentLevel[i], currentLevel[i+1]))
			} else {
				// Unpaired node moves up as is
				nextLevel = append(nextLevel, currentLevel[i])
			}
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	return &MerkleTree{
		Leaves: leafCopy,
		Root:   currentLevel[0],
		levels: levels,
	}, nil
}

// BuildWordTree hashes each word with its index and builds the tree over the
// resulting leaves.
func BuildWordTree(hash hashing.HashFunc, words []common.Hash) (*MerkleTree, error) {
	leaves := make([]common.Hash, len(words))
	for i, w := range words {
		leaves[i] = HashWord(hash, uint64(i), w)
	}
	return BuildMerkleTree(hash, leaves)
}

// GenerateProof creates a merkle proof for the leaf at the given index.
func (mt *MerkleTree) GenerateProof(leafIndex int) (*MerkleProof, error) {
	if leafIndex < 0 || leafIndex >= len(mt.Leaves) {
		return nil, fmt.Errorf("%w: %d (tree has %d leaves)", ErrIndexOutOfRange, leafIndex, len(mt.Leaves))
	}

	proof := make([]common.Hash, 0)
	index := leafIndex

	for level := 0; level < len(mt.levels)-1; level++ {
		currentLevel := mt.levels[level]

		var siblingIndex int
		if index%2 == 0 {
			siblingIndex = index + 1
		} else {
			siblingIndex = index - 1
		}

		if siblingIndex < len(currentLevel) {
			proof = append(proof, currentLevel[siblingIndex])
		}

		index = index / 2
	}

	return &MerkleProof{
		LeafIndex: leafIndex,
		Leaf:      mt.Leaves[leafIndex],
		Proof:     proof,
	}, nil
}

// LeafCount returns the number of leaves in the tree.
func (mt *MerkleTree) LeafCount() int {
	return len(mt.Leaves)
}

// VerifyProof recomputes the root from the proof and compares it with root.
// leafCount is the width of the tree the proof was generated from; every
// proof element must be consumed for the proof to be accepted.
func VerifyProof(hash hashing.HashFunc, proof *MerkleProof, root common.Hash, leafCount int) bool {
	if proof == nil || leafCount < 1 {
		return false
	}
	if proof.LeafIndex < 0 || proof.LeafIndex >= leafCount {
		return false
	}

	currentHash := proof.Leaf
	index := proof.LeafIndex
	width := leafCount
	used := 0

	for width > 1 {
		switch {
		case index%2 == 1:
			if used >= len(proof.Proof) {
				return false
			}
			currentHash = hashPair(hash, proof.Proof[used], currentHash)
			used++
		case index+1 < width:
			if used >= len(proof.Proof) {
				return false
			}
			currentHash = hashPair(hash, currentHash, proof.Proof[used])
			used++
		}

		index = index / 2
		width = (width + 1) / 2
	}

	return used == len(proof.Proof) && currentHash == root
}

// Verify is VerifyProof for a bare leaf, index and sibling path.
func Verify(hash hashing.HashFunc, leaf common.Hash, index int, siblings []common.Hash, root common.Hash, leafCount int) bool {
	return VerifyProof(hash, &MerkleProof{LeafIndex: index, Leaf: leaf, Proof: siblings}, root, leafCount)
}

// HashWord creates the leaf for the word at index:
// H(abi.encodePacked(uint256(index), bytes32(word))).
func HashWord(hash hashing.HashFunc, index uint64, word common.Hash) common.Hash {
	return hash(util.PackUint256(index), word.Bytes())
}

// hashPair computes H(left || right) for two nodes.
func hashPair(hash hashing.HashFunc, left, right common.Hash) common.Hash {
	return hash(left.Bytes(), right.Bytes())
}
