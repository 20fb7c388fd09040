package merkle

import "github.com/ethereum/go-ethereum/common"

// MerkleTree represents a binary merkle tree built over channel words.
type MerkleTree struct {
	// Leaves contains the leaf hashes in index order
	Leaves []common.Hash

	// Root is the merkle root hash
	Root common.Hash

	// levels stores all tree levels for proof generation
	// levels[0] = leaves, levels[len-1] = root
	levels [][]common.Hash
}

// MerkleProof represents a proof that a leaf is included in the tree.
// The proof consists of sibling hashes along the path from leaf to root.
type MerkleProof struct {
	// LeafIndex is the position of the leaf in the tree
	LeafIndex int

	// Leaf is the hash of the leaf being proven
	Leaf common.Hash

	// Proof contains the sibling hashes from leaf to root. Levels where the
	// node was promoted without a sibling contribute nothing.
	Proof []common.Hash
}
