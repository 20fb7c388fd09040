// Package hashing names the 256-bit hash functions that commitments can be
// built with. Payer and recipient must agree on the function out of band.
package hashing

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// HashFunc hashes the concatenation of its inputs into a 32-byte digest.
type HashFunc func(data ...[]byte) common.Hash

const (
	NameKeccak256  = "keccak256"
	NameSHA3256    = "sha3-256"
	NameBlake2b256 = "blake2b-256"
)

// Keccak256 is the default, Solidity compatible hash.
func Keccak256(data ...[]byte) common.Hash {
	return crypto.Keccak256Hash(data...)
}

// SHA3256 is the NIST SHA3-256 hash (not the legacy Keccak padding).
func SHA3256(data ...[]byte) common.Hash {
	h := sha3.New256()
	for _, b := range data {
		h.Write(b)
	}
	return common.BytesToHash(h.Sum(nil))
}

// Blake2b256 is the unkeyed BLAKE2b hash truncated to 256 bits.
func Blake2b256(data ...[]byte) common.Hash {
	// New256 only fails for keys longer than 64 bytes
	h, _ := blake2b.New256(nil)
	for _, b := range data {
		h.Write(b)
	}
	return common.BytesToHash(h.Sum(nil))
}

// Parse resolves a configured hash name. An empty name selects Keccak256.
func Parse(name string) (HashFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameKeccak256:
		return Keccak256, nil
	case NameSHA3256:
		return SHA3256, nil
	case NameBlake2b256:
		return Blake2b256, nil
	default:
		return nil, fmt.Errorf("unsupported hash function: %s", name)
	}
}

// SupportedNames lists the names accepted by Parse.
func SupportedNames() []string {
	return []string{NameKeccak256, NameSHA3256, NameBlake2b256}
}
