package utils

import (
	"hash"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	_ "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	gnark_hash "github.com/consensys/gnark-crypto/hash"
)

// MiMCHasher returns the designated tree/commitment hash function.
// Every hash in the system (leaves, internal nodes, commitments,
// nullifiers) goes through MiMC over the BN254 scalar field so that the
// in-circuit mimc gadget reproduces the same values.
func MiMCHasher() hash.Hash {
	return gnark_hash.MIMC_BN254.New()
}

// MiMCHash hashes the given byte strings, splitting each into 32-byte
// chunks and reducing every full chunk into canonical fr form before it
// is written. Inputs that are not canonical field elements are reduced,
// not rejected; callers that need strictness validate first.
func MiMCHash(ins ...[]byte) []byte {
	hasher := MiMCHasher()

	blockSize := hasher.Size()

	hasher.Reset()
	for _, in := range ins {
		for i := 0; i < len(in); i += blockSize {
			end := i + blockSize
			if end > len(in) {
				end = len(in)
			}
			chunk := in[i:end]

			if len(chunk) == blockSize {
				// this value may be greater than the modulus; convert to fr.Element
				var elem fr.Element
				elem.SetBytes(chunk)
				// canonical form
				chunk = elem.Marshal()
			}
			if _, err := hasher.Write(chunk); err != nil {
				panic(err)
			}
		}
	}
	return hasher.Sum(nil)
}

// HashPair computes H(a, b) over two field elements. This is the
// two-input node hash of the Merkle tree and the derivation hash of
// commitments and nullifiers.
func HashPair(a, b *fr.Element) fr.Element {
	ab := a.Bytes()
	bb := b.Bytes()

	var out fr.Element
	out.SetBytes(MiMCHash(ab[:], bb[:]))
	return out
}
