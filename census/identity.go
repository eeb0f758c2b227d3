package census

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/crypto/blake2s"

	"github.com/netstatehq/zk-census/utils"
)

// Identity is the private secret pair held by a citizen. It never
// leaves the client and is never persisted server-side; the server only
// ever sees the derived commitment and per-scope nullifier hashes.
type Identity struct {
	Nullifier fr.Element
	Trapdoor  fr.Element
}

// NewIdentity samples a fresh identity with full field-element entropy
// from the OS random source.
func NewIdentity() (*Identity, error) {
	var id Identity
	if _, err := id.Nullifier.SetRandom(); err != nil {
		return nil, err
	}
	if _, err := id.Trapdoor.SetRandom(); err != nil {
		return nil, err
	}
	return &id, nil
}

// Commitment derives the public tree leaf: H(identityNullifier, identityTrapdoor).
func (id *Identity) Commitment() fr.Element {
	return utils.HashPair(&id.Nullifier, &id.Trapdoor)
}

// NullifierHash derives the per-scope replay key:
// H(externalNullifier, identityNullifier). Unique per (identity, scope)
// by construction.
func (id *Identity) NullifierHash(externalNullifier *fr.Element) fr.Element {
	return utils.HashPair(externalNullifier, &id.Nullifier)
}

// ExternalNullifier maps a census scope to its field-element form: the
// scope occupies the low eight little-endian bytes of the 32-byte word,
// which is simply the scope's integer value in the field.
func ExternalNullifier(scope uint64) fr.Element {
	var e fr.Element
	e.SetUint64(scope)
	return e
}

// HashSignal maps an arbitrary signal payload into the scalar field via
// blake2s. This is the reference client path; the protocol only cares
// that the prover and public signal agree.
func HashSignal(signal []byte) fr.Element {
	sum := blake2s.Sum256(signal)
	var e fr.Element
	e.SetBytes(sum[:])
	return e
}
