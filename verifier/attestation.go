package verifier

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
)

// MessageLen is the fixed attestation message size:
// timestamp(8) || root(32) || nullifierHash(32) || externalNullifier(32) || signalHash(32).
const MessageLen = 8 + 32*4

// Attestation is the signed statement a downstream ledger checks with a
// single Ed25519 verification instead of re-running the Groth16
// verifier. All field encodings are little-endian; Message carries the
// exact signed bytes so consumers can recompute independently.
type Attestation struct {
	Timestamp         uint64
	Root              [32]byte
	NullifierHash     [32]byte
	ExternalNullifier [32]byte
	SignalHash        [32]byte
	Signature         []byte
	SignerPublicKey   ed25519.PublicKey
	Message           []byte
}

// attestationMessage lays the fields out in the fixed signing order.
func attestationMessage(timestamp uint64, root, nullifierHash, externalNullifier, signalHash [32]byte) []byte {
	msg := make([]byte, 0, MessageLen)
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], timestamp)
	msg = append(msg, ts[:]...)
	msg = append(msg, root[:]...)
	msg = append(msg, nullifierHash[:]...)
	msg = append(msg, externalNullifier[:]...)
	msg = append(msg, signalHash[:]...)
	return msg
}

func signAttestation(priv ed25519.PrivateKey, timestamp uint64, root, nullifierHash, externalNullifier, signalHash [32]byte) *Attestation {
	msg := attestationMessage(timestamp, root, nullifierHash, externalNullifier, signalHash)
	return &Attestation{
		Timestamp:         timestamp,
		Root:              root,
		NullifierHash:     nullifierHash,
		ExternalNullifier: externalNullifier,
		SignalHash:        signalHash,
		Signature:         ed25519.Sign(priv, msg),
		SignerPublicKey:   priv.Public().(ed25519.PublicKey),
		Message:           msg,
	}
}

// Verify recomputes the message from the attestation fields and checks
// the detached signature against the embedded signer key. Consumers
// must additionally enforce their own freshness window on Timestamp and
// their own attestation-replay tracking.
func (a *Attestation) Verify() error {
	if len(a.SignerPublicKey) != ed25519.PublicKeySize {
		return errors.New("attestation: bad signer public key size")
	}
	msg := attestationMessage(a.Timestamp, a.Root, a.NullifierHash, a.ExternalNullifier, a.SignalHash)
	if !ed25519.Verify(a.SignerPublicKey, msg, a.Signature) {
		return errors.New("attestation: signature verification failed")
	}
	return nil
}
