// Package verifier hosts the proof-verification and attestation
// pipeline: structural checks, replay pre-check, Groth16 verification
// against the preloaded verifying key, atomic nullifier consumption and
// attestation signing.
package verifier

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/rs/zerolog"

	"github.com/netstatehq/zk-census/census"
	"github.com/netstatehq/zk-census/circuit"
	"github.com/netstatehq/zk-census/merkle"
	"github.com/netstatehq/zk-census/store"
)

// ProofBundle is a single submission: an opaque serialized Groth16
// proof plus the four ordered public signals
// [root, nullifierHash, signalHash, externalNullifier]. Bundles are
// transient and never persisted.
type ProofBundle struct {
	Proof         []byte
	PublicSignals []string
}

// PublicSignals is the parsed, validated form of the wire signals.
type PublicSignals struct {
	Root              fr.Element
	NullifierHash     fr.Element
	SignalHash        fr.Element
	ExternalNullifier fr.Element
}

// Config holds the immutable process-lifetime material. Either key may
// be absent, in which case the service starts degraded and Verify fails
// fast with a ConfigError until an operator intervenes.
type Config struct {
	Depth        int
	VerifyingKey groth16.VerifyingKey
	SignerPub    ed25519.PublicKey
	SignerPriv   ed25519.PrivateKey
}

// Service owns the census state: the commitment tree, the citizen
// store, the nullifier registry and the signer. It is safe for
// concurrent use; all writers serialize through the store and the tree
// lock, and the per-nullifier winner is decided by the registry's
// atomic TryConsume.
type Service struct {
	log   zerolog.Logger
	st    *store.Store
	tree  *merkle.Tree
	cfg   Config
	nowFn func() time.Time

	// regMu serializes registrations so the store's leaf-index
	// assignment and the tree append commit as one unit. Without it two
	// concurrent registrations can commit store records in one order and
	// tree leaves in the other, binding commitments to wrong indices.
	regMu sync.Mutex
}

func New(log zerolog.Logger, st *store.Store, tree *merkle.Tree, cfg Config) *Service {
	if cfg.Depth == 0 {
		cfg.Depth = tree.Depth()
	}
	return &Service{
		log:   log,
		st:    st,
		tree:  tree,
		cfg:   cfg,
		nowFn: time.Now,
	}
}

// Ready reports whether verification can run at all.
func (s *Service) Ready() bool {
	return s.cfg.VerifyingKey != nil && s.cfg.SignerPriv != nil
}

// SignerPublicKey returns the attestation signer's public key, or nil
// when no keypair is loaded.
func (s *Service) SignerPublicKey() ed25519.PublicKey { return s.cfg.SignerPub }

// HasVerifyingKey reports whether the Groth16 verifying key is loaded.
func (s *Service) HasVerifyingKey() bool { return s.cfg.VerifyingKey != nil }

// Tree exposes the commitment tree for read-only proof endpoints.
func (s *Service) Tree() *merkle.Tree { return s.tree }

// Store exposes the underlying store for read-only endpoints.
func (s *Service) Store() *store.Store { return s.st }

// Register appends a citizen commitment: canonical-field validation,
// uniqueness, dense leaf index from the store, incremental root update.
func (s *Service) Register(commitment string, name string) (*store.CitizenRecord, fr.Element, error) {
	var root fr.Element

	elem, err := census.ParseElement(commitment)
	if err != nil {
		return nil, root, errInput(CodeBadCommitment, "invalid commitment: %v", err)
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()

	if s.tree.LeafCount() >= 1<<s.cfg.Depth {
		return nil, root, errInput(CodeTreeFull, "merkle tree is at capacity (depth %d)", s.cfg.Depth)
	}

	commitBytes := census.ElementBytes(&elem)
	rec, err := s.st.AppendCitizen(commitBytes[:], name, uint64(s.nowFn().Unix()))
	if errors.Is(err, store.ErrDuplicateCommitment) {
		return nil, root, errInput(CodeDuplicateCitizen, "commitment already registered")
	}
	if err != nil {
		return nil, root, errInternal(err, CodeStoreFailure, "persist citizen")
	}

	idx, err := s.tree.Append(elem)
	if err != nil {
		return nil, root, errInternal(err, CodeStoreFailure, "append leaf")
	}
	if idx != rec.LeafIndex {
		return nil, root, errInternal(nil, CodeStoreFailure,
			"leaf index drift: store %d vs tree %d", rec.LeafIndex, idx)
	}

	root = s.tree.Root()
	s.log.Info().
		Uint32("leafIndex", rec.LeafIndex).
		Str("root", census.ElementHex(&root)).
		Msg("citizen registered")
	return rec, root, nil
}

// InclusionProof builds the Merkle proof for a leaf index.
func (s *Service) InclusionProof(leafIndex uint32) (*merkle.Proof, error) {
	p, err := s.tree.Proof(leafIndex)
	if errors.Is(err, merkle.ErrIndexOutOfRange) {
		return nil, errInput(CodeLeafOutOfRange, "leaf index %d out of range", leafIndex)
	}
	if err != nil {
		return nil, errInternal(err, CodeStoreFailure, "build proof")
	}
	return p, nil
}

// InclusionProofByCommitment resolves a commitment to its citizen
// record and returns the proof alongside it.
func (s *Service) InclusionProofByCommitment(commitment string) (*merkle.Proof, *store.CitizenRecord, error) {
	elem, err := census.ParseElement(commitment)
	if err != nil {
		return nil, nil, errInput(CodeBadCommitment, "invalid commitment: %v", err)
	}
	commitBytes := census.ElementBytes(&elem)
	rec, err := s.st.CitizenByCommitment(commitBytes[:])
	if errors.Is(err, store.ErrCitizenNotFound) {
		return nil, nil, errInput(CodeCitizenNotFound, "commitment not registered")
	}
	if err != nil {
		return nil, nil, errInternal(err, CodeStoreFailure, "lookup citizen")
	}
	p, err := s.InclusionProof(rec.LeafIndex)
	if err != nil {
		return nil, nil, err
	}
	return p, rec, nil
}

// CurrentScope returns the scope state, initializing on first use.
func (s *Service) CurrentScope() (*store.ScopeState, error) {
	ss, err := s.st.CurrentScope(uint64(s.nowFn().Unix()))
	if err != nil {
		return nil, errInternal(err, CodeStoreFailure, "read scope state")
	}
	return ss, nil
}

// AdvanceScope moves to the next census period and resets the
// population counter. Scopes advance monotonically and are never reused.
func (s *Service) AdvanceScope() (old, cur *store.ScopeState, err error) {
	old, cur, err = s.st.AdvanceScope(uint64(s.nowFn().Unix()))
	if err != nil {
		return nil, nil, errInternal(err, CodeStoreFailure, "advance scope")
	}
	s.log.Info().
		Uint64("oldScope", old.Scope).
		Uint64("newScope", cur.Scope).
		Uint64("finalPopulation", old.Population).
		Msg("census scope advanced")
	return old, cur, nil
}

// Verify runs the full pipeline for one submission. On success the
// (scope, nullifierHash) pair is consumed and a signed attestation is
// returned; on any failure no state changes and no attestation exists.
//
// Ordering is deliberate: the replay pre-check sheds doomed work before
// the expensive pairing check, but consumption happens strictly after
// cryptographic success, so an invalid proof can never burn a
// nullifier. Concurrent duplicates may both pass the pre-check; exactly
// one wins TryConsume, the loser gets a ReplayError.
func (s *Service) Verify(bundle *ProofBundle) (*Attestation, error) {
	if !s.Ready() {
		return nil, errConfig(CodeNotReady, "verifying key or signer keypair not loaded")
	}
	if bundle == nil || len(bundle.Proof) == 0 {
		return nil, errInput(CodeMissingProof, "proof is required")
	}
	if len(bundle.PublicSignals) == 0 {
		return nil, errInput(CodeMissingSignals, "publicSignals are required")
	}
	if len(bundle.PublicSignals) != 4 {
		return nil, errInput(CodeBadSignalCount,
			"want 4 public signals [root, nullifierHash, signalHash, externalNullifier], got %d",
			len(bundle.PublicSignals))
	}

	signals, err := parseSignals(bundle.PublicSignals)
	if err != nil {
		return nil, err
	}

	scope, err := s.CurrentScope()
	if err != nil {
		return nil, err
	}
	wantExternal := census.ExternalNullifier(scope.Scope)
	if !signals.ExternalNullifier.Equal(&wantExternal) {
		return nil, errCrypto(nil, CodeScopeMismatch,
			"externalNullifier does not match current scope %d", scope.Scope)
	}

	nhBytes := census.ElementBytes(&signals.NullifierHash)

	// cheap pre-check before the pairing; TryConsume below remains the
	// single point of truth
	consumed, err := s.st.Consumed(scope.Scope, nhBytes[:])
	if err != nil {
		return nil, errInternal(err, CodeStoreFailure, "replay check")
	}
	if consumed {
		return nil, errReplay(CodeReplayedNullifier,
			"nullifier already consumed in scope %d", scope.Scope)
	}

	currentRoot := s.tree.Root()
	if !signals.Root.Equal(&currentRoot) {
		return nil, errCrypto(nil, CodeRootMismatch,
			"proof root does not match current tree root")
	}

	if err := s.verifyGroth16(bundle.Proof, signals); err != nil {
		return nil, err
	}

	now := uint64(s.nowFn().Unix())
	fresh, err := s.st.TryConsume(scope.Scope, nhBytes[:], now)
	if err != nil {
		return nil, errInternal(err, CodeStoreFailure, "consume nullifier")
	}
	if !fresh {
		// lost the race to a concurrent duplicate
		return nil, errReplay(CodeReplayedNullifier,
			"nullifier already consumed in scope %d", scope.Scope)
	}

	att := signAttestation(
		s.cfg.SignerPriv,
		now,
		census.ElementToLE32(&signals.Root),
		census.ElementToLE32(&signals.NullifierHash),
		census.ElementToLE32(&signals.ExternalNullifier),
		census.ElementToLE32(&signals.SignalHash),
	)

	s.log.Info().
		Uint64("scope", scope.Scope).
		Str("nullifierHash", census.ElementHex(&signals.NullifierHash)).
		Msg("census proof verified, attestation issued")
	return att, nil
}

// verifyGroth16 decodes the proof, rebuilds the public witness and runs
// the pairing check. Verifier panics on malformed curve points are
// demoted to CryptoVerificationErrors, never crashes.
func (s *Service) verifyGroth16(proofBytes []byte, signals *PublicSignals) (vErr *Error) {
	defer func() {
		if r := recover(); r != nil {
			vErr = errCrypto(fmt.Errorf("verifier panic: %v", r), CodeProofInvalid,
				"cryptographic verification failed")
		}
	}()

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return errCrypto(err, CodeProofUndecodable, "cannot decode proof")
	}

	rootB := signals.Root.Bytes()
	nhB := signals.NullifierHash.Bytes()
	shB := signals.SignalHash.Bytes()
	enB := signals.ExternalNullifier.Bytes()
	assignment := circuit.CensusCircuit{
		Root:              rootB[:],
		NullifierHash:     nhB[:],
		SignalHash:        shB[:],
		ExternalNullifier: enB[:],
	}
	pubWtn, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return errCrypto(err, CodeProofUndecodable, "cannot build public witness")
	}

	if err := groth16.Verify(proof, s.cfg.VerifyingKey, pubWtn); err != nil {
		return errCrypto(err, CodeProofInvalid, "cryptographic verification failed")
	}
	return nil
}

func parseSignals(raw []string) (*PublicSignals, error) {
	names := [4]string{"root", "nullifierHash", "signalHash", "externalNullifier"}
	var parsed [4]fr.Element
	for i, s := range raw {
		e, err := census.ParseElement(s)
		if err != nil {
			return nil, errInput(CodeBadFieldElement, "publicSignals[%d] (%s): %v", i, names[i], err)
		}
		parsed[i] = e
	}
	return &PublicSignals{
		Root:              parsed[0],
		NullifierHash:     parsed[1],
		SignalHash:        parsed[2],
		ExternalNullifier: parsed[3],
	}, nil
}
