package server

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/netstatehq/zk-census/census"
	"github.com/netstatehq/zk-census/merkle"
	"github.com/netstatehq/zk-census/store"
	"github.com/netstatehq/zk-census/verifier"
)

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

type RootResponse struct {
	Root      string `json:"root"`
	LeafCount int    `json:"leafCount"`
}

type ProofResponse struct {
	LeafIndex    uint32       `json:"leafIndex"`
	Leaf         string       `json:"leaf"`
	PathElements []string     `json:"pathElements"`
	PathIndices  []int        `json:"pathIndices"`
	Root         string       `json:"root"`
	Citizen      *CitizenView `json:"citizen,omitempty"`
}

type CitizenView struct {
	Commitment   string `json:"commitment"`
	LeafIndex    uint32 `json:"leafIndex"`
	Name         string `json:"name,omitempty"`
	RegisteredAt uint64 `json:"registeredAt"`
}

type RegisterRequest struct {
	Commitment string `json:"commitment" binding:"required"`
	Name       string `json:"name"`
}

type RegisterResponse struct {
	Success bool        `json:"success"`
	Citizen CitizenView `json:"citizen"`
	Root    string      `json:"root"`
}

type VerifyRequest struct {
	Proof         string   `json:"proof" binding:"required"`
	PublicSignals []string `json:"publicSignals" binding:"required"`
}

type AttestationView struct {
	Timestamp         uint64 `json:"timestamp"`
	Root              string `json:"root"`
	NullifierHash     string `json:"nullifierHash"`
	ExternalNullifier string `json:"externalNullifier"`
	SignalHash        string `json:"signalHash"`
	Signature         string `json:"signature"`
	SignerPublicKey   string `json:"signerPublicKey"`
	Message           string `json:"message"`
}

type VerifyResponse struct {
	Success            bool            `json:"success"`
	Attestation        AttestationView `json:"attestation"`
	VerificationTimeMs int64           `json:"verificationTimeMs"`
}

type ScopeResponse struct {
	Scope      uint64 `json:"scope"`
	StartedAt  uint64 `json:"startedAt"`
	Duration   int64  `json:"duration"`
	Population uint64 `json:"population"`
}

type AdvanceScopeResponse struct {
	OldScope        uint64 `json:"oldScope"`
	NewScope        uint64 `json:"newScope"`
	FinalPopulation uint64 `json:"finalPopulation"`
}

type StatsResponse struct {
	Scope           uint64 `json:"scope"`
	Population      uint64 `json:"population"`
	TotalRegistered uint64 `json:"totalRegistered"`
	LeafCount       int    `json:"leafCount"`
	Degraded        bool   `json:"degraded,omitempty"`
}

type HealthResponse struct {
	Status                 string `json:"status"`
	VerifierPubkey         string `json:"verifierPubkey"`
	HasVerificationKey     bool   `json:"hasVerificationKey"`
	ConsumedNullifierCount int    `json:"consumedNullifierCount"`
}

type PubkeyResponse struct {
	PublicKey string `json:"publicKey"`
	Encoded   string `json:"encoded"`
}

func citizenView(rec *store.CitizenRecord) CitizenView {
	return CitizenView{
		Commitment:   hexutil.Encode(rec.Commitment),
		LeafIndex:    rec.LeafIndex,
		Name:         rec.Name,
		RegisteredAt: rec.RegisteredAt,
	}
}

func proofResponse(p *merkle.Proof, rec *store.CitizenRecord) ProofResponse {
	elems := make([]string, len(p.PathElements))
	for i := range p.PathElements {
		elems[i] = census.ElementHex(&p.PathElements[i])
	}
	resp := ProofResponse{
		LeafIndex:    p.LeafIndex,
		Leaf:         census.ElementHex(&p.Leaf),
		PathElements: elems,
		PathIndices:  p.PathIndices,
		Root:         census.ElementHex(&p.Root),
	}
	if rec != nil {
		cv := citizenView(rec)
		resp.Citizen = &cv
	}
	return resp
}

func attestationView(a *verifier.Attestation) AttestationView {
	return AttestationView{
		Timestamp:         a.Timestamp,
		Root:              hexutil.Encode(a.Root[:]),
		NullifierHash:     hexutil.Encode(a.NullifierHash[:]),
		ExternalNullifier: hexutil.Encode(a.ExternalNullifier[:]),
		SignalHash:        hexutil.Encode(a.SignalHash[:]),
		Signature:         hexutil.Encode(a.Signature),
		SignerPublicKey:   hexutil.Encode(a.SignerPublicKey),
		Message:           hexutil.Encode(a.Message),
	}
}

func elementHex(e fr.Element) string {
	return census.ElementHex(&e)
}
