// Package circuit defines the census membership statement: the prover
// knows identity secrets whose commitment sits in the tree under the
// public root, and the public nullifier hash is the correct derivation
// for the current scope. The verifier service only consumes the
// verifying key produced here; proving happens client-side.
package circuit

import (
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/std/hash/mimc"
)

// CensusCircuit's public inputs are declared in wire order:
// [root, nullifierHash, signalHash, externalNullifier].
type CensusCircuit struct {
	Root              frontend.Variable `gnark:",public"`
	NullifierHash     frontend.Variable `gnark:",public"`
	SignalHash        frontend.Variable `gnark:",public"`
	ExternalNullifier frontend.Variable `gnark:",public"`

	IdentityNullifier frontend.Variable
	IdentityTrapdoor  frontend.Variable
	PathElements      []frontend.Variable
	PathIndices       []frontend.Variable
}

// NewCensusCircuit allocates path slices for a tree of the given depth.
func NewCensusCircuit(depth int) *CensusCircuit {
	return &CensusCircuit{
		PathElements: make([]frontend.Variable, depth),
		PathIndices:  make([]frontend.Variable, depth),
	}
}

func (cc *CensusCircuit) Define(api frontend.API) error {
	hFunc, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	// leaf = H(identityNullifier, identityTrapdoor)
	hFunc.Write(cc.IdentityNullifier, cc.IdentityTrapdoor)
	node := hFunc.Sum()

	// fold up to the root; bit 0 means node is the left child
	for i := range cc.PathElements {
		api.AssertIsBoolean(cc.PathIndices[i])
		left := api.Select(cc.PathIndices[i], cc.PathElements[i], node)
		right := api.Select(cc.PathIndices[i], node, cc.PathElements[i])
		hFunc.Reset()
		hFunc.Write(left, right)
		node = hFunc.Sum()
	}
	api.AssertIsEqual(node, cc.Root)

	// nullifierHash = H(externalNullifier, identityNullifier)
	hFunc.Reset()
	hFunc.Write(cc.ExternalNullifier, cc.IdentityNullifier)
	api.AssertIsEqual(hFunc.Sum(), cc.NullifierHash)

	// bind the signal into the proof so it cannot be swapped after the fact
	api.Mul(cc.SignalHash, cc.SignalHash)

	return nil
}

// Compile builds the constraint system and runs the Groth16 setup for a
// tree of the given depth. The verifying key is what deployments
// persist and hand to the verifier service.
func Compile(depth int) (constraint.ConstraintSystem, groth16.ProvingKey, groth16.VerifyingKey, error) {
	cc := NewCensusCircuit(depth)
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, cc)
	if err != nil {
		return nil, nil, nil, err
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, nil, err
	}
	return ccs, pk, vk, nil
}
