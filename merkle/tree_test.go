package merkle_test

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"github.com/netstatehq/zk-census/merkle"
	"github.com/netstatehq/zk-census/utils"
)

func randomLeaves(t *testing.T, n int) []fr.Element {
	t.Helper()
	leaves := make([]fr.Element, n)
	for i := range leaves {
		_, err := leaves[i].SetRandom()
		require.NoError(t, err)
	}
	return leaves
}

func TestZeroLadder(t *testing.T) {
	zeros := merkle.ZeroLadder(4)
	require.Len(t, zeros, 5)
	require.True(t, zeros[0].IsZero())
	for i := 0; i < 4; i++ {
		want := utils.HashPair(&zeros[i], &zeros[i])
		require.True(t, zeros[i+1].Equal(&want))
	}
}

func TestEmptyTreeRootSentinel(t *testing.T) {
	tree := merkle.New(4)
	root := tree.Root()
	require.True(t, root.IsZero())
	require.Zero(t, tree.LeafCount())
}

func TestProofRoundTrip(t *testing.T) {
	const depth = 4
	for _, n := range []int{1, 2, 3, 7, 8, 15, 16} {
		leaves := randomLeaves(t, n)
		tree, err := merkle.NewFromLeaves(depth, leaves)
		require.NoError(t, err)

		for i := 0; i < n; i++ {
			p, err := tree.Proof(uint32(i))
			require.NoError(t, err)
			require.Equal(t, uint32(i), p.LeafIndex)
			require.True(t, p.Leaf.Equal(&leaves[i]))
			require.NoError(t,
				merkle.VerifyProof(depth, p.Leaf, p.PathElements, p.PathIndices, p.Root))
		}
	}
}

func TestDeterministicRoot(t *testing.T) {
	leaves := randomLeaves(t, 5)

	t1, err := merkle.NewFromLeaves(6, leaves)
	require.NoError(t, err)
	t2, err := merkle.NewFromLeaves(6, leaves)
	require.NoError(t, err)

	r1, r2 := t1.Root(), t2.Root()
	require.True(t, r1.Equal(&r2))
}

func TestIncrementalMatchesRebuild(t *testing.T) {
	const depth = 5
	leaves := randomLeaves(t, 11)

	inc := merkle.New(depth)
	for i := range leaves {
		idx, err := inc.Append(leaves[i])
		require.NoError(t, err)
		require.Equal(t, uint32(i), idx)

		rebuilt, err := merkle.NewFromLeaves(depth, leaves[:i+1])
		require.NoError(t, err)

		ri, rr := inc.Root(), rebuilt.Root()
		require.True(t, ri.Equal(&rr), "roots diverge after %d appends", i+1)
	}
}

func TestProofOutOfRange(t *testing.T) {
	tree, err := merkle.NewFromLeaves(4, randomLeaves(t, 3))
	require.NoError(t, err)

	_, err = tree.Proof(3)
	require.ErrorIs(t, err, merkle.ErrIndexOutOfRange)
	_, err = tree.Leaf(3)
	require.ErrorIs(t, err, merkle.ErrIndexOutOfRange)
}

func TestTreeFull(t *testing.T) {
	tree, err := merkle.NewFromLeaves(2, randomLeaves(t, 4))
	require.NoError(t, err)

	var extra fr.Element
	extra.SetUint64(1)
	_, err = tree.Append(extra)
	require.ErrorIs(t, err, merkle.ErrTreeFull)
}

// TestSingleLeafDepth20Ladder checks the canonical scenario: one leaf C
// at index 0 and depth 20 yields H(C, zero[0]) composed upward through
// the zero ladder, bit-for-bit reproducible.
func TestSingleLeafDepth20Ladder(t *testing.T) {
	const depth = 20
	var c fr.Element
	_, err := c.SetRandom()
	require.NoError(t, err)

	tree := merkle.New(depth)
	_, err = tree.Append(c)
	require.NoError(t, err)

	zeros := merkle.ZeroLadder(depth)
	node := c
	for i := 0; i < depth; i++ {
		node = utils.HashPair(&node, &zeros[i])
	}
	root := tree.Root()
	require.True(t, root.Equal(&node))

	p, err := tree.Proof(0)
	require.NoError(t, err)
	for i := 0; i < depth; i++ {
		require.True(t, p.PathElements[i].Equal(&zeros[i]))
		require.Zero(t, p.PathIndices[i])
	}
}

func TestVerifyProofRejectsTamper(t *testing.T) {
	const depth = 4
	leaves := randomLeaves(t, 6)
	tree, err := merkle.NewFromLeaves(depth, leaves)
	require.NoError(t, err)

	p, err := tree.Proof(2)
	require.NoError(t, err)

	var bad fr.Element
	bad.SetUint64(999)
	tampered := append([]fr.Element(nil), p.PathElements...)
	tampered[1] = bad
	require.Error(t,
		merkle.VerifyProof(depth, p.Leaf, tampered, p.PathIndices, p.Root))

	flipped := append([]int(nil), p.PathIndices...)
	flipped[0] ^= 1
	require.Error(t,
		merkle.VerifyProof(depth, p.Leaf, p.PathElements, flipped, p.Root))

	require.Error(t,
		merkle.VerifyProof(depth-1, p.Leaf, p.PathElements, p.PathIndices, p.Root))
}
