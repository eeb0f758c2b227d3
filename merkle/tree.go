// Package merkle implements the fixed-depth append-only commitment tree.
//
// The tree keeps a cached node array per level, so appending a leaf
// recomputes only the leaf's path to the root and proof generation is a
// plain lookup per level. Positions past the current leaf count are
// filled with the precomputed zero ladder, so a partially filled tree
// still yields a complete root of the configured depth.
package merkle

import (
	"errors"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/netstatehq/zk-census/utils"
)

// DefaultDepth supports 2^20 (~1M) registered commitments.
const DefaultDepth = 20

var (
	ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")
	ErrTreeFull        = errors.New("merkle: tree is full")
	ErrBadProofLen     = errors.New("merkle: proof length does not match tree depth")
)

// Proof is an inclusion proof for a single leaf. PathElements holds the
// sibling at each level starting from the leaf level; PathIndices[i] is
// 0 when the running node is the left child at level i and 1 when it is
// the right child.
type Proof struct {
	LeafIndex    uint32
	Leaf         fr.Element
	PathElements []fr.Element
	PathIndices  []int
	Root         fr.Element
}

// Tree is safe for concurrent use. Writers (Append) serialize; readers
// (Root, Proof, Leaf) take a shared lock.
type Tree struct {
	mu     sync.RWMutex
	depth  int
	zeros  []fr.Element
	levels [][]fr.Element
}

// ZeroLadder returns the empty-subtree hash per level:
// zeros[0] = 0, zeros[i+1] = H(zeros[i], zeros[i]).
func ZeroLadder(depth int) []fr.Element {
	zeros := make([]fr.Element, depth+1)
	for i := 0; i < depth; i++ {
		zeros[i+1] = utils.HashPair(&zeros[i], &zeros[i])
	}
	return zeros
}

func New(depth int) *Tree {
	if depth <= 0 {
		panic("merkle: depth must be positive")
	}
	return &Tree{
		depth:  depth,
		zeros:  ZeroLadder(depth),
		levels: make([][]fr.Element, depth+1),
	}
}

// NewFromLeaves rebuilds a tree from an ordered leaf sequence, e.g. the
// persisted citizen store at startup.
func NewFromLeaves(depth int, leaves []fr.Element) (*Tree, error) {
	t := New(depth)
	for i := range leaves {
		if _, err := t.Append(leaves[i]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tree) Depth() int { return t.depth }

// LeafCount returns the number of appended leaves.
func (t *Tree) LeafCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.levels[0])
}

// Root returns the current root. The empty tree root is the sentinel 0.
func (t *Tree) Root() fr.Element {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root()
}

func (t *Tree) root() fr.Element {
	if len(t.levels[0]) == 0 {
		var zero fr.Element
		return zero
	}
	return t.levels[t.depth][0]
}

// Leaf returns the leaf at index i.
func (t *Tree) Leaf(i uint32) (fr.Element, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(i) >= len(t.levels[0]) {
		var zero fr.Element
		return zero, ErrIndexOutOfRange
	}
	return t.levels[0][i], nil
}

// Append inserts a leaf at the next dense index and recomputes only the
// path from that leaf to the root. Cost is one hash per level.
func (t *Tree) Append(leaf fr.Element) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := len(t.levels[0])
	if idx >= 1<<t.depth {
		return 0, ErrTreeFull
	}
	t.levels[0] = append(t.levels[0], leaf)

	i := idx
	for level := 0; level < t.depth; level++ {
		nodes := t.levels[level]
		left := i &^ 1
		var l, r fr.Element
		l = nodes[left]
		if left+1 < len(nodes) {
			r = nodes[left+1]
		} else {
			r = t.zeros[level]
		}
		parent := utils.HashPair(&l, &r)

		i >>= 1
		if i < len(t.levels[level+1]) {
			t.levels[level+1][i] = parent
		} else {
			t.levels[level+1] = append(t.levels[level+1], parent)
		}
	}
	return uint32(idx), nil
}

// Proof builds the inclusion proof for leaf index i: at each level the
// sibling is the paired node in the cached level array when present,
// else the zero for that level.
func (t *Tree) Proof(i uint32) (*Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if int(i) >= len(t.levels[0]) {
		return nil, ErrIndexOutOfRange
	}

	p := &Proof{
		LeafIndex:    i,
		Leaf:         t.levels[0][i],
		PathElements: make([]fr.Element, t.depth),
		PathIndices:  make([]int, t.depth),
	}

	idx := int(i)
	for level := 0; level < t.depth; level++ {
		sib := idx ^ 1
		if sib < len(t.levels[level]) {
			p.PathElements[level] = t.levels[level][sib]
		} else {
			p.PathElements[level] = t.zeros[level]
		}
		p.PathIndices[level] = idx & 1
		idx >>= 1
	}
	p.Root = t.root()
	return p, nil
}

// VerifyProof folds the leaf with each sibling in path order; direction
// bit 0 hashes (node, sibling), 1 hashes (sibling, node). This mirrors
// the in-circuit verification exactly and must stay in lockstep with it.
func VerifyProof(depth int, leaf fr.Element, pathElements []fr.Element, pathIndices []int, root fr.Element) error {
	if len(pathElements) != depth || len(pathIndices) != depth {
		return ErrBadProofLen
	}
	node := leaf
	for i := 0; i < depth; i++ {
		if pathIndices[i] == 0 {
			node = utils.HashPair(&node, &pathElements[i])
		} else {
			node = utils.HashPair(&pathElements[i], &node)
		}
	}
	if !node.Equal(&root) {
		return errors.New("merkle: proof does not reconstruct root")
	}
	return nil
}
