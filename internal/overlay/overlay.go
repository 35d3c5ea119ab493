// Package overlay builds the tree and ring topologies the tracker hands out
// to workers: a balanced binary heap used for reductions, and a Hamiltonian
// cycle aligned to the tree for recovery and bulk transfers.
package overlay

import "fmt"

// Ring is a pair of neighbour ranks on the Hamiltonian cycle.
type Ring struct {
	Prev int
	Next int
}

// Topology is the overlay builder's output: the tree's adjacency and parent
// maps, and the ring map, all indexed by canonical rank after
// relabelling (§4.B).
type Topology struct {
	// Tree holds, for each rank, its neighbours in the binary heap:
	// parent, left child, right child, whichever exist in [0, N).
	Tree map[int][]int
	// Parent maps rank to its parent rank, or -1 for rank 0.
	Parent map[int]int
	// Ring maps rank to its Hamiltonian-cycle neighbours.
	Ring map[int]Ring
	// N is the world size this topology was built for.
	N int
}

// Build constructs the tree and ring overlays for n ranks. Construction is
// deterministic: repeated calls with the same n produce identical maps.
func Build(n int) (*Topology, error) {
	if n < 1 {
		return nil, fmt.Errorf("overlay: n must be >= 1, got %d", n)
	}

	tree, parent := buildTree(n)
	ring := buildRing(tree, parent, n)

	return relabelCanonical(tree, parent, ring, n), nil
}

// buildTree lays out a balanced binary heap over [0, n): parent(r) =
// ((r+1)/2)-1, with parent(0) = -1, and tree[r] holding whichever of
// {parent, leftChild, rightChild} fall inside [0, n).
func buildTree(n int) (map[int][]int, map[int]int) {
	tree := make(map[int][]int, n)
	parent := make(map[int]int, n)

	for r := 0; r < n; r++ {
		p := (r+1)/2 - 1
		parent[r] = p
		tree[r] = neighboursOf(r, n)
	}

	return tree, parent
}

// neighboursOf returns parent(r), leftChild(r), rightChild(r) -- each only
// if it falls inside [0, n) -- in ascending rank order, which is the
// deterministic iteration order the ring-alignment DFS (§4.B) relies on.
func neighboursOf(r, n int) []int {
	one := r + 1
	var out []int
	if one > 1 {
		out = append(out, one/2-1)
	}
	if left := one*2 - 1; left < n {
		out = append(out, left)
	}
	if right := one * 2; right < n {
		out = append(out, right)
	}
	return out
}

// buildRing produces the Hamiltonian cycle aligned to the tree: a DFS from
// root 0 whose last-visited child subtree is reversed before concatenation,
// biasing ring neighbours toward being tree-close.
func buildRing(tree map[int][]int, parent map[int]int, n int) map[int]Ring {
	order := shareRingOrder(tree, parent, 0)
	if len(order) != n {
		panic(fmt.Sprintf("overlay: ring traversal visited %d of %d ranks", len(order), n))
	}

	ring := make(map[int]Ring, n)
	for i, r := range order {
		prev := order[(i+n-1)%n]
		next := order[(i+1)%n]
		ring[r] = Ring{Prev: prev, Next: next}
	}
	return ring
}

// shareRingOrder is the DFS described in §4.B: visit r, then each child (the
// neighbour set minus the parent) in ascending-rank order, reversing the
// last child's subtree sequence before appending it.
func shareRingOrder(tree map[int][]int, parent map[int]int, r int) []int {
	children := make([]int, 0, len(tree[r]))
	for _, nb := range tree[r] {
		if nb != parent[r] {
			children = append(children, nb)
		}
	}

	out := []int{r}
	for i, c := range children {
		sub := shareRingOrder(tree, parent, c)
		if i == len(children)-1 {
			reverseInPlace(sub)
		}
		out = append(out, sub...)
	}
	return out
}

func reverseInPlace(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// relabelCanonical walks the ring from rank 0 following Next; the k-th rank
// visited is relabelled to k. The bijection is then applied to all three
// maps, so that after relabelling ring order coincides with numeric rank
// order while tree neighbours are permuted.
func relabelCanonical(tree map[int][]int, parent map[int]int, ring map[int]Ring, n int) *Topology {
	relabel := make(map[int]int, n)
	relabel[0] = 0
	cur := 0
	for i := 0; i < n-1; i++ {
		cur = ring[cur].Next
		relabel[cur] = i + 1
	}

	out := &Topology{
		Tree:   make(map[int][]int, n),
		Parent: make(map[int]int, n),
		Ring:   make(map[int]Ring, n),
		N:      n,
	}

	for oldRank, newRank := range relabel {
		nbrs := make([]int, len(tree[oldRank]))
		for i, nb := range tree[oldRank] {
			nbrs[i] = relabel[nb]
		}
		out.Tree[newRank] = nbrs

		if oldRank == 0 {
			out.Parent[newRank] = -1
		} else {
			out.Parent[newRank] = relabel[parent[oldRank]]
		}

		r := ring[oldRank]
		out.Ring[newRank] = Ring{Prev: relabel[r.Prev], Next: relabel[r.Next]}
	}

	return out
}
