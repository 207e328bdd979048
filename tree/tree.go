// Package tree grows regression trees on histogram-binned features and
// combines them into the immutable ensembles that the boosting and forest
// trainers return.
package tree

// Node is one node of a Tree. Leaves have Left == Right == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64 // leaf output, already scaled by the shrinkage
	Gain      float64
	Cover     float64 // sum of hessians of the training rows reaching the node
	Samples   int
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	return n.Left < 0
}

// Tree is a binary regression tree stored as a flat node array with the
// root at index 0.
type Tree struct {
	Nodes []Node
}

// Predict routes x to a leaf: x[Feature] <= Threshold goes left.
func (t *Tree) Predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// NumLeaves counts the leaves.
func (t *Tree) NumLeaves() int {
	count := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			count++
		}
	}
	return count
}

// Depth returns the length of the longest root-to-leaf path; a single leaf
// has depth 0.
func (t *Tree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(i int) int
	walk = func(i int) int {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return 0
		}
		l, r := walk(n.Left), walk(n.Right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	return walk(0)
}

// valid checks that child links stay inside the node array and features
// inside [0, nFeatures).
func (t *Tree) valid(nFeatures int) bool {
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			if n.Right >= 0 {
				return false
			}
			continue
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return false
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return false
		}
	}
	return true
}
