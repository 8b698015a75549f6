package gstack

import "slices"

// Tree merges many stacks into a weighted call tree.
// Roots are outermost frames.
type Tree struct {
	Roots []*Node
}

type Node struct {
	Addr     Addr
	Weight   int
	Children []*Node
}

// Add merges s, innermost first, into t with the given weight.
func (t *Tree) Add(s Stack, weight int) {
	if len(s) == 0 || weight <= 0 {
		return
	}

	level := &t.Roots
	for i := len(s) - 1; i >= 0; i-- {
		n := findChild(*level, s[i])
		if n == nil {
			n = &Node{Addr: s[i]}
			*level = append(*level, n)
		}
		n.Weight += weight
		level = &n.Children
	}
}

func findChild(nodes []*Node, a Addr) *Node {
	for _, n := range nodes {
		if n.Addr == a {
			return n
		}
	}
	return nil
}

// Total is the sum of root weights.
func (t *Tree) Total() int {
	var sum int
	for _, n := range t.Roots {
		sum += n.Weight
	}
	return sum
}

// Walk calls fn for every node in depth-first order,
// visiting heavier siblings first.
func (t *Tree) Walk(fn func(depth int, n *Node)) {
	walkNodes(t.Roots, 0, fn)
}

func walkNodes(nodes []*Node, depth int, fn func(int, *Node)) {
	sorted := slices.Clone(nodes)
	slices.SortStableFunc(sorted, func(a, b *Node) int {
		return b.Weight - a.Weight
	})
	for _, n := range sorted {
		fn(depth, n)
		walkNodes(n.Children, depth+1, fn)
	}
}

// Heaviest returns the path from a root that follows the heaviest child at each level,
// innermost frame first, in the same order as a [Stack].
func (t *Tree) Heaviest() Stack {
	var path Stack
	level := t.Roots
	for len(level) > 0 {
		best := level[0]
		for _, n := range level[1:] {
			if n.Weight > best.Weight {
				best = n
			}
		}
		path = append(path, best.Addr)
		level = best.Children
	}
	slices.Reverse(path)
	return path
}
