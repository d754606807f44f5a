package instancing

import "github.com/roach88/instkey/internal/graph"

// Visitor receives nodes during a traversal along with their eligibility.
// The return value is only honored by TraverseStrongToWeak, where false
// skips the node's children.
type Visitor interface {
	Visit(n graph.Node, eligible bool) bool
}

// VisitorFunc adapts a function to a Visitor.
type VisitorFunc func(n graph.Node, eligible bool) bool

// Visit calls f(n, eligible).
func (f VisitorFunc) Visit(n graph.Node, eligible bool) bool {
	return f(n, eligible)
}

// frame is one pending node together with the direct-arc flag inherited
// from its path. Traversals keep an explicit stack of frames so that stack
// depth does not grow with graph depth.
type frame struct {
	node         graph.Node
	hasDirectArc bool

	// weak-to-strong only: set once the children have been pushed.
	expanded bool
	eligible bool
}

// TraverseStrongToWeak visits g in pre-order, strongest child first. The
// root is reported first and never eligible. A culled node is skipped along
// with its whole subtree. When v returns false the node's children are not
// visited; siblings still are.
func TraverseStrongToWeak(g graph.Graph, v Visitor) {
	stack := []frame{{node: g.Root()}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.node.IsCulled() {
			continue
		}
		eligible, hasDirectArc := Classify(f.node, f.hasDirectArc)
		if !v.Visit(f.node, eligible) {
			continue
		}
		// Push weakest first so the strongest child is popped next.
		for i := f.node.NumChildren() - 1; i >= 0; i-- {
			stack = append(stack, frame{node: f.node.Child(i), hasDirectArc: hasDirectArc})
		}
	}
}

// TraverseWeakToStrong visits g in post-order: a node's children, weakest
// first, are all visited before the node itself. Culled subtrees are
// skipped. The visitor's return value is ignored.
func TraverseWeakToStrong(g graph.Graph, v Visitor) {
	traverseWeakToStrong(g.Root(), false, v)
}

// TraverseSubtreeWeakToStrong is TraverseWeakToStrong starting at an
// arbitrary node. The direct-arc flag the subtree inherits is derived by
// scanning from start's parent up to, but not including, the root.
func TraverseSubtreeWeakToStrong(start graph.Node, v Visitor) {
	traverseWeakToStrong(start, inheritedDirectArc(start), v)
}

func inheritedDirectArc(n graph.Node) bool {
	for p := n.Parent(); p != nil && !graph.IsRoot(p); p = p.Parent() {
		if !p.IsDueToAncestor() {
			return true
		}
	}
	return false
}

func traverseWeakToStrong(start graph.Node, inherited bool, v Visitor) {
	stack := []frame{{node: start, hasDirectArc: inherited}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.expanded {
			n, eligible := top.node, top.eligible
			stack = stack[:len(stack)-1]
			v.Visit(n, eligible)
			continue
		}
		if top.node.IsCulled() {
			stack = stack[:len(stack)-1]
			continue
		}

		eligible, hasDirectArc := Classify(top.node, top.hasDirectArc)
		top.expanded = true
		top.eligible = eligible

		// Push strongest first so the weakest child is popped next.
		n := top.node
		for i := 0; i < n.NumChildren(); i++ {
			stack = append(stack, frame{node: n.Child(i), hasDirectArc: hasDirectArc})
		}
	}
}

// EligibleNodes returns the eligible nodes of g in weak-to-strong order,
// the order in which a consumer layers an instance's opinions.
func EligibleNodes(g graph.Graph) []graph.Node {
	var nodes []graph.Node
	TraverseWeakToStrong(g, VisitorFunc(func(n graph.Node, eligible bool) bool {
		if eligible {
			nodes = append(nodes, n)
		}
		return true
	}))
	return nodes
}

// firstInStrengthOrder walks every node of the tree under root in
// pre-order, strongest first, and returns the first one matching pred.
// Unlike the traversals above it does not skip culled nodes; pred decides.
func firstInStrengthOrder(root graph.Node, pred func(graph.Node) bool) (graph.Node, bool) {
	stack := []graph.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if pred(n) {
			return n, true
		}
		for i := n.NumChildren() - 1; i >= 0; i-- {
			stack = append(stack, n.Child(i))
		}
	}
	return nil, false
}
