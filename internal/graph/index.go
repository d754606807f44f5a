package graph

import (
	"fmt"
	"strings"

	"github.com/roach88/instkey/internal/ir"
)

// NodeID addresses a node inside an Index. The root is always 0.
type NodeID int32

// RootID is the id of every Index's root node.
const RootID NodeID = 0

const noParent NodeID = -1

// SiteOpinions holds what is authored at one site that instancing reads.
type SiteOpinions struct {
	// VariantSelections in the order the site reports them.
	VariantSelections []ir.VariantSelection

	// Instanceable is nil when the site has no authored opinion.
	Instanceable *bool
}

type nodeData struct {
	site          ir.Site
	arc           ir.ArcType
	offset        ir.LayerOffset
	dueToAncestor bool
	hasSpecs      bool
	culled        bool
	inert         bool
	parent        NodeID
	children      []NodeID
}

// Index is an immutable, arena-backed composition graph.
// Safe for concurrent use.
type Index struct {
	nodes              []nodeData
	opinions           map[ir.Site]SiteOpinions
	hasPayloads        bool
	supportsInstancing bool
}

var _ Graph = (*Index)(nil)

// Root implements Graph.
func (x *Index) Root() Node {
	return NodeRef{idx: x, id: RootID}
}

// HasPayloads implements Graph.
func (x *Index) HasPayloads() bool {
	return x.hasPayloads
}

// SupportsInstancing implements Graph.
func (x *Index) SupportsInstancing() bool {
	return x.supportsInstancing
}

// Len returns the number of nodes, culled ones included.
func (x *Index) Len() int {
	return len(x.nodes)
}

// Node returns the node with the given id.
func (x *Index) Node(id NodeID) NodeRef {
	if id < 0 || int(id) >= len(x.nodes) {
		panic(fmt.Sprintf("graph: node id %d out of range [0,%d)", id, len(x.nodes)))
	}
	return NodeRef{idx: x, id: id}
}

// VariantSelections returns the selections authored at n's site.
// A site with nothing authored yields nil, which is not an error.
func (x *Index) VariantSelections(n Node) []ir.VariantSelection {
	return x.opinions[n.Site()].VariantSelections
}

// InstanceableOpinion returns the authored instanceable value at n's site
// and whether one was authored.
func (x *Index) InstanceableOpinion(n Node) (value, authored bool) {
	op := x.opinions[n.Site()].Instanceable
	if op == nil {
		return false, false
	}
	return *op, true
}

// Dump renders the graph as an indented tree in strength order.
// Diagnostic only.
func (x *Index) Dump() string {
	var b strings.Builder
	x.dump(&b, RootID, 0)
	return b.String()
}

func (x *Index) dump(b *strings.Builder, id NodeID, depth int) {
	n := x.nodes[id]
	fmt.Fprintf(b, "%s%s %s", strings.Repeat("  ", depth), n.arc, n.site)
	if !n.offset.IsIdentity() {
		fmt.Fprintf(b, " %s", n.offset)
	}
	var flags []string
	if n.dueToAncestor {
		flags = append(flags, "ancestral")
	}
	if !n.hasSpecs {
		flags = append(flags, "no-specs")
	}
	if n.culled {
		flags = append(flags, "culled")
	}
	if n.inert {
		flags = append(flags, "inert")
	}
	if len(flags) > 0 {
		fmt.Fprintf(b, " [%s]", strings.Join(flags, ","))
	}
	b.WriteByte('\n')
	for _, c := range n.children {
		x.dump(b, c, depth+1)
	}
}

// NodeRef is a handle to a node in an Index. It is a small value and
// compares equal when it addresses the same node of the same Index.
type NodeRef struct {
	idx *Index
	id  NodeID
}

var _ Node = NodeRef{}

// ID returns the node's id within its Index.
func (n NodeRef) ID() NodeID { return n.id }

func (n NodeRef) data() *nodeData { return &n.idx.nodes[n.id] }

func (n NodeRef) Site() ir.Site            { return n.data().site }
func (n NodeRef) ArcType() ir.ArcType      { return n.data().arc }
func (n NodeRef) Offset() ir.LayerOffset   { return n.data().offset }
func (n NodeRef) IsDueToAncestor() bool    { return n.data().dueToAncestor }
func (n NodeRef) HasSpecs() bool           { return n.data().hasSpecs }
func (n NodeRef) IsCulled() bool           { return n.data().culled }
func (n NodeRef) NumChildren() int         { return len(n.data().children) }
func (n NodeRef) Child(i int) Node         { return NodeRef{idx: n.idx, id: n.data().children[i]} }
func (n NodeRef) CanContributeSpecs() bool { return !n.data().inert && !n.data().culled }

// Parent returns nil for the root.
func (n NodeRef) Parent() Node {
	p := n.data().parent
	if p == noParent {
		return nil
	}
	return NodeRef{idx: n.idx, id: p}
}

func (n NodeRef) String() string {
	d := n.data()
	return fmt.Sprintf("%s %s", d.arc, d.site)
}
