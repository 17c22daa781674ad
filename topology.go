package districtcooling

import (
	"gonum.org/v1/gonum/mat"
)

// NodeType classifies a grid node.
type NodeType string

const (
	NodeReference NodeType = "reference"
	NodeJunction  NodeType = "junction"
	NodeBuilding  NodeType = "building"
)

// ParseNodeType validates a node type read from configuration.
func ParseNodeType(s string) (NodeType, error) {
	switch t := NodeType(s); t {
	case NodeReference, NodeJunction, NodeBuilding:
		return t, nil
	default:
		return "", configErrorf("unknown node type %q", s)
	}
}

// Node is a vertex of the grid. The position is only used for diagnostics.
type Node struct {
	ID   string
	Type NodeType
	X    float64 // m
	Y    float64 // m
}

// Line is a directed pipe from Start to End.
type Line struct {
	ID        string
	Start     string
	End       string
	Length    float64 // m
	Diameter  float64 // internal diameter, m
	Roughness float64 // absolute roughness, mm
}

// Topology is the directed spanning tree of the grid and its incidence
// matrices. Node and line order is the input order and indexes every vector
// and series derived from the grid.
type Topology struct {
	nodes     []Node
	lines     []Line
	nodeIndex map[string]int
	lineIndex map[string]int
	reference int

	reducedNodes []int         // node index of each reduced column
	incidence    *mat.Dense    // [l, n]
	reduced      *mat.Dense    // [l, n-1]
	potential    *mat.VecDense // [l]
	lu           mat.LU

	inflow  [][]int // line indices ending at node n
	outflow [][]int // line indices starting at node n
}

/*
Builds the incidence matrices of the grid.

	Args:
		nodes: grid nodes, exactly one of type reference
		lines: directed lines, one fewer than nodes
	Returns:
		the topology, or a *ConfigurationError if the graph is not a directed
		spanning tree rooted at the reference node
*/
func NewTopology(nodes []Node, lines []Line) (*Topology, error) {
	t := &Topology{
		nodes:     append([]Node(nil), nodes...),
		lines:     append([]Line(nil), lines...),
		nodeIndex: make(map[string]int, len(nodes)),
		lineIndex: make(map[string]int, len(lines)),
		reference: -1,
	}

	for i, n := range t.nodes {
		if n.ID == "" {
			return nil, configErrorf("node %d has no id", i)
		}
		if _, dup := t.nodeIndex[n.ID]; dup {
			return nil, configErrorf("duplicate node id %q", n.ID)
		}
		if _, err := ParseNodeType(string(n.Type)); err != nil {
			return nil, err
		}
		t.nodeIndex[n.ID] = i
		if n.Type == NodeReference {
			if t.reference >= 0 {
				return nil, configErrorf("more than one reference node: %q and %q", t.nodes[t.reference].ID, n.ID)
			}
			t.reference = i
		}
	}
	if t.reference < 0 {
		return nil, configErrorf("no reference node")
	}
	if len(t.nodes) < 2 {
		return nil, configErrorf("grid needs at least one node besides the reference node")
	}

	t.inflow = make([][]int, len(t.nodes))
	t.outflow = make([][]int, len(t.nodes))
	for i, l := range t.lines {
		if l.ID == "" {
			return nil, configErrorf("line %d has no id", i)
		}
		if _, dup := t.lineIndex[l.ID]; dup {
			return nil, configErrorf("duplicate line id %q", l.ID)
		}
		s, ok := t.nodeIndex[l.Start]
		if !ok {
			return nil, configErrorf("line %q starts at unknown node %q", l.ID, l.Start)
		}
		e, ok := t.nodeIndex[l.End]
		if !ok {
			return nil, configErrorf("line %q ends at unknown node %q", l.ID, l.End)
		}
		if s == e {
			return nil, configErrorf("line %q is a self loop at node %q", l.ID, l.Start)
		}
		if l.Length <= 0 || l.Diameter <= 0 || l.Roughness < 0 {
			return nil, configErrorf("line %q has invalid length %g, diameter %g or roughness %g",
				l.ID, l.Length, l.Diameter, l.Roughness)
		}
		t.lineIndex[l.ID] = i
		t.outflow[s] = append(t.outflow[s], i)
		t.inflow[e] = append(t.inflow[e], i)
	}

	nL, nN := len(t.lines), len(t.nodes)
	if nL != nN-1 {
		return nil, configErrorf("reduced incidence matrix is not square: %d lines for %d non-reference nodes", nL, nN-1)
	}

	t.incidence = mat.NewDense(nL, nN, nil)
	for i, l := range t.lines {
		t.incidence.Set(i, t.nodeIndex[l.Start], -1)
		t.incidence.Set(i, t.nodeIndex[l.End], +1)
	}

	t.potential = mat.NewVecDense(nL, nil)
	t.potential.CopyVec(t.incidence.ColView(t.reference))

	t.reducedNodes = make([]int, 0, nN-1)
	for n := range t.nodes {
		if n != t.reference {
			t.reducedNodes = append(t.reducedNodes, n)
		}
	}
	t.reduced = mat.NewDense(nL, nN-1, nil)
	for j, n := range t.reducedNodes {
		t.reduced.SetCol(j, mat.Col(nil, n, t.incidence))
	}

	t.lu.Factorize(t.reduced)
	if t.lu.Det() == 0 || t.lu.Cond() > mat.ConditionTolerance {
		return nil, configErrorf("reduced incidence matrix is singular: the grid is not a spanning tree")
	}

	if unreached := t.unreachable(); len(unreached) > 0 {
		return nil, configErrorf("node %q is not reachable from reference node %q along line directions",
			unreached[0], t.nodes[t.reference].ID)
	}

	return t, nil
}

// unreachable lists the nodes that no directed path from the reference reaches.
func (t *Topology) unreachable() []string {
	seen := make([]bool, len(t.nodes))
	seen[t.reference] = true
	queue := []int{t.reference}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, l := range t.outflow[n] {
			e := t.nodeIndex[t.lines[l].End]
			if !seen[e] {
				seen[e] = true
				queue = append(queue, e)
			}
		}
	}
	var ids []string
	for i, ok := range seen {
		if !ok {
			ids = append(ids, t.nodes[i].ID)
		}
	}
	return ids
}

func (t *Topology) Nodes() []Node { return append([]Node(nil), t.nodes...) }
func (t *Topology) Lines() []Line { return append([]Line(nil), t.lines...) }

// NodeIndex returns the position of a node in the node order.
func (t *Topology) NodeIndex(id string) (int, bool) {
	i, ok := t.nodeIndex[id]
	return i, ok
}

// LineIndex returns the position of a line in the line order.
func (t *Topology) LineIndex(id string) (int, bool) {
	i, ok := t.lineIndex[id]
	return i, ok
}

// Reference returns the reference node.
func (t *Topology) Reference() Node { return t.nodes[t.reference] }

// Buildings returns the building nodes in node order.
func (t *Topology) Buildings() []Node { return t.ofType(NodeBuilding) }

// Junctions returns the junction nodes in node order.
func (t *Topology) Junctions() []Node { return t.ofType(NodeJunction) }

func (t *Topology) ofType(typ NodeType) []Node {
	var out []Node
	for _, n := range t.nodes {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

// BuildingIDs returns the ids of the building nodes in node order.
func (t *Topology) BuildingIDs() []string {
	return nodeIDs(t.Buildings())
}

// NodeIDs returns all node ids in node order.
func (t *Topology) NodeIDs() []string { return nodeIDs(t.nodes) }

// LineIDs returns all line ids in line order.
func (t *Topology) LineIDs() []string {
	ids := make([]string, len(t.lines))
	for i, l := range t.lines {
		ids[i] = l.ID
	}
	return ids
}

func nodeIDs(nodes []Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

// Incidence returns the full incidence matrix, [l, n]. Entries are -1 at the
// start node and +1 at the end node of each line.
func (t *Topology) Incidence() mat.Matrix { return mat.DenseCopyOf(t.incidence) }

// Reduced returns the square incidence matrix without the reference column, [l, n-1].
func (t *Topology) Reduced() mat.Matrix { return mat.DenseCopyOf(t.reduced) }

// ReducedT returns the transpose of Reduced, [n-1, l].
func (t *Topology) ReducedT() mat.Matrix { return mat.DenseCopyOf(t.reduced.T()) }

// PotentialColumn returns the reference node column of the full incidence matrix, [l].
func (t *Topology) PotentialColumn() mat.Vector { return mat.VecDenseCopyOf(t.potential) }

// ReducedNodes returns the node ids in the column order of Reduced.
func (t *Topology) ReducedNodes() []string {
	ids := make([]string, len(t.reducedNodes))
	for j, n := range t.reducedNodes {
		ids[j] = t.nodes[n].ID
	}
	return ids
}

// InflowLines returns the ids of the lines ending at a node.
func (t *Topology) InflowLines(nodeID string) []string { return t.lineIDsAt(t.inflow, nodeID) }

// OutflowLines returns the ids of the lines starting at a node.
func (t *Topology) OutflowLines(nodeID string) []string { return t.lineIDsAt(t.outflow, nodeID) }

func (t *Topology) lineIDsAt(adj [][]int, nodeID string) []string {
	n, ok := t.nodeIndex[nodeID]
	if !ok {
		return nil
	}
	ids := make([]string, len(adj[n]))
	for i, l := range adj[n] {
		ids[i] = t.lines[l].ID
	}
	return ids
}

// solveLineFlows solves Reducedᵀ · q = c for the line flows q, [l].
func (t *Topology) solveLineFlows(dst *mat.VecDense, consumption mat.Vector) error {
	return t.lu.SolveVecTo(dst, true, consumption)
}

// solveHeads solves Reduced · h = -loss for the non-reference nodal heads, [n-1].
func (t *Topology) solveHeads(dst *mat.VecDense, negLoss mat.Vector) error {
	return t.lu.SolveVecTo(dst, false, negLoss)
}
