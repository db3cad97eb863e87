package chart

import (
	"cmp"
	"slices"
)

// Point is a position in plot-local pixels.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle in plot-local pixels.
type Rect struct {
	Min, Max Point
}

// Group identifies which view a node belongs to. Focus, cursor and brush
// nodes share their view's coordinate space: focus and cursor nodes are
// positioned in the focus plot, context and brush nodes in the context plot.
type Group uint8

const (
	GroupFocus Group = iota
	GroupContext
	GroupBrush
	GroupCursor
	groupCount
)

func (g Group) String() string {
	switch g {
	case GroupFocus:
		return "focus"
	case GroupContext:
		return "context"
	case GroupBrush:
		return "brush"
	case GroupCursor:
		return "cursor"
	default:
		return "unknown"
	}
}

// Kind is the type of a node. Kinds are declared in paint order.
type Kind uint8

const (
	KindValueTick Kind = iota
	KindTimeTick
	KindBand
	KindThreshold
	KindPath
	KindPoint
	KindBrush
	KindCursorLine
	KindCursorLabel
	KindCursorHandle
)

// Role selects the paint used for a node.
type Role uint8

const (
	RoleGrid Role = iota
	RoleTargetBand
	RoleThresholdHigh
	RoleThresholdTarget
	RoleThresholdLow
	RoleLine
	RoleInRange
	RoleWarning
	RoleUrgent
	RoleBrush
	RoleCursorCurrent
	RoleCursorStale
)

// NodeID is a stable identity for a node across redraws. Key is a value or a
// timestamp in milliseconds depending on the kind; Seq separates nodes that
// share a key, such as duplicate readings.
type NodeID struct {
	Group Group
	Kind  Kind
	Key   int64
	Seq   int
}

func (id NodeID) compare(o NodeID) int {
	return cmp.Or(
		cmp.Compare(id.Group, o.Group),
		cmp.Compare(id.Kind, o.Kind),
		cmp.Compare(id.Key, o.Key),
		cmp.Compare(id.Seq, o.Seq),
	)
}

// Node is one element of the retained scene. Which fields are meaningful
// depends on Kind:
//
//   - ticks, thresholds and the cursor line use Points as a line segment
//   - paths use Points as a polyline
//   - bands and the brush use Rect
//   - points and the cursor handle use Center and Radius
//   - ticks and the cursor label carry Label anchored at LabelAt
type Node struct {
	ID      NodeID
	Role    Role
	Points  []Point
	Rect    Rect
	Center  Point
	Radius  float64
	Width   float64
	Dashed  bool
	Label   string
	LabelAt Point
}

// Equal reports whether two nodes would paint identically.
func (n Node) Equal(o Node) bool {
	return n.ID == o.ID &&
		n.Role == o.Role &&
		slices.Equal(n.Points, o.Points) &&
		n.Rect == o.Rect &&
		n.Center == o.Center &&
		n.Radius == o.Radius &&
		n.Width == o.Width &&
		n.Dashed == o.Dashed &&
		n.Label == o.Label &&
		n.LabelAt == o.LabelAt
}

// PatchOp is the kind of change a patch describes.
type PatchOp uint8

const (
	PatchAdd PatchOp = iota
	PatchUpdate
	PatchRemove
)

func (p PatchOp) String() string {
	switch p {
	case PatchAdd:
		return "add"
	case PatchUpdate:
		return "update"
	case PatchRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Patch is one change to the retained scene. Remove patches only carry the
// node's ID.
type Patch struct {
	Op   PatchOp
	Node Node
}

// Renderer consumes scene patches. Implementations may draw immediately or
// retain the nodes for a later frame.
type Renderer interface {
	Apply(patches []Patch)
}

// Diff computes the patches turning prev into next. Patches are ordered by
// node ID with removals first.
func Diff(prev, next map[NodeID]Node) []Patch {
	var patches []Patch
	for id, n := range prev {
		if _, ok := next[id]; !ok {
			patches = append(patches, Patch{Op: PatchRemove, Node: Node{ID: n.ID}})
		}
	}
	for id, n := range next {
		old, ok := prev[id]
		switch {
		case !ok:
			patches = append(patches, Patch{Op: PatchAdd, Node: n})
		case !old.Equal(n):
			patches = append(patches, Patch{Op: PatchUpdate, Node: n})
		}
	}
	slices.SortFunc(patches, func(a, b Patch) int {
		if a.Op == PatchRemove && b.Op != PatchRemove {
			return -1
		}
		if b.Op == PatchRemove && a.Op != PatchRemove {
			return 1
		}
		return a.Node.ID.compare(b.Node.ID)
	})
	return patches
}

// Retained is a Renderer that keeps the current scene in memory.
type Retained struct {
	nodes   map[NodeID]Node
	version uint64
}

// NewRetained returns an empty scene.
func NewRetained() *Retained {
	return &Retained{nodes: make(map[NodeID]Node)}
}

// Apply implements Renderer.
func (r *Retained) Apply(patches []Patch) {
	if len(patches) == 0 {
		return
	}
	for _, p := range patches {
		switch p.Op {
		case PatchAdd, PatchUpdate:
			r.nodes[p.Node.ID] = p.Node
		case PatchRemove:
			delete(r.nodes, p.Node.ID)
		}
	}
	r.version++
}

// Version increases every time a non-empty patch list is applied.
func (r *Retained) Version() uint64 {
	return r.version
}

// Len returns the number of nodes in the scene.
func (r *Retained) Len() int {
	return len(r.nodes)
}

// Get looks up a single node.
func (r *Retained) Get(id NodeID) (Node, bool) {
	n, ok := r.nodes[id]
	return n, ok
}

// Nodes returns the nodes of a group in paint order.
func (r *Retained) Nodes(g Group) []Node {
	var out []Node
	for id, n := range r.nodes {
		if id.Group == g {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b Node) int {
		return a.ID.compare(b.ID)
	})
	return out
}

// Count returns how many nodes of the given kind a group holds.
func (r *Retained) Count(g Group, k Kind) int {
	n := 0
	for id := range r.nodes {
		if id.Group == g && id.Kind == k {
			n++
		}
	}
	return n
}
