package chart

import (
	"testing"
)

func TestDiff(t *testing.T) {
	id := func(kind Kind, key int64) NodeID {
		return NodeID{Group: GroupFocus, Kind: kind, Key: key}
	}
	prev := map[NodeID]Node{
		id(KindPoint, 1): {ID: id(KindPoint, 1), Center: Point{X: 1, Y: 1}, Radius: 5},
		id(KindPoint, 2): {ID: id(KindPoint, 2), Center: Point{X: 2, Y: 2}, Radius: 5},
		id(KindPath, 0):  {ID: id(KindPath, 0), Points: []Point{{X: 1, Y: 1}, {X: 2, Y: 2}}},
	}
	next := map[NodeID]Node{
		id(KindPoint, 2): {ID: id(KindPoint, 2), Center: Point{X: 2, Y: 2}, Radius: 5},
		id(KindPoint, 3): {ID: id(KindPoint, 3), Center: Point{X: 3, Y: 3}, Radius: 5},
		id(KindPath, 0):  {ID: id(KindPath, 0), Points: []Point{{X: 2, Y: 2}, {X: 3, Y: 3}}},
	}
	patches := Diff(prev, next)
	expected := []struct {
		op  PatchOp
		key NodeID
	}{
		{op: PatchRemove, key: id(KindPoint, 1)},
		{op: PatchUpdate, key: id(KindPath, 0)},
		{op: PatchAdd, key: id(KindPoint, 3)},
	}
	if len(patches) != len(expected) {
		t.Fatalf("expected %d patches, got %d: %+v", len(expected), len(patches), patches)
	}
	for i, e := range expected {
		if patches[i].Op != e.op || patches[i].Node.ID != e.key {
			t.Errorf("patch %d: expected %s %+v, got %s %+v", i, e.op, e.key, patches[i].Op, patches[i].Node.ID)
		}
	}
	if len(Diff(next, next)) != 0 {
		t.Errorf("diffing a scene against itself must produce nothing")
	}
}

func TestRetained(t *testing.T) {
	r := NewRetained()
	a := Node{ID: NodeID{Group: GroupContext, Kind: KindPoint, Key: 2}}
	b := Node{ID: NodeID{Group: GroupContext, Kind: KindPoint, Key: 1}}
	c := Node{ID: NodeID{Group: GroupContext, Kind: KindThreshold, Key: 1}}
	r.Apply([]Patch{{Op: PatchAdd, Node: a}, {Op: PatchAdd, Node: b}, {Op: PatchAdd, Node: c}})
	if r.Version() != 1 {
		t.Errorf("expected version 1, got %d", r.Version())
	}
	nodes := r.Nodes(GroupContext)
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}
	if nodes[0].ID != c.ID || nodes[1].ID != b.ID || nodes[2].ID != a.ID {
		t.Errorf("nodes not in paint order: %+v", nodes)
	}
	if got := r.Count(GroupContext, KindPoint); got != 2 {
		t.Errorf("expected 2 points, got %d", got)
	}

	r.Apply(nil)
	if r.Version() != 1 {
		t.Errorf("an empty patch list must not bump the version")
	}
	r.Apply([]Patch{{Op: PatchRemove, Node: Node{ID: a.ID}}})
	if _, ok := r.Get(a.ID); ok {
		t.Errorf("removed node still present")
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 nodes left, got %d", r.Len())
	}
}
