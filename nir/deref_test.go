package nir

import (
	"testing"
)

// derefFixture builds a function with a local lights[4] array of structs
// and returns the builder positioned at its entry block.
func derefFixture(t *testing.T) (*Module, *Function, *Builder, *Variable) {
	t.Helper()
	m := NewModule()
	tt := m.Types
	vec4 := tt.Vector(Vec4, ScalarType{Kind: ScalarFloat, Width: 4})
	st := tt.Struct("Light", []StructMember{
		{Name: "color", Type: vec4},
		{Name: "intensity", Type: tt.F32()},
	})
	f := m.NewFunction("main")
	lights := f.NewLocal("lights", tt.Array(st, 4))
	return m, f, NewBuilder(f), lights
}

func TestPathOf(t *testing.T) {
	_, _, b, lights := derefFixture(t)

	root := b.DerefVar(lights)
	elem := b.DerefArrayImm(root, 2)
	field := b.DerefStruct(elem, 1)

	path := PathOf(field)
	if len(path.Instrs) != 3 {
		t.Fatalf("path has %d links, want 3", len(path.Instrs))
	}
	if path.Root() != root || path.Tail() != field {
		t.Error("path endpoints are wrong")
	}
	if path.Variable() != lights {
		t.Error("path variable is not the chain root")
	}
	if RootVariable(field) != lights {
		t.Error("RootVariable disagrees with the path")
	}

	// Paths are scratch state; building one twice gives the same links.
	again := PathOf(field)
	for i := range path.Instrs {
		if path.Instrs[i] != again.Instrs[i] {
			t.Fatalf("rebuilt path diverges at link %d", i)
		}
	}
}

func TestRemoveIfUnusedWalksTowardRoot(t *testing.T) {
	_, f, b, lights := derefFixture(t)

	root := b.DerefVar(lights)
	elem := b.DerefArrayImm(root, 0)
	field := b.DerefStruct(elem, 1)

	if !RemoveIfUnused(field) {
		t.Fatal("removing a dead chain reported no progress")
	}
	if field.Block() != nil || elem.Block() != nil || root.Block() != nil {
		t.Error("dead chain links were not all removed")
	}
	// The constant index had its only consumer removed but is not a
	// deref itself; it stays for a dead-code pass to collect.
	if got := f.Entry().Len(); got != 1 {
		t.Errorf("block has %d instructions, want 1 (the index constant)", got)
	}
}

func TestRemoveIfUnusedStopsAtLiveDeref(t *testing.T) {
	_, _, b, lights := derefFixture(t)

	root := b.DerefVar(lights)
	elem := b.DerefArrayImm(root, 0)
	colorA := b.DerefStruct(elem, 0)
	intensity := b.DerefStruct(elem, 1)
	b.LoadDeref(intensity)

	if !RemoveIfUnused(colorA) {
		t.Fatal("no progress removing the dead branch")
	}
	if colorA.Block() == nil && elem.Block() == nil {
		t.Error("removal walked past a deref that still has a consumer")
	}
	if intensity.Block() == nil || root.Block() == nil {
		t.Error("live chain was removed")
	}
}

func TestRemoveIfUnusedIdempotent(t *testing.T) {
	_, _, b, lights := derefFixture(t)

	root := b.DerefVar(lights)
	elem := b.DerefArrayImm(root, 3)

	if !RemoveIfUnused(elem) {
		t.Fatal("first call reported no progress")
	}
	if RemoveIfUnused(elem) {
		t.Error("second call on a cleaned chain reported progress")
	}
}

func TestRemoveIfUnusedKeepsUsedDeref(t *testing.T) {
	_, _, b, lights := derefFixture(t)

	root := b.DerefVar(lights)
	elem := b.DerefArrayImm(root, 0)
	intensity := b.DerefStruct(elem, 1)
	load := b.LoadDeref(intensity)

	if RemoveIfUnused(intensity) {
		t.Error("removed a deref with a live consumer")
	}
	if load.Block() == nil || intensity.Block() == nil {
		t.Error("live instructions disappeared")
	}
}

func TestRemoveDeadDerefs(t *testing.T) {
	m, f, b, lights := derefFixture(t)

	root := b.DerefVar(lights)
	deadElem := b.DerefArrayImm(root, 1)
	liveElem := b.DerefArrayImm(root, 0)
	live := b.DerefStruct(liveElem, 1)
	b.LoadDeref(live)
	_ = deadElem

	if !RemoveDeadDerefs(m) {
		t.Fatal("no progress reported")
	}
	if deadElem.Block() != nil {
		t.Error("dead deref survived")
	}
	if live.Block() == nil || root.Block() == nil {
		t.Error("live chain was removed")
	}
	if RemoveDeadDerefs(m) {
		t.Error("second sweep found more work")
	}
	_ = f
}

func TestCompareDerefs(t *testing.T) {
	_, _, b, lights := derefFixture(t)

	root := b.DerefVar(lights)
	e0 := b.DerefArrayImm(root, 0)
	e0again := b.DerefArrayImm(root, 0)
	e1 := b.DerefArrayImm(root, 1)
	wild := b.DerefWildcard(root)
	f0 := b.DerefStruct(e0, 0)
	f1 := b.DerefStruct(e0again, 1)

	if got := CompareDerefs(e0, e1); got != DerefsDoNotAlias {
		t.Errorf("distinct constant indices: got %v", got)
	}
	if got := CompareDerefs(e0, e0again); got&DerefsEqualBit == 0 {
		t.Errorf("identical paths: got %v, want equal", got)
	}
	if got := CompareDerefs(wild, e1); got&DerefsAContainsBBit == 0 || got&DerefsBContainsABit != 0 {
		t.Errorf("wildcard vs element: got %v, want A-contains-B only", got)
	}
	if got := CompareDerefs(e0, f0); got&DerefsAContainsBBit == 0 {
		t.Errorf("element vs its field: got %v, want containment", got)
	}
	if got := CompareDerefs(f0, f1); got != DerefsDoNotAlias {
		t.Errorf("different fields of one element: got %v", got)
	}

	other := b.Function().NewLocal("other", lights.Type)
	otherRoot := b.DerefVar(other)
	if got := CompareDerefs(root, otherRoot); got != DerefsDoNotAlias {
		t.Errorf("different variables: got %v", got)
	}
}

func TestChainFromDeref(t *testing.T) {
	m, _, b, lights := derefFixture(t)
	tt := m.Types

	root := b.DerefVar(lights)
	idx := b.ImmU32(2)
	elem := b.DerefArray(root, idx)
	field := b.DerefStruct(elem, 0)

	c := ChainFromDeref(field)
	if c.Var != lights {
		t.Fatal("chain root is not the deref variable")
	}
	if len(c.Links) != 2 {
		t.Fatalf("chain has %d links, want 2", len(c.Links))
	}
	if !c.Links[0].IsConst() || c.Links[0].Const != 2 {
		t.Errorf("constant index link is %+v", c.Links[0])
	}
	if c.Links[1].Kind != LinkField || c.Links[1].Field != 0 {
		t.Errorf("field link is %+v", c.Links[1])
	}
	if c.Type() != field.Type {
		t.Error("chain type differs from deref type")
	}

	// A dynamic index is carried as a reference to the value.
	dynIdx := b.LoadVar(ChainOf(m.NewGlobal("i", ModeIn, tt.U32())))
	dynElem := b.DerefArray(root, dynIdx)
	dc := ChainFromDeref(dynElem)
	if dc.Links[0].Index != dynIdx {
		t.Error("dynamic index was not preserved")
	}
}
