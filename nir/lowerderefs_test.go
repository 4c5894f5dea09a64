package nir

import (
	"testing"
)

func countDerefs(f *Function) int {
	n := 0
	for _, b := range f.Blocks {
		for in := b.First(); in != nil; in = in.Next() {
			if in.IsDeref() {
				n++
			}
		}
	}
	return n
}

func TestLowerDerefInstrsLoadStore(t *testing.T) {
	m := NewModule()
	tt := m.Types
	out := m.NewGlobal("result", ModeOut, tt.F32())
	f := m.NewFunction("main")
	tmp := f.NewLocal("tmp", tt.Array(tt.F32(), 4))

	b := NewBuilder(f)
	root := b.DerefVar(tmp)
	elem := b.DerefArrayImm(root, 2)
	ld := b.LoadDeref(elem)
	b.StoreDeref(b.DerefVar(out), ld, 0x1)

	if !LowerDerefInstrs(m, LowerAllDerefs) {
		t.Fatal("no progress reported")
	}
	if n := countDerefs(f); n != 0 {
		t.Fatalf("%d deref instructions left behind", n)
	}

	var loads []*LoadVar
	var stores []*StoreVar
	for in := f.Entry().First(); in != nil; in = in.Next() {
		switch op := in.Op.(type) {
		case *LoadVar:
			loads = append(loads, op)
		case *StoreVar:
			stores = append(stores, op)
		}
	}
	if len(loads) != 1 || len(stores) != 1 {
		t.Fatalf("got %d loads and %d stores", len(loads), len(stores))
	}
	src := loads[0].Src
	if src.Var != tmp || len(src.Links) != 1 || !src.Links[0].IsConst() || src.Links[0].Const != 2 {
		t.Errorf("load chain is %s", src.String(tt))
	}
	if stores[0].Dst.Var != out || len(stores[0].Dst.Links) != 0 {
		t.Errorf("store chain is %s", stores[0].Dst.String(tt))
	}

	if errs := mustValidate(t, m); errs != nil {
		t.Fatalf("module invalid after lowering: %v", errs)
	}
}

// A deref chain feeding several consumers must disappear in a single pass:
// the reverse walk rewrites the consumers before it reaches the derefs.
func TestLowerDerefInstrsSharedChainSinglePass(t *testing.T) {
	m := NewModule()
	tt := m.Types
	f := m.NewFunction("main")
	tmp := f.NewLocal("tmp", tt.Array(tt.F32(), 4))
	sink := f.NewLocal("sink", tt.F32())

	b := NewBuilder(f)
	root := b.DerefVar(tmp)
	elem := b.DerefArrayImm(root, 0)
	a := b.LoadDeref(elem)
	c := b.LoadDeref(elem)
	sd := b.DerefVar(sink)
	b.StoreDeref(sd, a, 0x1)
	b.StoreDeref(b.DerefVar(sink), c, 0x1)

	if !LowerDerefInstrs(m, LowerAllDerefs) {
		t.Fatal("no progress reported")
	}
	if n := countDerefs(f); n != 0 {
		t.Fatalf("%d deref instructions survived the first pass", n)
	}
	if LowerDerefInstrs(m, LowerAllDerefs) {
		t.Error("second pass still found work")
	}
}

func TestLowerDerefInstrsCopy(t *testing.T) {
	m := NewModule()
	tt := m.Types
	f := m.NewFunction("main")
	src := f.NewLocal("src", tt.Array(tt.F32(), 3))
	dst := f.NewLocal("dst", tt.Array(tt.F32(), 3))

	b := NewBuilder(f)
	b.CopyDeref(b.DerefWildcard(b.DerefVar(dst)), b.DerefWildcard(b.DerefVar(src)))

	if !LowerDerefInstrs(m, LowerAllDerefs) {
		t.Fatal("no progress reported")
	}
	var copies []*CopyVar
	for in := f.Entry().First(); in != nil; in = in.Next() {
		if op, ok := in.Op.(*CopyVar); ok {
			copies = append(copies, op)
		}
	}
	if len(copies) != 1 {
		t.Fatalf("got %d chain copies", len(copies))
	}
	cp := copies[0]
	if cp.Dst.Var != dst || cp.Src.Var != src {
		t.Error("copy chains root at the wrong variables")
	}
	if cp.Dst.CountWildcards() != 1 || cp.Src.CountWildcards() != 1 {
		t.Error("wildcard links were lost in lowering")
	}
}

func TestLowerDerefInstrsDynamicIndex(t *testing.T) {
	m := NewModule()
	tt := m.Types
	f := m.NewFunction("main")
	tmp := f.NewLocal("tmp", tt.Array(tt.F32(), 4))
	i := m.NewGlobal("i", ModeIn, tt.U32())

	b := NewBuilder(f)
	idx := b.LoadVar(ChainOf(i))
	elem := b.DerefArray(b.DerefVar(tmp), idx)
	b.LoadDeref(elem)

	LowerDerefInstrs(m, LowerAllDerefs)

	var load *LoadVar
	for in := f.Entry().First(); in != nil; in = in.Next() {
		if op, ok := in.Op.(*LoadVar); ok && op.Src.Var == tmp {
			load = op
		}
	}
	if load == nil {
		t.Fatal("lowered load not found")
	}
	if load.Src.Links[0].Index != idx {
		t.Error("dynamic index value was not carried into the chain")
	}
	if idx.Uses() != 1 {
		t.Errorf("dynamic index has %d uses, want 1", idx.Uses())
	}
	if errs := mustValidate(t, m); errs != nil {
		t.Fatalf("module invalid after lowering: %v", errs)
	}
}

func TestLowerDerefInstrsTexAndAtomic(t *testing.T) {
	m := NewModule()
	tt := m.Types
	texVar := m.NewGlobal("albedo", ModeUniform, tt.Image(Dim2D, false))
	smpVar := m.NewGlobal("smp", ModeUniform, tt.Sampler(false))
	ctrVar := m.NewGlobal("hits", ModeUniform, tt.AtomicUint())
	f := m.NewFunction("main")

	b := NewBuilder(f)
	coord := b.Const(tt.Vector(Vec2, ScalarType{Kind: ScalarFloat, Width: 4}), 0, 0)
	tex := b.TexDeref(b.DerefVar(texVar), b.DerefVar(smpVar), coord)
	ctr := b.AtomicCounterDeref(AtomicInc, b.DerefVar(ctrVar))

	if !LowerDerefInstrs(m, LowerAllDerefs) {
		t.Fatal("no progress reported")
	}
	top := tex.Op.(*Tex)
	if top.TextureDeref != nil || top.SamplerDeref != nil {
		t.Error("tex still addresses through deref instructions")
	}
	if top.TextureChain.Var != texVar || top.SamplerChain.Var != smpVar {
		t.Error("tex chains root at the wrong variables")
	}
	cop := ctr.Op.(*AtomicCounter)
	if cop.CounterDeref != nil || cop.CounterChain.Var != ctrVar {
		t.Error("atomic counter was not lowered")
	}
	if n := countDerefs(f); n != 0 {
		t.Fatalf("%d deref instructions left behind", n)
	}
}

func TestLowerDerefInstrsFlagSelectivity(t *testing.T) {
	m := NewModule()
	tt := m.Types
	ctrVar := m.NewGlobal("hits", ModeUniform, tt.AtomicUint())
	f := m.NewFunction("main")
	tmp := f.NewLocal("tmp", tt.F32())

	b := NewBuilder(f)
	b.LoadDeref(b.DerefVar(tmp))
	ctr := b.AtomicCounterDeref(AtomicRead, b.DerefVar(ctrVar))

	if !LowerDerefInstrs(m, LowerAtomicCounterDerefs) {
		t.Fatal("no progress reported")
	}
	if ctr.Op.(*AtomicCounter).CounterDeref != nil {
		t.Error("atomic counter was not lowered")
	}

	// The load keeps its deref form, and the deref it uses stays alive.
	var loads int
	for in := f.Entry().First(); in != nil; in = in.Next() {
		if _, ok := in.Op.(*LoadDeref); ok {
			loads++
		}
	}
	if loads != 1 {
		t.Errorf("got %d deref-form loads, want 1", loads)
	}
	if n := countDerefs(f); n != 1 {
		t.Errorf("%d deref instructions remain, want 1", n)
	}
}
