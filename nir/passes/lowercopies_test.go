package passes_test

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/ValveSoftware/steamos-mesa/nir"
	"github.com/ValveSoftware/steamos-mesa/nir/passes"
)

func TestLowerVarCopiesChainForm(t *testing.T) {
	m := nir.NewModule()
	tt := m.Types
	arr := tt.Array(tt.F32(), 3)

	f := m.NewFunction("main")
	dst := f.NewLocal("dst", arr)
	src := f.NewLocal("src", arr)
	b := nir.NewBuilder(f)
	b.CopyVar(nir.ChainOf(dst).Wildcard(tt), nir.ChainOf(src).Wildcard(tt))

	qt.Assert(t, qt.IsTrue(passes.LowerVarCopies(m)))
	qt.Assert(t, qt.Equals(countOps(f, isOp[*nir.CopyVar]), 0))

	// One load/store pair per element, with matching constant indices.
	var pairs int
	forEachOp[*nir.StoreVar](f, func(in *nir.Instr, op *nir.StoreVar) {
		qt.Assert(t, qt.Equals(op.Dst.Var, dst))
		qt.Assert(t, qt.IsTrue(op.Dst.Links[0].IsConst()))
		load := op.Value.Op.(*nir.LoadVar)
		qt.Assert(t, qt.Equals(load.Src.Var, src))
		qt.Assert(t, qt.Equals(load.Src.Links[0].Const, op.Dst.Links[0].Const))
		pairs++
	})
	qt.Assert(t, qt.Equals(pairs, 3))
	checkValid(t, m)
}

func TestLowerVarCopiesDerefForm(t *testing.T) {
	m := nir.NewModule()
	tt := m.Types
	vec4 := tt.Vector(nir.Vec4, nir.ScalarType{Kind: nir.ScalarFloat, Width: 4})
	arr := tt.Array(vec4, 2)

	f := m.NewFunction("main")
	dst := f.NewLocal("dst", arr)
	src := f.NewLocal("src", arr)
	b := nir.NewBuilder(f)
	b.CopyDeref(b.DerefWildcard(b.DerefVar(dst)), b.DerefWildcard(b.DerefVar(src)))

	qt.Assert(t, qt.IsTrue(passes.LowerVarCopies(m)))
	qt.Assert(t, qt.Equals(countOps(f, isOp[*nir.CopyDeref]), 0))
	qt.Assert(t, qt.Equals(countOps(f, isOp[*nir.LoadDeref]), 2))

	forEachOp[*nir.StoreDeref](f, func(in *nir.Instr, op *nir.StoreDeref) {
		qt.Assert(t, qt.Equals(op.WriteMask, uint32(0xf)))
		qt.Assert(t, qt.Equals(nir.RootVariable(op.Dst), dst))
	})

	// The wildcard derefs had no other consumer and must be gone.
	qt.Assert(t, qt.Equals(countOps(f, func(in *nir.Instr) bool {
		return isOp[*nir.DerefArrayWildcard](in)
	}), 0))
	checkValid(t, m)
}

func TestLowerVarCopiesLeafCopy(t *testing.T) {
	m := nir.NewModule()
	tt := m.Types
	vec3 := tt.Vector(nir.Vec3, nir.ScalarType{Kind: nir.ScalarFloat, Width: 4})

	f := m.NewFunction("main")
	dst := f.NewLocal("dst", vec3)
	src := f.NewLocal("src", vec3)
	b := nir.NewBuilder(f)
	b.CopyVar(nir.ChainOf(dst), nir.ChainOf(src))

	qt.Assert(t, qt.IsTrue(passes.LowerVarCopies(m)))

	var stores []*nir.StoreVar
	forEachOp[*nir.StoreVar](f, func(in *nir.Instr, op *nir.StoreVar) {
		stores = append(stores, op)
	})
	qt.Assert(t, qt.HasLen(stores, 1))
	qt.Assert(t, qt.Equals(stores[0].WriteMask, uint32(0x7)))
	checkValid(t, m)
}

func TestLowerVarCopiesNestedWildcards(t *testing.T) {
	m := nir.NewModule()
	tt := m.Types
	grid := tt.Array(tt.Array(tt.F32(), 2), 2)

	f := m.NewFunction("main")
	dst := f.NewLocal("dst", grid)
	src := f.NewLocal("src", grid)
	b := nir.NewBuilder(f)
	b.CopyVar(
		nir.ChainOf(dst).Wildcard(tt).Wildcard(tt),
		nir.ChainOf(src).Wildcard(tt).Wildcard(tt))

	qt.Assert(t, qt.IsTrue(passes.LowerVarCopies(m)))
	qt.Assert(t, qt.Equals(countOps(f, isOp[*nir.StoreVar]), 4))
	checkValid(t, m)
}

func TestLowerVarCopiesLengthMismatchPanics(t *testing.T) {
	m := nir.NewModule()
	tt := m.Types

	f := m.NewFunction("main")
	dst := f.NewLocal("dst", tt.Array(tt.Array(tt.F32(), 2), 3))
	src := f.NewLocal("src", tt.Array(tt.Array(tt.F32(), 4), 2))
	b := nir.NewBuilder(f)
	// Balanced wildcard counts, but over arrays of different lengths.
	b.CopyVar(
		nir.ChainOf(dst).Wildcard(tt).Array(tt, 0),
		nir.ChainOf(src).Array(tt, 1).Wildcard(tt))

	qt.Assert(t, qt.PanicMatches(func() {
		passes.LowerVarCopies(m)
	}, `.*copied arrays have different lengths`))
}

func TestCopyVarUnbalancedWildcardsPanics(t *testing.T) {
	m := nir.NewModule()
	tt := m.Types
	arr := tt.Array(tt.F32(), 2)

	f := m.NewFunction("main")
	dst := f.NewLocal("dst", arr)
	src := f.NewLocal("src", arr)
	b := nir.NewBuilder(f)

	qt.Assert(t, qt.PanicMatches(func() {
		b.CopyVar(nir.ChainOf(dst).Wildcard(tt), nir.ChainOf(src).Array(tt, 0))
	}, `.*unbalanced wildcards`))
}

func TestLowerVarCopiesNoProgress(t *testing.T) {
	m := nir.NewModule()
	tt := m.Types

	f := m.NewFunction("main")
	v := f.NewLocal("v", tt.F32())
	b := nir.NewBuilder(f)
	b.LoadVar(nir.ChainOf(v))

	qt.Assert(t, qt.IsFalse(passes.LowerVarCopies(m)))
}
