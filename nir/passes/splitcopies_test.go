package passes_test

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/ValveSoftware/steamos-mesa/nir"
	"github.com/ValveSoftware/steamos-mesa/nir/passes"
)

func pairType(tt *nir.TypeTable) nir.TypeHandle {
	vec3 := tt.Vector(nir.Vec3, nir.ScalarType{Kind: nir.ScalarFloat, Width: 4})
	return tt.Struct("Pair", []nir.StructMember{
		{Name: "pos", Type: vec3},
		{Name: "weight", Type: tt.F32()},
	})
}

func TestSplitVarCopiesStruct(t *testing.T) {
	m := nir.NewModule()
	pair := pairType(m.Types)

	f := m.NewFunction("main")
	dst := f.NewLocal("dst", pair)
	src := f.NewLocal("src", pair)
	b := nir.NewBuilder(f)
	b.CopyDeref(b.DerefVar(dst), b.DerefVar(src))

	qt.Assert(t, qt.IsTrue(passes.SplitVarCopies(m)))

	// One copy per member, each addressing a vector or scalar leaf.
	var leafTypes []string
	forEachOp[*nir.CopyDeref](f, func(in *nir.Instr, op *nir.CopyDeref) {
		qt.Assert(t, qt.IsTrue(m.Types.IsVectorOrScalar(op.Src.Type)))
		leafTypes = append(leafTypes, m.Types.String(op.Src.Type))
	})
	qt.Assert(t, qt.DeepEquals(leafTypes, []string{"vec3<f32>", "f32"}))
	checkValid(t, m)
}

func TestSplitVarCopiesArrayBecomesWildcard(t *testing.T) {
	m := nir.NewModule()
	tt := m.Types
	arr := tt.Array(tt.F32(), 3)

	f := m.NewFunction("main")
	dst := f.NewLocal("dst", arr)
	src := f.NewLocal("src", arr)
	b := nir.NewBuilder(f)
	b.CopyDeref(b.DerefVar(dst), b.DerefVar(src))

	qt.Assert(t, qt.IsTrue(passes.SplitVarCopies(m)))

	var copies []*nir.CopyDeref
	forEachOp[*nir.CopyDeref](f, func(in *nir.Instr, op *nir.CopyDeref) {
		copies = append(copies, op)
	})
	qt.Assert(t, qt.HasLen(copies, 1))
	qt.Assert(t, qt.IsTrue(isOp[*nir.DerefArrayWildcard](copies[0].Dst)))
	qt.Assert(t, qt.IsTrue(isOp[*nir.DerefArrayWildcard](copies[0].Src)))
	checkValid(t, m)

	// The wildcard copy is exactly what copy lowering unrolls.
	qt.Assert(t, qt.IsTrue(passes.LowerVarCopies(m)))
	qt.Assert(t, qt.Equals(countOps(f, isOp[*nir.StoreDeref]), 3))
	checkValid(t, m)
}

func TestSplitVarCopiesStructOfArray(t *testing.T) {
	m := nir.NewModule()
	tt := m.Types
	mixed := tt.Struct("Mixed", []nir.StructMember{
		{Name: "taps", Type: tt.Array(tt.F32(), 2)},
		{Name: "scale", Type: tt.Vector(nir.Vec2, nir.ScalarType{Kind: nir.ScalarFloat, Width: 4})},
	})

	f := m.NewFunction("main")
	dst := f.NewLocal("dst", mixed)
	src := f.NewLocal("src", mixed)
	b := nir.NewBuilder(f)
	b.CopyVar(nir.ChainOf(dst), nir.ChainOf(src))

	qt.Assert(t, qt.IsTrue(passes.SplitVarCopies(m)))

	var wildcards, leaves int
	forEachOp[*nir.CopyVar](f, func(in *nir.Instr, op *nir.CopyVar) {
		qt.Assert(t, qt.IsTrue(m.Types.IsVectorOrScalar(op.Src.Type())))
		if op.Src.CountWildcards() > 0 {
			wildcards++
		} else {
			leaves++
		}
	})
	qt.Assert(t, qt.Equals(wildcards, 1))
	qt.Assert(t, qt.Equals(leaves, 1))
	checkValid(t, m)

	qt.Assert(t, qt.IsTrue(passes.LowerVarCopies(m)))
	qt.Assert(t, qt.Equals(countOps(f, isOp[*nir.StoreVar]), 3))
	checkValid(t, m)
}

func TestSplitVarCopiesLeafUntouched(t *testing.T) {
	m := nir.NewModule()
	tt := m.Types
	vec4 := tt.Vector(nir.Vec4, nir.ScalarType{Kind: nir.ScalarFloat, Width: 4})

	f := m.NewFunction("main")
	dst := f.NewLocal("dst", vec4)
	src := f.NewLocal("src", vec4)
	b := nir.NewBuilder(f)
	b.CopyVar(nir.ChainOf(dst), nir.ChainOf(src))

	qt.Assert(t, qt.IsFalse(passes.SplitVarCopies(m)))
	qt.Assert(t, qt.Equals(countOps(f, isOp[*nir.CopyVar]), 1))
}
