package main

import (
	"sort"

	"github.com/ValveSoftware/steamos-mesa/nir"
)

// The tool has no IR parser; sample modules are built programmatically and
// exist to demonstrate what each pass does to a shader.
var samples = map[string]func() *nir.Module{
	"struct-temp": sampleStructTemp,
	"array-temp":  sampleArrayTemp,
	"mixed-array": sampleMixedArray,
	"array-copy":  sampleArrayCopy,
}

func sampleNames() []string {
	names := make([]string, 0, len(samples))
	for name := range samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sampleStructTemp stages a vertex position and weight through a local
// struct, the pattern struct splitting eliminates.
func sampleStructTemp() *nir.Module {
	m := nir.NewModule()
	t := m.Types
	f32 := t.F32()
	vec3 := t.Vector(nir.Vec3, nir.ScalarType{Kind: nir.ScalarFloat, Width: 4})
	pair := t.Struct("Pair", []nir.StructMember{
		{Name: "pos", Type: vec3},
		{Name: "weight", Type: f32},
	})

	posIn := m.NewGlobal("position", nir.ModeIn, vec3)
	posOut := m.NewGlobal("out_position", nir.ModeOut, vec3)

	f := m.NewFunction("main")
	tmp := f.NewLocal("tmp", pair)
	b := nir.NewBuilder(f)

	base := b.DerefVar(tmp)
	pos := b.DerefStruct(base, 0)
	weight := b.DerefStruct(base, 1)

	in := b.LoadVar(nir.ChainOf(posIn))
	b.StoreDeref(pos, in, 0x7)
	b.StoreDeref(weight, b.ImmF32(1), 0x1)

	out := b.LoadDeref(pos)
	b.StoreVar(nir.ChainOf(posOut), out, 0x7)
	return m
}

// sampleArrayTemp accesses a local array only through constant indices,
// including one provably out-of-bounds pair of accesses.
func sampleArrayTemp() *nir.Module {
	m := nir.NewModule()
	t := m.Types
	f32 := t.F32()
	arr := t.Array(f32, 4)

	out := m.NewGlobal("result", nir.ModeOut, f32)

	f := m.NewFunction("main")
	v := f.NewLocal("v", arr)
	b := nir.NewBuilder(f)

	base := b.DerefVar(v)
	for i := uint32(0); i < 3; i++ {
		b.StoreDeref(b.DerefArrayImm(base, i), b.ImmF32(float32(i)), 0x1)
	}
	// Out of declared bounds; splitting proves these dead.
	b.StoreDeref(b.DerefArrayImm(base, 5), b.ImmF32(9), 0x1)
	oob := b.LoadDeref(b.DerefArrayImm(base, 5))
	_ = oob

	sum := b.LoadDeref(b.DerefArrayImm(base, 1))
	b.StoreVar(nir.ChainOf(out), sum, 0x1)
	return m
}

// sampleMixedArray indexes the outer level of v[4][3] with constants and
// the inner level dynamically, so only the outer level can split.
func sampleMixedArray() *nir.Module {
	m := nir.NewModule()
	t := m.Types
	f32 := t.F32()
	u32 := t.U32()
	inner := t.Array(f32, 3)
	outer := t.Array(inner, 4)

	idxIn := m.NewGlobal("index", nir.ModeIn, u32)
	out := m.NewGlobal("result", nir.ModeOut, f32)

	f := m.NewFunction("main")
	v := f.NewLocal("v", outer)
	b := nir.NewBuilder(f)

	idx := b.LoadVar(nir.ChainOf(idxIn))
	base := b.DerefVar(v)
	row := b.DerefArrayImm(base, 2)
	b.StoreDeref(b.DerefArray(row, idx), b.ImmF32(4), 0x1)

	val := b.LoadDeref(b.DerefArray(b.DerefArrayImm(base, 0), idx))
	b.StoreVar(nir.ChainOf(out), val, 0x1)
	return m
}

// sampleArrayCopy copies one whole array onto another, exercising wildcard
// expansion in copy lowering.
func sampleArrayCopy() *nir.Module {
	m := nir.NewModule()
	t := m.Types
	vec4 := t.Vector(nir.Vec4, nir.ScalarType{Kind: nir.ScalarFloat, Width: 4})
	arr := t.Array(vec4, 3)

	src := m.NewGlobal("palette", nir.ModeUniform, arr)

	f := m.NewFunction("main")
	dst := f.NewLocal("colors", arr)
	b := nir.NewBuilder(f)

	b.CopyDeref(b.DerefVar(dst), b.DerefVar(src))

	first := b.LoadDeref(b.DerefArrayImm(b.DerefVar(dst), 0))
	outVar := m.NewGlobal("color_out", nir.ModeOut, vec4)
	b.StoreVar(nir.ChainOf(outVar), first, 0xf)
	return m
}
