package passes_test

import (
	"testing"

	"github.com/ValveSoftware/steamos-mesa/nir"
	"github.com/ValveSoftware/steamos-mesa/nir/passes"
)

// benchModule builds a module with n struct-array temporaries, each filled
// element by element, bulk-copied, and read back. Every pass in the default
// pipeline has work to do on it.
func benchModule(n int) *nir.Module {
	m := nir.NewModule()
	tt := m.Types
	pair := pairType(tt)
	arr := tt.Array(pair, 4)
	out := m.NewGlobal("result", nir.ModeOut, tt.F32())

	f := m.NewFunction("main")
	b := nir.NewBuilder(f)
	for i := 0; i < n; i++ {
		src := f.NewLocal("src", arr)
		dst := f.NewLocal("dst", arr)

		base := b.DerefVar(src)
		for j := uint32(0); j < 4; j++ {
			elem := b.DerefArrayImm(base, j)
			b.StoreDeref(b.DerefStruct(elem, 1), b.ImmF32(float32(j)), 0x1)
		}
		b.CopyDeref(b.DerefVar(dst), b.DerefVar(src))
		got := b.LoadDeref(b.DerefStruct(b.DerefArrayImm(b.DerefVar(dst), 2), 1))
		b.StoreVar(nir.ChainOf(out), got, 0x1)
	}
	return m
}

func BenchmarkDefaultPipeline(b *testing.B) {
	p, err := passes.NewPipeline(passes.DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		m := benchModule(16)
		b.StartTimer()
		p.Run(m)
	}
}

func BenchmarkLowerVarCopies(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		m := benchModule(16)
		passes.SplitVarCopies(m)
		b.StartTimer()
		passes.LowerVarCopies(m)
	}
}

func BenchmarkSplitStructVars(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		m := benchModule(16)
		passes.SplitVarCopies(m)
		b.StartTimer()
		passes.SplitStructVars(m, nir.SplitModes)
	}
}
