package passes

import (
	"github.com/ValveSoftware/steamos-mesa/nir"
)

// SplitVarCopies breaks copies of aggregate objects into copies of their
// parts, recursing until every remaining copy addresses a vector or scalar
// leaf: structs fan out into per-member copies, arrays become wildcard
// copies for LowerVarCopies to unroll. After this pass every copy in the
// module is in the shape the splitting and lowering passes expect.
func SplitVarCopies(m *nir.Module) bool {
	progress := false
	for _, f := range m.Functions {
		if splitVarCopiesFunc(f) {
			progress = true
		}
	}
	if !progress {
		m.PreserveAllMetadata()
	}
	return progress
}

func splitVarCopiesFunc(f *nir.Function) bool {
	progress := false
	b := nir.NewBuilder(f)
	t := f.Module.Types

	for _, blk := range f.Blocks {
		for in := blk.First(); in != nil; {
			next := in.Next()
			switch op := in.Op.(type) {
			case *nir.CopyDeref:
				if t.IsVectorOrScalar(op.Src.Type) {
					break
				}
				b.SetCursor(nir.Before(in))
				splitDerefCopy(b, op.Dst, op.Src)
				blk.Remove(in)
				nir.RemoveIfUnused(op.Dst)
				nir.RemoveIfUnused(op.Src)
				progress = true

			case *nir.CopyVar:
				if t.IsVectorOrScalar(op.Src.Type()) {
					break
				}
				b.SetCursor(nir.Before(in))
				splitChainCopy(b, op.Dst, op.Src)
				blk.Remove(in)
				progress = true
			}
			in = next
		}
	}

	if progress {
		f.Preserve(nir.MetadataBlockIndex | nir.MetadataDominance)
	}
	return progress
}

func splitDerefCopy(b *nir.Builder, dst, src *nir.Instr) {
	t := b.Types()
	assert(dst.Type == src.Type, "copy between different types")

	switch {
	case t.IsVectorOrScalar(src.Type):
		b.CopyDeref(dst, src)
	case t.IsStruct(src.Type):
		for i := uint32(0); i < t.Len(src.Type); i++ {
			splitDerefCopy(b, b.DerefStruct(dst, i), b.DerefStruct(src, i))
		}
	default:
		assertf(t.IsArrayOrMatrix(src.Type), "copy of opaque type %s", t.String(src.Type))
		splitDerefCopy(b, b.DerefWildcard(dst), b.DerefWildcard(src))
	}
}

func splitChainCopy(b *nir.Builder, dst, src nir.Chain) {
	t := b.Types()
	assert(dst.Type() == src.Type(), "copy between different types")

	switch {
	case t.IsVectorOrScalar(src.Type()):
		b.CopyVar(dst, src)
	case t.IsStruct(src.Type()):
		for i := uint32(0); i < t.Len(src.Type()); i++ {
			splitChainCopy(b, dst.Field(t, i), src.Field(t, i))
		}
	default:
		assertf(t.IsArrayOrMatrix(src.Type()), "copy of opaque type %s", t.String(src.Type()))
		splitChainCopy(b, dst.Wildcard(t), src.Wildcard(t))
	}
}
