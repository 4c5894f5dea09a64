package passes

import (
	"github.com/ValveSoftware/steamos-mesa/nir"
)

// LowerVarCopies replaces every whole-object copy with an equivalent
// sequence of scalar-granularity loads and stores, expanding wildcard links
// into one operation per element. Both copy forms are handled: CopyVar with
// embedded chains and CopyDeref over deref instructions.
//
// Copies must address vector or scalar leaves once their wildcards are
// expanded; SplitVarCopies turns struct-typed copies into that shape.
func LowerVarCopies(m *nir.Module) bool {
	progress := false
	for _, f := range m.Functions {
		if lowerVarCopiesFunc(f) {
			progress = true
		}
	}
	if !progress {
		m.PreserveAllMetadata()
	}
	return progress
}

func lowerVarCopiesFunc(f *nir.Function) bool {
	progress := false
	b := nir.NewBuilder(f)

	for _, blk := range f.Blocks {
		// New instructions are inserted before the copy, so the saved
		// next pointer stays valid across the rewrite.
		for in := blk.First(); in != nil; {
			next := in.Next()
			switch op := in.Op.(type) {
			case *nir.CopyVar:
				b.SetCursor(nir.Before(in))
				emitCopyLoadStore(b, op.Dst, op.Src)
				blk.Remove(in)
				progress = true

			case *nir.CopyDeref:
				b.SetCursor(nir.Before(in))
				lowerDerefCopy(b, in, op)
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

// emitCopyLoadStore recursively lowers a chain-form copy. Each level of
// recursion finds the next wildcard pair, specializes it to every concrete
// index in turn, and recurses; with no wildcards left the two chains address
// exactly one leaf each and a single load/store pair is emitted.
func emitCopyLoadStore(b *nir.Builder, dst, src nir.Chain) {
	t := b.Types()
	dw := dst.NextWildcard()
	sw := src.NextWildcard()

	if dw < 0 && sw < 0 {
		ty := src.Type()
		assert(dst.Type() == ty, "copy between different types")
		assertf(t.IsVectorOrScalar(ty), "copy of aggregate type %s; run SplitVarCopies first", t.String(ty))
		val := b.LoadVar(src)
		b.StoreVar(dst, val, fullWriteMask(t, ty))
		return
	}

	// Wildcards had better come in matched pairs.
	assert(dw >= 0 && sw >= 0, "wildcard on only one side of a copy")

	length := t.Len(src.TypeBefore(sw))
	// The wildcards should represent the same number of elements.
	assert(length == t.Len(dst.TypeBefore(dw)), "copied arrays have different lengths")
	assert(length > 0, "copy over a zero-length array")

	for i := uint32(0); i < length; i++ {
		emitCopyLoadStore(b, dst.SpecializeWildcard(i), src.SpecializeWildcard(i))
	}
}

// lowerDerefCopy lowers a deref-form copy. Deref instructions are immutable,
// so instead of specializing wildcard links in place the rewrite walks the
// two deref paths root-first, building follower derefs for concrete links
// and fresh per-index derefs at each wildcard pair.
func lowerDerefCopy(b *nir.Builder, copy *nir.Instr, op *nir.CopyDeref) {
	dstPath := nir.PathOf(op.Dst)
	srcPath := nir.PathOf(op.Src)

	emitDerefCopyLoadStore(b,
		dstPath.Root(), dstPath.Instrs[1:],
		srcPath.Root(), srcPath.Instrs[1:])

	copy.Block().Remove(copy)
	nir.RemoveIfUnused(op.Dst)
	nir.RemoveIfUnused(op.Src)
}

func emitDerefCopyLoadStore(b *nir.Builder, dst *nir.Instr, dstRest []*nir.Instr, src *nir.Instr, srcRest []*nir.Instr) {
	t := b.Types()
	dw := nextWildcardLink(dstRest)
	sw := nextWildcardLink(srcRest)

	if dw < 0 && sw < 0 {
		for _, l := range dstRest {
			dst = b.DerefFollower(dst, l)
		}
		for _, l := range srcRest {
			src = b.DerefFollower(src, l)
		}
		assert(dst.Type == src.Type, "copy between different types")
		assertf(t.IsVectorOrScalar(src.Type), "copy of aggregate type %s; run SplitVarCopies first", t.String(src.Type))
		val := b.LoadDeref(src)
		b.StoreDeref(dst, val, fullWriteMask(t, dst.Type))
		return
	}

	assert(dw >= 0 && sw >= 0, "wildcard on only one side of a copy")

	for _, l := range dstRest[:dw] {
		dst = b.DerefFollower(dst, l)
	}
	for _, l := range srcRest[:sw] {
		src = b.DerefFollower(src, l)
	}

	length := t.Len(src.Type)
	assert(length == t.Len(dst.Type), "copied arrays have different lengths")
	assert(length > 0, "copy over a zero-length array")

	for i := uint32(0); i < length; i++ {
		emitDerefCopyLoadStore(b,
			b.DerefArrayImm(dst, i), dstRest[dw+1:],
			b.DerefArrayImm(src, i), srcRest[sw+1:])
	}
}

func nextWildcardLink(rest []*nir.Instr) int {
	for i, in := range rest {
		if _, ok := in.Op.(*nir.DerefArrayWildcard); ok {
			return i
		}
	}
	return -1
}

func fullWriteMask(t *nir.TypeTable, ty nir.TypeHandle) uint32 {
	return (1 << t.Components(ty)) - 1
}
