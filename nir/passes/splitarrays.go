package passes

import (
	"fmt"

	"github.com/ValveSoftware/steamos-mesa/nir"
)

// arrayLevelInfo records the split decision for one array level of a
// candidate variable. A level starts split-eligible and is downgraded the
// first time any access indexes it dynamically.
type arrayLevelInfo struct {
	len   uint32
	split bool
}

// arrayVarInfo is the per-candidate scratch state of SplitArrayVars. It
// moves through Unanalyzed -> Marked -> Split; candidates with no eligible
// level are dropped from the map instead, which is the Unsplit terminal
// state.
type arrayVarInfo struct {
	base      *nir.Variable
	levels    []arrayLevelInfo
	splitType nir.TypeHandle
	root      arraySplit
}

// arraySplit is one node of a candidate's replacement tree: a fan-out of one
// child per index at a split level, or a leaf owning the replacement
// variable once every remaining level is kept.
type arraySplit struct {
	splits []*arraySplit
	vari   *nir.Variable
}

// SplitArrayVars splits array-of-vector variables level by level: every
// array level that is only ever indexed by compile-time constants becomes a
// fan-out of independent variables, while a level with any dynamic index
// stays a real array. Struct-containing variables are not candidates; run
// SplitStructVars first.
//
// The pass is two-phase: a marking sweep observes every access in the whole
// module before any decision is final, then the eligible variables are
// decomposed and every copy and load/store site is rewritten. Accesses with
// a provably out-of-bounds constant index are dead: loads are replaced with
// an undefined value, stores and copies are deleted.
func SplitArrayVars(m *nir.Module, modes nir.StorageMode) bool {
	assert(modes&^nir.SplitModes == 0, "only temporaries can be split")

	infoMap := make(map[nir.VarID]*arrayVarInfo)
	if modes&nir.ModeGlobal != 0 {
		initArrayVarInfos(m, m.Globals, modes, infoMap)
	}
	for _, f := range m.Functions {
		if modes&nir.ModeLocal != 0 {
			initArrayVarInfos(m, f.Locals, modes, infoMap)
		}
	}
	if len(infoMap) == 0 {
		m.PreserveAllMetadata()
		return false
	}

	// The marking sweep must complete over every function before any
	// level's split decision is read; one dynamic index anywhere
	// downgrades that level for the whole variable.
	for _, f := range m.Functions {
		markArrayUsage(f, infoMap, modes)
	}

	anySplits := false
	if modes&nir.ModeGlobal != 0 && splitVarListArrays(m, nil, infoMap) {
		anySplits = true
	}
	for _, f := range m.Functions {
		if modes&nir.ModeLocal != 0 && splitVarListArrays(m, f, infoMap) {
			anySplits = true
		}
	}
	if !anySplits {
		m.PreserveAllMetadata()
		return false
	}

	for _, f := range m.Functions {
		splitArrayCopies(f, infoMap, modes)
		splitArrayAccesses(f, infoMap, modes)
		f.Preserve(nir.MetadataBlockIndex | nir.MetadataDominance)
	}
	return true
}

// initArrayVarInfos registers every array-of-vector variable of the given
// modes in vars as a candidate with all of its levels split-eligible.
func initArrayVarInfos(m *nir.Module, vars []*nir.Variable, modes nir.StorageMode, infoMap map[nir.VarID]*arrayVarInfo) {
	t := m.Types
	for _, v := range vars {
		if v.Mode&modes == 0 {
			continue
		}
		var levels []arrayLevelInfo
		ty := v.Type
		for t.IsArrayOrMatrix(ty) {
			levels = append(levels, arrayLevelInfo{len: t.Len(ty), split: true})
			ty = t.Elem(ty)
		}
		if len(levels) == 0 || !t.IsVectorOrScalar(ty) {
			continue
		}
		infoMap[v.ID] = &arrayVarInfo{base: v, levels: levels}
	}
}

func arrayDerefInfo(deref *nir.Instr, infoMap map[nir.VarID]*arrayVarInfo, modes nir.StorageMode) *arrayVarInfo {
	root := nir.RootVariable(deref)
	if root.Mode&modes == 0 {
		return nil
	}
	return infoMap[root.ID]
}

func markArrayUsage(f *nir.Function, infoMap map[nir.VarID]*arrayVarInfo, modes nir.StorageMode) {
	for _, blk := range f.Blocks {
		for in := blk.First(); in != nil; in = in.Next() {
			switch op := in.Op.(type) {
			case *nir.DerefVar, *nir.DerefArray, *nir.DerefArrayWildcard, *nir.DerefStruct:
				// A deref constrains nothing by itself; its
				// consumers decide.

			case *nir.LoadDeref:
				markArrayDerefUsage(op.Src, infoMap, modes, false)
			case *nir.StoreDeref:
				markArrayDerefUsage(op.Dst, infoMap, modes, false)
			case *nir.CopyDeref:
				markArrayDerefUsage(op.Dst, infoMap, modes, true)
				markArrayDerefUsage(op.Src, infoMap, modes, true)

			default:
				// Any other reference to a candidate means its
				// elements cannot be tracked; disqualify it.
				in.Operands(func(o *nir.Instr) {
					if o.IsDeref() {
						disqualifyArrayVar(nir.RootVariable(o), infoMap)
					}
				})
				in.Chains(func(c nir.Chain) {
					disqualifyArrayVar(c.Var, infoMap)
				})
			}
		}
	}
}

func disqualifyArrayVar(v *nir.Variable, infoMap map[nir.VarID]*arrayVarInfo) {
	if info := infoMap[v.ID]; info != nil {
		for i := range info.levels {
			info.levels[i].split = false
		}
	}
}

func markArrayDerefUsage(deref *nir.Instr, infoMap map[nir.VarID]*arrayVarInfo, modes nir.StorageMode, inCopy bool) {
	info := arrayDerefInfo(deref, infoMap, modes)
	if info == nil {
		return
	}
	path := nir.PathOf(deref)
	level := 0
	for _, p := range path.Instrs[1:] {
		assert(level < len(info.levels), "deref path deeper than the variable's array levels")
		switch op := p.Op.(type) {
		case *nir.DerefArray:
			if _, isConst := op.Index.AsConstUint(); !isConst {
				info.levels[level].split = false
			}
		case *nir.DerefArrayWildcard:
			assert(inCopy, "wildcard deref outside a copy")
		default:
			assert(false, "struct link on an array-of-vector variable")
		}
		level++
	}
}

// splitVarListArrays decides each candidate's fate. Variables with at least
// one eligible level get a replacement tree and leave the variable list;
// the rest are dropped from further consideration.
func splitVarListArrays(m *nir.Module, f *nir.Function, infoMap map[nir.VarID]*arrayVarInfo) bool {
	t := m.Types
	vars := &m.Globals
	if f != nil {
		vars = &f.Locals
	}

	var splitVars []*arrayVarInfo
	kept := (*vars)[:0]
	for _, v := range *vars {
		info := infoMap[v.ID]
		if info == nil {
			kept = append(kept, v)
			continue
		}

		hasSplit := false
		splitType := v.Type
		for range info.levels {
			splitType = t.Elem(splitType)
		}
		for i := len(info.levels) - 1; i >= 0; i-- {
			if info.levels[i].split {
				hasSplit = true
				continue
			}
			// A kept level folds back into the leaf type. The
			// innermost level of a matrix variable stays a matrix
			// rather than becoming an array of columns.
			if i == len(info.levels)-1 && t.IsMatrix(t.WithoutArray(v.Type)) {
				col := t.Inner(splitType).(nir.VectorType)
				splitType = t.Matrix(nir.VectorSize(info.levels[i].len), col.Size, col.Scalar)
			} else {
				splitType = t.Array(splitType, info.levels[i].len)
			}
		}

		if !hasSplit {
			delete(infoMap, v.ID)
			kept = append(kept, v)
			continue
		}

		info.splitType = splitType
		splitVars = append(splitVars, info)
	}
	*vars = kept

	for _, info := range splitVars {
		createSplitArrayVars(m, f, info, 0, &info.root, info.base.Name)
	}
	return len(splitVars) > 0
}

func createSplitArrayVars(m *nir.Module, f *nir.Function, info *arrayVarInfo, level int, split *arraySplit, name string) {
	for level < len(info.levels) && !info.levels[level].split {
		name += "[*]"
		level++
	}

	if level == len(info.levels) {
		// Parenthesize so later derefs print as "(foo[2][*])[3]".
		name = "(" + name + ")"
		if info.base.Mode == nir.ModeLocal {
			split.vari = f.NewLocal(name, info.splitType)
		} else {
			split.vari = m.NewGlobal(name, info.base.Mode, info.splitType)
		}
		return
	}

	split.splits = make([]*arraySplit, info.levels[level].len)
	for i := range split.splits {
		split.splits[i] = &arraySplit{}
		createSplitArrayVars(m, f, info, level+1, split.splits[i], fmt.Sprintf("%s[%d]", name, i))
	}
}

// splitArrayCopies rewrites copy instructions that touch a split variable on
// either side. Wildcards that coincide with a split level fan out into
// per-index copies; wildcards over kept levels stay wildcards.
func splitArrayCopies(f *nir.Function, infoMap map[nir.VarID]*arrayVarInfo, modes nir.StorageMode) {
	b := nir.NewBuilder(f)

	for _, blk := range f.Blocks {
		for in := blk.First(); in != nil; {
			next := in.Next()
			if op, ok := in.Op.(*nir.CopyDeref); ok {
				dstInfo := arrayDerefInfo(op.Dst, infoMap, modes)
				srcInfo := arrayDerefInfo(op.Src, infoMap, modes)
				if dstInfo != nil || srcInfo != nil {
					b.SetCursor(nir.Before(in))
					dstPath := nir.PathOf(op.Dst)
					srcPath := nir.PathOf(op.Src)
					emitSplitCopies(b,
						dstInfo, dstPath, 0, dstPath.Root(),
						srcInfo, srcPath, 0, srcPath.Root())
					blk.Remove(in)
					nir.RemoveIfUnused(op.Dst)
					nir.RemoveIfUnused(op.Src)
				}
			}
			in = next
		}
	}
}

func emitSplitCopies(b *nir.Builder,
	dstInfo *arrayVarInfo, dstPath nir.Path, dstLevel int, dst *nir.Instr,
	srcInfo *arrayVarInfo, srcPath nir.Path, srcLevel int, src *nir.Instr) {

	t := b.Types()

	// Walk forward through concrete links on both sides; they only
	// narrow the copy to a sub-region.
	var dstWild, srcWild *nir.Instr
	for dstLevel+1 < len(dstPath.Instrs) {
		p := dstPath.Instrs[dstLevel+1]
		if _, ok := p.Op.(*nir.DerefArrayWildcard); ok {
			dstWild = p
			break
		}
		dst = b.DerefFollower(dst, p)
		dstLevel++
	}
	for srcLevel+1 < len(srcPath.Instrs) {
		p := srcPath.Instrs[srcLevel+1]
		if _, ok := p.Op.(*nir.DerefArrayWildcard); ok {
			srcWild = p
			break
		}
		src = b.DerefFollower(src, p)
		srcLevel++
	}

	if dstWild == nil || srcWild == nil {
		assert(dstWild == nil && srcWild == nil, "wildcard on only one side of a copy")
		b.CopyDeref(dst, src)
		return
	}

	if (dstInfo != nil && dstInfo.levels[dstLevel].split) ||
		(srcInfo != nil && srcInfo.levels[srcLevel].split) {
		// At least one side splits this level, so the wildcard must
		// be expanded into per-index copies.
		length := t.Len(dst.Type)
		assert(length == t.Len(src.Type), "copied arrays have different lengths")
		for i := uint32(0); i < length; i++ {
			emitSplitCopies(b,
				dstInfo, dstPath, dstLevel+1, b.DerefArrayImm(dst, i),
				srcInfo, srcPath, srcLevel+1, b.DerefArrayImm(src, i))
		}
	} else {
		// Neither side is being split so we just keep going.
		emitSplitCopies(b,
			dstInfo, dstPath, dstLevel+1, b.DerefWildcard(dst),
			srcInfo, srcPath, srcLevel+1, b.DerefWildcard(src))
	}
}

// splitArrayAccesses redirects every load, store, and copy deref of a split
// variable to the replacement tree's leaf variable, dropping the split
// levels' links and keeping only the kept levels'. Provably out-of-bounds
// accesses are dead and removed here.
func splitArrayAccesses(f *nir.Function, infoMap map[nir.VarID]*arrayVarInfo, modes nir.StorageMode) {
	b := nir.NewBuilder(f)

	for _, blk := range f.Blocks {
		for in := blk.First(); in != nil; {
			next := in.Next()

			if in.IsDeref() {
				// Clean up dead derefs; they may reference the
				// variables being replaced.
				nir.RemoveIfUnused(in)
				in = next
				continue
			}

			var derefs []*nir.Instr
			switch op := in.Op.(type) {
			case *nir.LoadDeref:
				derefs = []*nir.Instr{op.Src}
			case *nir.StoreDeref:
				derefs = []*nir.Instr{op.Dst}
			case *nir.CopyDeref:
				derefs = []*nir.Instr{op.Dst, op.Src}
			default:
				in = next
				continue
			}

			for _, deref := range derefs {
				if rewriteArrayAccess(b, f, blk, in, deref, infoMap, modes) {
					// The instruction itself was deleted;
					// the remaining derefs are dead.
					for _, d := range derefs {
						nir.RemoveIfUnused(d)
					}
					break
				}
			}
			in = next
		}
	}
}

// rewriteArrayAccess rewrites one deref operand of in. It reports whether it
// deleted the instruction outright because the access was out of bounds.
func rewriteArrayAccess(b *nir.Builder, f *nir.Function, blk *nir.Block, in, deref *nir.Instr, infoMap map[nir.VarID]*arrayVarInfo, modes nir.StorageMode) bool {
	info := arrayDerefInfo(deref, infoMap, modes)
	if info == nil {
		return false
	}

	path := nir.PathOf(deref)
	assert(len(path.Instrs)-1 == len(info.levels), "access does not reach the variable's leaf type")
	b.SetCursor(nir.Before(in))

	for i := range info.levels {
		ad, ok := path.Instrs[i+1].Op.(*nir.DerefArray)
		if !ok {
			continue // wildcard, never out of bounds
		}
		idx, isConst := ad.Index.AsConstUint()
		if !isConst || idx < uint64(info.levels[i].len) {
			continue
		}

		// The access is provably dead. A load's result becomes an
		// undefined value; a store or copy is dropped outright. The
		// instruction's current deref operands are cleaned up, not just
		// deref: a copy's other side may already have been rewritten to
		// a replacement deref that only this instruction used.
		if _, isLoad := in.Op.(*nir.LoadDeref); isLoad {
			f.ReplaceUses(in, b.Undef(in.Type))
		}
		var ops []*nir.Instr
		in.Operands(func(o *nir.Instr) {
			if o.IsDeref() {
				ops = append(ops, o)
			}
		})
		blk.Remove(in)
		for _, o := range ops {
			nir.RemoveIfUnused(o)
		}
		return true
	}

	split := &info.root
	for i := range info.levels {
		if !info.levels[i].split {
			continue
		}
		ad, ok := path.Instrs[i+1].Op.(*nir.DerefArray)
		assert(ok, "wildcard left at a split level")
		idx, isConst := ad.Index.AsConstUint()
		assert(isConst, "dynamic index at a split level")
		split = split.splits[idx]
	}
	assert(split.vari != nil, "split tree walk stopped at an interior node")

	newDeref := b.DerefVar(split.vari)
	for i := range info.levels {
		if !info.levels[i].split {
			newDeref = b.DerefFollower(newDeref, path.Instrs[i+1])
		}
	}

	assert(newDeref.Type == deref.Type, "rewritten deref changed type")
	f.ReplaceUses(deref, newDeref)
	nir.RemoveIfUnused(deref)
	return false
}
