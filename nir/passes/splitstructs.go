package passes

import (
	"strings"

	"github.com/ValveSoftware/steamos-mesa/nir"
)

// structField is one node of the tree mirroring a split variable's type.
// Interior nodes correspond to struct types (possibly wrapped in arrays) and
// have one child per member; leaves own the freshly created replacement
// variable. The tree lives for one pass invocation.
type structField struct {
	ty     nir.TypeHandle
	parent *structField
	fields []*structField
	vari   *nir.Variable
}

type splitStructState struct {
	mod     *nir.Module
	fn      *nir.Function // nil while splitting module-scope variables
	baseVar *nir.Variable
}

// SplitStructVars replaces every variable of the given modes whose type
// contains a struct, directly or through arrays, with one independent
// variable per leaf field, then rewrites every access to address the right
// replacement. After the pass no variable of those modes contains a struct.
//
// Functions must be inlined first; encountering a call is fatal. Aggregate
// copies must already be split to leaf shape (SplitVarCopies), or their
// whole-struct derefs would keep referencing the removed originals.
func SplitStructVars(m *nir.Module, modes nir.StorageMode) bool {
	assert(modes&^nir.SplitModes == 0, "only temporaries can be split")

	fieldMap := make(map[nir.VarID]*structField)

	hasGlobalSplits := false
	if modes&nir.ModeGlobal != 0 {
		hasGlobalSplits = splitVarListStructs(m, nil, fieldMap)
	}

	progress := false
	for _, f := range m.Functions {
		hasLocalSplits := false
		if modes&nir.ModeLocal != 0 {
			hasLocalSplits = splitVarListStructs(m, f, fieldMap)
		}

		if hasGlobalSplits || hasLocalSplits {
			splitStructAccesses(f, fieldMap, modes)
			f.Preserve(nir.MetadataBlockIndex | nir.MetadataDominance)
			progress = true
		}
	}

	if !progress {
		m.PreserveAllMetadata()
	}
	return progress
}

// splitVarListStructs pulls every struct-containing variable off the
// module's or function's variable list and builds its field tree. The
// originals are removed up front so the replacement variables created while
// recursing never mix with the candidates.
func splitVarListStructs(m *nir.Module, f *nir.Function, fieldMap map[nir.VarID]*structField) bool {
	t := m.Types
	vars := &m.Globals
	if f != nil {
		vars = &f.Locals
	}

	var splitVars []*nir.Variable
	kept := (*vars)[:0]
	for _, v := range *vars {
		if t.ContainsStruct(v.Type) {
			splitVars = append(splitVars, v)
		} else {
			kept = append(kept, v)
		}
	}
	*vars = kept

	for _, v := range splitVars {
		state := &splitStructState{mod: m, fn: f, baseVar: v}
		fieldMap[v.ID] = initFieldForType(state, nil, v.Type, v.Name)
	}
	return len(splitVars) > 0
}

// initFieldForType recursively mirrors ty. Struct-containing nodes fan out
// into one child per member; every other node is a leaf and synthesizes its
// replacement variable, with the member type re-wrapped in each enclosing
// array dimension so that splitting foo[4].bar yields one bar[4], not four
// bars.
func initFieldForType(state *splitStructState, parent *structField, ty nir.TypeHandle, name string) *structField {
	t := state.mod.Types
	field := &structField{ty: ty, parent: parent}

	structType := t.WithoutArray(ty)
	if t.IsStruct(structType) {
		n := t.Len(structType)
		field.fields = make([]*structField, n)
		for i := uint32(0); i < n; i++ {
			// The derived name is diagnostic only: the field path
			// joined with ".", with a "[*]" marker per array level
			// crossed.
			fieldName := name + arrayMarkers(t, ty) + "." + t.FieldName(structType, i)
			field.fields[i] = initFieldForType(state, field, t.Field(structType, i), fieldName)
		}
		return field
	}

	varType := ty
	for p := parent; p != nil; p = p.parent {
		varType = t.WrapInArrayOf(varType, p.ty)
	}

	if state.baseVar.Mode == nir.ModeLocal {
		field.vari = state.fn.NewLocal(name, varType)
	} else {
		field.vari = state.mod.NewGlobal(name, state.baseVar.Mode, varType)
	}
	return field
}

func arrayMarkers(t *nir.TypeTable, ty nir.TypeHandle) string {
	n := 0
	for t.IsArray(ty) {
		n++
		ty = t.Elem(ty)
	}
	return strings.Repeat("[*]", n)
}

func splitStructAccesses(f *nir.Function, fieldMap map[nir.VarID]*structField, modes nir.StorageMode) {
	b := nir.NewBuilder(f)
	t := f.Module.Types

	for _, blk := range f.Blocks {
		for in := blk.First(); in != nil; {
			next := in.Next()

			switch in.Op.(type) {
			case *nir.DerefVar, *nir.DerefArray, *nir.DerefArrayWildcard, *nir.DerefStruct:
				rewriteStructDeref(b, f, in, fieldMap, modes)

			case *nir.Call:
				assert(false, "functions must be inlined before struct splitting")

			default:
				in.RewriteChains(func(c nir.Chain) (nir.Chain, bool) {
					return rewriteStructChain(t, c, fieldMap, modes)
				})
			}
			in = next
		}
	}
}

// rewriteStructDeref redirects a leaf deref of a split variable to the
// matching replacement variable. The path is walked root-first: struct links
// select the child field node and emit nothing, since choosing the leaf
// variable pre-applies them; array links are rebuilt as followers.
func rewriteStructDeref(b *nir.Builder, f *nir.Function, deref *nir.Instr, fieldMap map[nir.VarID]*structField, modes nir.StorageMode) {
	// Clean up any dead derefs we find lying around. They may refer to
	// variables we're planning to split.
	if nir.RemoveIfUnused(deref) {
		return
	}

	if !b.Types().IsVectorOrScalar(deref.Type) {
		return
	}

	baseVar := nir.RootVariable(deref)
	if baseVar.Mode&modes == 0 {
		return
	}
	field, ok := fieldMap[baseVar.ID]
	if !ok {
		return
	}

	path := nir.PathOf(deref)
	for _, p := range path.Instrs {
		if sd, isStruct := p.Op.(*nir.DerefStruct); isStruct {
			field = field.fields[sd.Field]
		}
	}
	assert(field.vari != nil, "struct deref path stops at an interior field")

	var newDeref *nir.Instr
	for _, p := range path.Instrs {
		b.SetCursor(nir.After(p))
		switch p.Op.(type) {
		case *nir.DerefVar:
			newDeref = b.DerefVar(field.vari)
		case *nir.DerefArray, *nir.DerefArrayWildcard:
			newDeref = b.DerefFollower(newDeref, p)
		case *nir.DerefStruct:
			// Nothing to do; we're splitting structs.
		}
	}

	assert(newDeref.Type == deref.Type, "rewritten deref changed type")
	f.ReplaceUses(deref, newDeref)
	nir.RemoveIfUnused(deref)
}

// rewriteStructChain is the embedded-chain equivalent of rewriteStructDeref,
// for consumers that carry their addressing directly (LoadVar, Tex, atomic
// counters). Field links descend the field tree and emit nothing, since
// choosing the leaf variable pre-applies them; every other link is re-applied
// onto the leaf in order.
func rewriteStructChain(t *nir.TypeTable, c nir.Chain, fieldMap map[nir.VarID]*structField, modes nir.StorageMode) (nir.Chain, bool) {
	if c.Var.Mode&modes == 0 {
		return nir.Chain{}, false
	}
	field, ok := fieldMap[c.Var.ID]
	if !ok {
		return nir.Chain{}, false
	}

	for _, l := range c.Links {
		if l.Kind == nir.LinkField {
			field = field.fields[l.Field]
		}
	}
	assert(field.vari != nil, "chain into a split variable stops at an interior field")

	nc := nir.ChainOf(field.vari)
	for _, l := range c.Links {
		switch l.Kind {
		case nir.LinkArray:
			if l.Index != nil {
				nc = nc.ArrayDyn(t, l.Index)
			} else {
				nc = nc.Array(t, l.Const)
			}
		case nir.LinkWildcard:
			nc = nc.Wildcard(t)
		case nir.LinkField:
			// Nothing to do; we're splitting structs.
		}
	}

	assert(nc.Type() == c.Type(), "rewritten chain changed type")
	return nc, true
}
