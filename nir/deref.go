package nir

// Path is a deref instruction chain unrolled root-first: Instrs[0] is the
// DerefVar and Instrs[len-1] is the deref the path was built from. Paths are
// cheap to rebuild; they are scratch state for a single rewrite, not part of
// the IR.
type Path struct {
	Instrs []*Instr
}

// PathOf materializes the path from the root variable deref down to deref.
func PathOf(deref *Instr) Path {
	assert(deref.IsDeref(), "path of non-deref instruction")

	n := 0
	for d := deref; d != nil; d = d.DerefParent() {
		n++
	}
	instrs := make([]*Instr, n)
	for d := deref; d != nil; d = d.DerefParent() {
		n--
		instrs[n] = d
	}
	assert(n == 0, "path length changed underfoot")

	_, ok := instrs[0].Op.(*DerefVar)
	assert(ok, "deref path does not start at a variable")
	return Path{Instrs: instrs}
}

// Root returns the path's DerefVar instruction.
func (p Path) Root() *Instr { return p.Instrs[0] }

// Tail returns the deref the path was built from.
func (p Path) Tail() *Instr { return p.Instrs[len(p.Instrs)-1] }

// Variable returns the variable at the root of the path.
func (p Path) Variable() *Variable {
	return p.Instrs[0].Op.(*DerefVar).Var
}

// RootVariable walks a deref instruction chain to the variable at its root.
func RootVariable(deref *Instr) *Variable {
	assert(deref.IsDeref(), "root variable of non-deref instruction")
	for {
		parent := deref.DerefParent()
		if parent == nil {
			return deref.Op.(*DerefVar).Var
		}
		deref = parent
	}
}

// RemoveIfUnused removes deref and then each of its ancestors that no
// longer has any use, walking toward the root and stopping at the first
// deref something still consumes. It reports whether anything was removed.
//
// Every rewrite that redirects a use away from a deref calls this so that
// dead addressing instructions never accumulate.
func RemoveIfUnused(deref *Instr) bool {
	assert(deref.IsDeref(), "RemoveIfUnused on non-deref instruction")

	progress := false
	for d := deref; d != nil && d.IsDeref(); {
		if d.Uses() > 0 || d.Block() == nil {
			break
		}
		parent := d.DerefParent()
		d.Block().Remove(d)
		progress = true
		d = parent
	}
	return progress
}

// RemoveDeadDerefs prunes every deref instruction in the module that has no
// remaining consumer, including chains that became dead in the middle. It
// reports whether anything was removed.
func RemoveDeadDerefs(m *Module) bool {
	progress := false
	for _, f := range m.Functions {
		if removeDeadDerefsFunc(f) {
			progress = true
		}
	}
	return progress
}

func removeDeadDerefsFunc(f *Function) bool {
	progress := false
	for _, b := range f.Blocks {
		// RemoveIfUnused also removes ancestors, but those always
		// precede the current instruction, so the saved next pointer
		// stays valid.
		for in := b.First(); in != nil; {
			next := in.Next()
			if in.IsDeref() && RemoveIfUnused(in) {
				progress = true
			}
			in = next
		}
	}
	if progress {
		f.Preserve(MetadataBlockIndex | MetadataDominance)
	}
	return progress
}

// DerefCompare is the result of comparing two deref instructions. The zero
// value means the two derefs cannot alias.
type DerefCompare uint8

const (
	DerefsEqualBit DerefCompare = 1 << iota
	DerefsMayAliasBit
	DerefsAContainsBBit
	DerefsBContainsABit

	DerefsDoNotAlias DerefCompare = 0
)

// CompareDerefs relates the storage two derefs address: distinct, equal,
// overlapping, or one a sub-object of the other. Dynamic indices compare
// conservatively; two different index values may still alias.
func CompareDerefs(a, b *Instr) DerefCompare {
	return ComparePaths(PathOf(a), PathOf(b))
}

// ComparePaths is CompareDerefs on already-materialized paths.
func ComparePaths(a, b Path) DerefCompare {
	if a.Variable() != b.Variable() {
		return DerefsDoNotAlias
	}

	// Equality falls out of mutual containment at the end.
	result := DerefsMayAliasBit | DerefsAContainsBBit | DerefsBContainsABit

	ap := a.Instrs[1:]
	bp := b.Instrs[1:]
	for len(ap) > 0 && len(bp) > 0 {
		aTail := ap[0]
		bTail := bp[0]
		ap = ap[1:]
		bp = bp[1:]

		switch aOp := aTail.Op.(type) {
		case *DerefArray, *DerefArrayWildcard:
			aWild := aTail.isWildcard()
			bWild := bTail.isWildcard()
			if !bWild {
				_, isArr := bTail.Op.(*DerefArray)
				assert(isArr, "comparing array deref against non-array link")
			}

			switch {
			case aWild && !bWild:
				result &^= DerefsBContainsABit
			case bWild && !aWild:
				result &^= DerefsAContainsBBit
			case !aWild && !bWild:
				aIdx := aTail.Op.(*DerefArray).Index
				bIdx := bTail.Op.(*DerefArray).Index
				aConst, aOk := aIdx.AsConstUint()
				bConst, bOk := bIdx.AsConstUint()
				if aOk && bOk {
					// Two different constants address disjoint
					// elements, so nothing at all is shared.
					if aConst != bConst {
						return DerefsDoNotAlias
					}
				} else if aIdx != bIdx {
					// Distinct dynamic indices may or may not
					// coincide; nothing can be said about
					// containment.
					result &^= DerefsAContainsBBit | DerefsBContainsABit
				}
			}

		case *DerefStruct:
			bOp, ok := bTail.Op.(*DerefStruct)
			assert(ok, "comparing struct deref against non-struct link")
			if aOp.Field != bOp.Field {
				return DerefsDoNotAlias
			}

		default:
			panic("nir: variable deref inside a path tail")
		}
	}

	// A longer path addresses a sub-object, which cannot contain the
	// shorter one.
	if len(ap) > 0 {
		result &^= DerefsAContainsBBit
	}
	if len(bp) > 0 {
		result &^= DerefsBContainsABit
	}

	if result&DerefsAContainsBBit != 0 && result&DerefsBContainsABit != 0 {
		result |= DerefsEqualBit
	}
	return result
}

func (in *Instr) isWildcard() bool {
	_, ok := in.Op.(*DerefArrayWildcard)
	return ok
}

// ChainFromDeref flattens a deref instruction chain into an embedded chain
// value. Constant indices become constant links; dynamic index values are
// referenced as is.
func ChainFromDeref(deref *Instr) Chain {
	path := PathOf(deref)
	c := ChainOf(path.Variable())
	for _, in := range path.Instrs[1:] {
		switch op := in.Op.(type) {
		case *DerefArray:
			if idx, ok := op.Index.AsConstUint(); ok {
				c = c.extend(Link{Kind: LinkArray, Const: uint32(idx), Type: in.Type})
			} else {
				c = c.extend(Link{Kind: LinkArray, Index: op.Index, Type: in.Type})
			}
		case *DerefArrayWildcard:
			c = c.extend(Link{Kind: LinkWildcard, Type: in.Type})
		case *DerefStruct:
			c = c.extend(Link{Kind: LinkField, Field: op.Field, Type: in.Type})
		default:
			panic("nir: variable deref inside a path tail")
		}
	}
	return c
}
