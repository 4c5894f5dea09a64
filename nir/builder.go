package nir

import "math"

// Builder emits instructions at a cursor. All construction goes through a
// builder so that every instruction enters a block with its result type
// computed and its operands' use counts maintained.
type Builder struct {
	fn     *Function
	types  *TypeTable
	cursor Cursor
}

// NewBuilder creates a builder positioned at the end of the function's
// entry block.
func NewBuilder(fn *Function) *Builder {
	return &Builder{
		fn:     fn,
		types:  fn.Module.Types,
		cursor: AtEnd(fn.Entry()),
	}
}

// Function returns the function being built into.
func (b *Builder) Function() *Function { return b.fn }

// Types returns the module's type table.
func (b *Builder) Types() *TypeTable { return b.types }

// SetCursor repositions the builder.
func (b *Builder) SetCursor(c Cursor) {
	assert(c.block != nil && c.block.fn == b.fn, "cursor into a different function")
	b.cursor = c
}

func (b *Builder) emit(op Op, ty TypeHandle) *Instr {
	in := &Instr{Op: op, Type: ty}
	b.cursor.insert(in)
	return in
}

// Const emits a constant with an explicit type and raw component words.
func (b *Builder) Const(ty TypeHandle, words ...uint64) *Instr {
	n := b.types.Components(ty)
	assertf(n != 0, "constant of non-numeric type %s", b.types.String(ty))
	assertf(int(n) == len(words), "constant has %d words for %d components", len(words), n)
	return b.emit(&LoadConst{Data: words}, ty)
}

// ImmU32 emits a u32 constant, the canonical array index type.
func (b *Builder) ImmU32(v uint32) *Instr {
	return b.Const(b.types.U32(), uint64(v))
}

// ImmF32 emits an f32 constant.
func (b *Builder) ImmF32(v float32) *Instr {
	return b.Const(b.types.F32(), uint64(math.Float32bits(v)))
}

// Undef emits an undefined value of the given vector or scalar type. The
// value is fixed but unspecified; it is what out-of-bounds loads become.
func (b *Builder) Undef(ty TypeHandle) *Instr {
	assertf(b.types.IsVectorOrScalar(ty), "undef of aggregate type %s", b.types.String(ty))
	return b.emit(&Undef{}, ty)
}

// DerefVar emits the root deref of a variable.
func (b *Builder) DerefVar(v *Variable) *Instr {
	assert(v != nil, "deref of nil variable")
	return b.emit(&DerefVar{Var: v}, v.Type)
}

// DerefArray emits an array deref selecting parent[index].
func (b *Builder) DerefArray(parent, index *Instr) *Instr {
	assert(parent.IsDeref(), "array deref of non-deref parent")
	assertf(b.types.IsArrayOrMatrix(parent.Type), "array deref into %s", b.types.String(parent.Type))
	assert(index != nil && isIndexType(b.types, index.Type), "array index must be an integer scalar")
	return b.emit(&DerefArray{Parent: parent, Index: index}, b.types.Elem(parent.Type))
}

// DerefArrayImm emits an array deref with a constant index, materializing
// the index as a LoadConst.
func (b *Builder) DerefArrayImm(parent *Instr, index uint32) *Instr {
	return b.DerefArray(parent, b.ImmU32(index))
}

// DerefWildcard emits a wildcard deref selecting every element of parent.
func (b *Builder) DerefWildcard(parent *Instr) *Instr {
	assert(parent.IsDeref(), "wildcard deref of non-deref parent")
	assertf(b.types.IsArrayOrMatrix(parent.Type), "wildcard deref into %s", b.types.String(parent.Type))
	return b.emit(&DerefArrayWildcard{Parent: parent}, b.types.Elem(parent.Type))
}

// DerefStruct emits a struct member deref.
func (b *Builder) DerefStruct(parent *Instr, field uint32) *Instr {
	assert(parent.IsDeref(), "struct deref of non-deref parent")
	assertf(b.types.IsStruct(parent.Type), "struct deref into %s", b.types.String(parent.Type))
	return b.emit(&DerefStruct{Parent: parent, Field: field}, b.types.Field(parent.Type, field))
}

// DerefFollower emits a deref that steps from parent the same way leader
// steps from its own parent. It is how a rewrite walks an old deref path
// while building a new one rooted somewhere else. If leader already steps
// from parent it is returned as is.
func (b *Builder) DerefFollower(parent, leader *Instr) *Instr {
	if leader.DerefParent() == parent {
		return leader
	}
	leaderParent := leader.DerefParent()
	assert(leaderParent != nil, "a variable deref cannot have a leader")

	switch op := leader.Op.(type) {
	case *DerefArray:
		assertf(b.types.IsArrayOrMatrix(parent.Type), "following array deref into %s", b.types.String(parent.Type))
		assert(b.types.Len(parent.Type) == b.types.Len(leaderParent.Type),
			"follower and leader arrays have different lengths")
		return b.DerefArray(parent, op.Index)
	case *DerefArrayWildcard:
		assertf(b.types.IsArrayOrMatrix(parent.Type), "following wildcard deref into %s", b.types.String(parent.Type))
		assert(b.types.Len(parent.Type) == b.types.Len(leaderParent.Type),
			"follower and leader arrays have different lengths")
		return b.DerefWildcard(parent)
	case *DerefStruct:
		assertf(b.types.IsStruct(parent.Type), "following struct deref into %s", b.types.String(parent.Type))
		assert(b.types.Len(parent.Type) == b.types.Len(leaderParent.Type),
			"follower and leader structs have different member counts")
		return b.DerefStruct(parent, op.Field)
	}
	panic("nir: invalid deref follower leader")
}

// LoadDeref emits a load through a deref instruction.
func (b *Builder) LoadDeref(src *Instr) *Instr {
	assert(src.IsDeref(), "load through non-deref")
	assertf(b.types.IsVectorOrScalar(src.Type), "load of aggregate type %s", b.types.String(src.Type))
	return b.emit(&LoadDeref{Src: src}, src.Type)
}

// StoreDeref emits a store through a deref instruction.
func (b *Builder) StoreDeref(dst, value *Instr, writeMask uint32) *Instr {
	assert(dst.IsDeref(), "store through non-deref")
	assertf(b.types.IsVectorOrScalar(dst.Type), "store of aggregate type %s", b.types.String(dst.Type))
	assert(value != nil && value.Type == dst.Type, "stored value type does not match destination")
	return b.emit(&StoreDeref{Dst: dst, Value: value, WriteMask: writeMask}, TypeVoid)
}

// CopyDeref emits a whole-object copy between two deref instructions.
func (b *Builder) CopyDeref(dst, src *Instr) *Instr {
	assert(dst.IsDeref() && src.IsDeref(), "copy between non-derefs")
	assert(dst.Type == src.Type, "copy between different types")
	return b.emit(&CopyDeref{Dst: dst, Src: src}, TypeVoid)
}

// LoadVar emits a load through an embedded chain.
func (b *Builder) LoadVar(src Chain) *Instr {
	assertf(b.types.IsVectorOrScalar(src.Type()), "load of aggregate type %s", b.types.String(src.Type()))
	assert(src.NextWildcard() < 0, "load through wildcard chain")
	return b.emit(&LoadVar{Src: src.Clone()}, src.Type())
}

// StoreVar emits a store through an embedded chain.
func (b *Builder) StoreVar(dst Chain, value *Instr, writeMask uint32) *Instr {
	assertf(b.types.IsVectorOrScalar(dst.Type()), "store of aggregate type %s", b.types.String(dst.Type()))
	assert(dst.NextWildcard() < 0, "store through wildcard chain")
	assert(value != nil && value.Type == dst.Type(), "stored value type does not match destination")
	return b.emit(&StoreVar{Dst: dst.Clone(), Value: value, WriteMask: writeMask}, TypeVoid)
}

// CopyVar emits a whole-object copy between two embedded chains. Wildcards
// must come in matched pairs across the two chains.
func (b *Builder) CopyVar(dst, src Chain) *Instr {
	assert(dst.Type() == src.Type(), "copy between different types")
	assert(dst.CountWildcards() == src.CountWildcards(), "copy chains have unbalanced wildcards")
	return b.emit(&CopyVar{Dst: dst.Clone(), Src: src.Clone()}, TypeVoid)
}

// TexDeref emits a texture sample addressing its texture and sampler
// through deref instructions. sampler may be nil.
func (b *Builder) TexDeref(texture, sampler, coord *Instr) *Instr {
	assert(texture != nil && texture.IsDeref(), "texture must be a deref")
	assertIsImage(b.types, texture.Type)
	if sampler != nil {
		assert(sampler.IsDeref(), "sampler must be a deref")
		assertIsSampler(b.types, sampler.Type)
	}
	op := &Tex{TextureDeref: texture, SamplerDeref: sampler, Coord: coord}
	return b.emit(op, b.texResultType())
}

// TexVar emits a texture sample addressing its texture and sampler through
// embedded chains. sampler may be a zero Chain.
func (b *Builder) TexVar(texture, sampler Chain, coord *Instr) *Instr {
	assertIsImage(b.types, texture.Type())
	if sampler.Var != nil {
		assertIsSampler(b.types, sampler.Type())
	}
	op := &Tex{TextureChain: texture.Clone(), SamplerChain: sampler.Clone(), Coord: coord}
	return b.emit(op, b.texResultType())
}

func (b *Builder) texResultType() TypeHandle {
	return b.types.Vector(Vec4, ScalarType{Kind: ScalarFloat, Width: 4})
}

// AtomicCounterDeref emits an atomic counter operation addressing the
// counter through a deref instruction.
func (b *Builder) AtomicCounterDeref(op AtomicCounterOp, counter *Instr) *Instr {
	assert(counter != nil && counter.IsDeref(), "atomic counter must be a deref")
	assertIsAtomic(b.types, counter.Type)
	return b.emit(&AtomicCounter{Op: op, CounterDeref: counter}, b.types.U32())
}

// AtomicCounterVar emits an atomic counter operation addressing the counter
// through an embedded chain.
func (b *Builder) AtomicCounterVar(op AtomicCounterOp, counter Chain) *Instr {
	assertIsAtomic(b.types, counter.Type())
	return b.emit(&AtomicCounter{Op: op, CounterChain: counter.Clone()}, b.types.U32())
}

// Call emits a call. The deref passes require calls to be inlined before
// they run, so in practice this only appears in inputs that are about to be
// rejected.
func (b *Builder) Call(callee *Function, args ...*Instr) *Instr {
	assert(callee != nil, "call of nil function")
	return b.emit(&Call{Callee: callee, Args: args}, TypeVoid)
}

func isIndexType(t *TypeTable, ty TypeHandle) bool {
	s, ok := t.Inner(ty).(ScalarType)
	return ok && (s.Kind == ScalarUint || s.Kind == ScalarSint)
}

func assertIsImage(t *TypeTable, ty TypeHandle) {
	_, ok := t.Inner(ty).(ImageType)
	assertf(ok, "texture source has type %s", t.String(ty))
}

func assertIsSampler(t *TypeTable, ty TypeHandle) {
	_, ok := t.Inner(ty).(SamplerType)
	assertf(ok, "sampler source has type %s", t.String(ty))
}

func assertIsAtomic(t *TypeTable, ty TypeHandle) {
	_, ok := t.Inner(ty).(AtomicUintType)
	assertf(ok, "atomic counter has type %s", t.String(ty))
}
