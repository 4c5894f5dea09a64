package nir

// Op is the operation payload of an instruction. Implementations are
// pointers to the op structs below; the set is closed.
type Op interface {
	isOp()
}

// DerefVar starts a dereference chain at a variable.
type DerefVar struct {
	Var *Variable
}

// DerefArray selects one element of an array or matrix. Index is any
// integer-typed value; whether it is compile-time constant is queried with
// Instr.AsConstUint on the index.
type DerefArray struct {
	Parent *Instr
	Index  *Instr
}

// DerefArrayWildcard selects every element of an array or matrix at once.
// Wildcards are only meaningful below copies and below the copy-splitting
// passes that produce them.
type DerefArrayWildcard struct {
	Parent *Instr
}

// DerefStruct selects a single member of a struct.
type DerefStruct struct {
	Parent *Instr
	Field  uint32
}

// LoadConst materializes a compile-time constant. Data holds one raw word
// per component; the instruction's type gives the shape.
type LoadConst struct {
	Data []uint64
}

// Undef produces a value that is fixed but unspecified. Reading it is not
// an error; every use observes the same bits.
type Undef struct{}

// LoadDeref loads the value addressed by a deref instruction. The address
// must point at a vector or scalar.
type LoadDeref struct {
	Src *Instr
}

// StoreDeref stores Value to the address given by a deref instruction.
// WriteMask has one bit per component.
type StoreDeref struct {
	Dst       *Instr
	Value     *Instr
	WriteMask uint32
}

// CopyDeref copies the whole object at Src to Dst. Both are deref
// instructions of the same type. This is the only instruction in which
// wildcard derefs may appear.
type CopyDeref struct {
	Dst *Instr
	Src *Instr
}

// LoadVar is the embedded-chain form of a load: the address is carried as a
// chain value on the instruction itself rather than as a deref instruction.
type LoadVar struct {
	Src Chain
}

// StoreVar is the embedded-chain form of a store.
type StoreVar struct {
	Dst       Chain
	Value     *Instr
	WriteMask uint32
}

// CopyVar is the embedded-chain form of a whole-object copy. Wildcards may
// appear in its chains, in matched pairs.
type CopyVar struct {
	Dst Chain
	Src Chain
}

// Tex samples a texture. The texture and sampler are addressed either by
// deref instructions or by embedded chains; exactly one form is in use at a
// time, and LowerDerefInstrs converts the former into the latter.
type Tex struct {
	TextureDeref *Instr
	SamplerDeref *Instr
	TextureChain Chain
	SamplerChain Chain
	Coord        *Instr
}

// AtomicCounterOp selects the operation an AtomicCounter performs.
type AtomicCounterOp uint8

const (
	AtomicInc AtomicCounterOp = iota
	AtomicDec
	AtomicRead
)

// AtomicCounter operates on an atomic counter variable, addressed either by
// a deref instruction or by an embedded chain.
type AtomicCounter struct {
	Op           AtomicCounterOp
	CounterDeref *Instr
	CounterChain Chain
}

// Call invokes another function. Arguments may include deref instructions,
// which is why the deref lowering passes require calls to have been inlined
// away first.
type Call struct {
	Callee *Function
	Args   []*Instr
}

func (*DerefVar) isOp()           {}
func (*DerefArray) isOp()         {}
func (*DerefArrayWildcard) isOp() {}
func (*DerefStruct) isOp()        {}
func (*LoadConst) isOp()          {}
func (*Undef) isOp()              {}
func (*LoadDeref) isOp()          {}
func (*StoreDeref) isOp()         {}
func (*CopyDeref) isOp()          {}
func (*LoadVar) isOp()            {}
func (*StoreVar) isOp()           {}
func (*CopyVar) isOp()            {}
func (*Tex) isOp()                {}
func (*AtomicCounter) isOp()      {}
func (*Call) isOp()               {}

// Instr is a single instruction. Instructions live on exactly one block's
// list at a time and reference other instructions in the same function as
// operands.
//
// Every instruction tracks how many operand slots in the function reference
// it. The count is maintained by the block insertion and removal primitives
// and by Function.ReplaceUses; passes only ever read it.
type Instr struct {
	// Op is the operation payload.
	Op Op
	// Type is the result type. For a deref it is the type of the memory
	// being pointed at, not a pointer type. Instructions that produce no
	// value use TypeVoid.
	Type TypeHandle
	// ID is a function-unique number assigned at insertion, used only
	// for printing. IDs are never reused.
	ID uint32

	uses  int
	block *Block
	prev  *Instr
	next  *Instr
}

// Uses returns the number of operand slots currently referencing the
// instruction.
func (in *Instr) Uses() int { return in.uses }

// Block returns the block the instruction is in, or nil if it has been
// removed.
func (in *Instr) Block() *Block { return in.block }

// Next returns the following instruction in the block, or nil at the end.
func (in *Instr) Next() *Instr { return in.next }

// Prev returns the preceding instruction in the block, or nil at the start.
func (in *Instr) Prev() *Instr { return in.prev }

// IsDeref reports whether the instruction is any of the four deref ops.
func (in *Instr) IsDeref() bool {
	switch in.Op.(type) {
	case *DerefVar, *DerefArray, *DerefArrayWildcard, *DerefStruct:
		return true
	}
	return false
}

// DerefParent returns the parent deref of a non-root deref instruction and
// nil for a DerefVar. It panics if the instruction is not a deref.
func (in *Instr) DerefParent() *Instr {
	switch op := in.Op.(type) {
	case *DerefVar:
		return nil
	case *DerefArray:
		return op.Parent
	case *DerefArrayWildcard:
		return op.Parent
	case *DerefStruct:
		return op.Parent
	}
	panic("nir: DerefParent on non-deref instruction")
}

// AsConstUint returns the value of a single-component LoadConst and reports
// whether the instruction was one. It is how passes ask "is this array
// index compile-time constant?".
func (in *Instr) AsConstUint() (uint64, bool) {
	lc, ok := in.Op.(*LoadConst)
	if !ok || len(lc.Data) != 1 {
		return 0, false
	}
	return lc.Data[0], true
}

// eachOperand visits every operand slot of the instruction, including the
// dynamic index slots inside embedded chains. Callers may rewrite the slot
// through the pointer; use accounting is theirs to maintain.
func (in *Instr) eachOperand(fn func(slot **Instr)) {
	switch op := in.Op.(type) {
	case *DerefVar, *LoadConst, *Undef:
	case *DerefArray:
		fn(&op.Parent)
		fn(&op.Index)
	case *DerefArrayWildcard:
		fn(&op.Parent)
	case *DerefStruct:
		fn(&op.Parent)
	case *LoadDeref:
		fn(&op.Src)
	case *StoreDeref:
		fn(&op.Dst)
		fn(&op.Value)
	case *CopyDeref:
		fn(&op.Dst)
		fn(&op.Src)
	case *LoadVar:
		op.Src.eachIndex(fn)
	case *StoreVar:
		op.Dst.eachIndex(fn)
		fn(&op.Value)
	case *CopyVar:
		op.Dst.eachIndex(fn)
		op.Src.eachIndex(fn)
	case *Tex:
		if op.TextureDeref != nil {
			fn(&op.TextureDeref)
		}
		if op.SamplerDeref != nil {
			fn(&op.SamplerDeref)
		}
		op.TextureChain.eachIndex(fn)
		op.SamplerChain.eachIndex(fn)
		if op.Coord != nil {
			fn(&op.Coord)
		}
	case *AtomicCounter:
		if op.CounterDeref != nil {
			fn(&op.CounterDeref)
		}
		op.CounterChain.eachIndex(fn)
	case *Call:
		for i := range op.Args {
			fn(&op.Args[i])
		}
	default:
		panic("nir: unknown op")
	}
}

// Operands calls fn for every instruction the operation references,
// including dynamic index values inside embedded chains. It is the read-only
// companion of the internal operand walker; passes use it to find escaping
// references to a variable's derefs.
func (in *Instr) Operands(fn func(op *Instr)) {
	in.eachOperand(func(slot **Instr) {
		if *slot != nil {
			fn(*slot)
		}
	})
}

// Chains calls fn for every embedded chain the instruction carries. Zero
// chains (Var == nil) are skipped.
func (in *Instr) Chains(fn func(c Chain)) {
	visit := func(c Chain) {
		if c.Var != nil {
			fn(c)
		}
	}
	switch op := in.Op.(type) {
	case *LoadVar:
		visit(op.Src)
	case *StoreVar:
		visit(op.Dst)
	case *CopyVar:
		visit(op.Dst)
		visit(op.Src)
	case *Tex:
		visit(op.TextureChain)
		visit(op.SamplerChain)
	case *AtomicCounter:
		visit(op.CounterChain)
	}
}

func (in *Instr) retainOperands() {
	in.eachOperand(func(slot **Instr) {
		if *slot != nil {
			(*slot).uses++
		}
	})
}

func (in *Instr) releaseOperands() {
	in.eachOperand(func(slot **Instr) {
		if *slot != nil {
			(*slot).uses--
			assert((*slot).uses >= 0, "use count went negative")
		}
	})
}

// Block is a straight-line sequence of instructions, stored as an intrusive
// doubly-linked list so that passes can insert and remove while iterating.
type Block struct {
	Index uint32

	fn    *Function
	first *Instr
	last  *Instr
	count int
}

// Function returns the function the block belongs to.
func (b *Block) Function() *Function { return b.fn }

// First returns the first instruction in the block, or nil when empty.
func (b *Block) First() *Instr { return b.first }

// Last returns the last instruction in the block, or nil when empty.
func (b *Block) Last() *Instr { return b.last }

// Len returns the number of instructions in the block.
func (b *Block) Len() int { return b.count }

func (b *Block) insertBefore(pos, in *Instr) {
	assert(in.block == nil, "instruction is already in a block")
	assert(pos == nil || pos.block == b, "position is not in this block")

	in.block = b
	in.ID = b.fn.nextInstrID
	b.fn.nextInstrID++
	b.count++

	if pos == nil { // append
		in.prev = b.last
		in.next = nil
		if b.last != nil {
			b.last.next = in
		} else {
			b.first = in
		}
		b.last = in
	} else {
		in.prev = pos.prev
		in.next = pos
		if pos.prev != nil {
			pos.prev.next = in
		} else {
			b.first = in
		}
		pos.prev = in
	}

	in.retainOperands()
}

// Remove unlinks an instruction from the block and releases its operands.
// The instruction must itself be unused; removing a value something still
// references would leave dangling operands.
func (b *Block) Remove(in *Instr) {
	assert(in.block == b, "instruction is not in this block")
	assertf(in.uses == 0, "removing instruction %%%d with %d remaining uses", in.ID, in.uses)

	in.releaseOperands()

	if in.prev != nil {
		in.prev.next = in.next
	} else {
		b.first = in.next
	}
	if in.next != nil {
		in.next.prev = in.prev
	} else {
		b.last = in.prev
	}
	in.prev = nil
	in.next = nil
	in.block = nil
	b.count--
}

// Cursor is an insertion point inside a block. A cursor points before a
// specific instruction, or at the end of a block when before is nil.
// Removing the instruction a cursor points before invalidates the cursor.
type Cursor struct {
	block  *Block
	before *Instr
}

// Before returns a cursor that inserts immediately before in.
func Before(in *Instr) Cursor {
	assert(in.block != nil, "cursor into removed instruction")
	return Cursor{block: in.block, before: in}
}

// After returns a cursor that inserts immediately after in.
func After(in *Instr) Cursor {
	assert(in.block != nil, "cursor into removed instruction")
	return Cursor{block: in.block, before: in.next}
}

// AtStart returns a cursor at the beginning of a block.
func AtStart(b *Block) Cursor {
	return Cursor{block: b, before: b.first}
}

// AtEnd returns a cursor at the end of a block.
func AtEnd(b *Block) Cursor {
	return Cursor{block: b}
}

// Block returns the block the cursor points into.
func (c Cursor) Block() *Block { return c.block }

func (c Cursor) insert(in *Instr) {
	assert(c.block != nil, "insert through zero cursor")
	c.block.insertBefore(c.before, in)
}

// RewriteChains offers each embedded chain of the instruction to fn and
// installs the replacement chain when fn reports one. Use accounting for
// dynamic index operands is maintained; the replacement is cloned so the
// caller's chain value stays independent. It reports whether any chain was
// replaced. Instructions without embedded chains are untouched.
func (in *Instr) RewriteChains(fn func(Chain) (Chain, bool)) bool {
	assert(in.block != nil, "chain rewrite on removed instruction")
	changed := false
	apply := func(c *Chain) {
		if c.Var == nil {
			return
		}
		replacement, ok := fn(*c)
		if !ok {
			return
		}
		c.eachIndex(func(slot **Instr) {
			(*slot).uses--
			assert((*slot).uses >= 0, "use count went negative")
		})
		*c = replacement.Clone()
		c.eachIndex(func(slot **Instr) {
			(*slot).uses++
		})
		changed = true
	}

	switch op := in.Op.(type) {
	case *LoadVar:
		apply(&op.Src)
	case *StoreVar:
		apply(&op.Dst)
	case *CopyVar:
		apply(&op.Dst)
		apply(&op.Src)
	case *Tex:
		apply(&op.TextureChain)
		apply(&op.SamplerChain)
	case *AtomicCounter:
		apply(&op.CounterChain)
	}
	return changed
}

// ReplaceUses rewrites every operand slot in the function that references
// old to reference new instead. Uses are found by scanning; the function is
// the unit of rewriting for every pass here, so the scan cost is already
// being paid by the caller.
func (f *Function) ReplaceUses(old, new *Instr) {
	if old == new {
		return
	}
	for _, b := range f.Blocks {
		for in := b.First(); in != nil; in = in.Next() {
			in.eachOperand(func(slot **Instr) {
				if *slot == old {
					*slot = new
					old.uses--
					new.uses++
				}
			})
		}
	}
	assertf(old.uses == 0, "instruction %%%d still used outside this function", old.ID)
}
