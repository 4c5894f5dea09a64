package nir

// LowerDerefFlags selects which instruction families LowerDerefInstrs
// converts from deref-instruction addressing to embedded chains.
type LowerDerefFlags uint8

const (
	LowerLoadStoreDerefs LowerDerefFlags = 1 << iota
	LowerTextureDerefs
	LowerAtomicCounterDerefs

	LowerAllDerefs = LowerLoadStoreDerefs | LowerTextureDerefs | LowerAtomicCounterDerefs
)

// LowerDerefInstrs rewrites instructions that address memory through deref
// instructions into their embedded-chain forms: LoadDeref becomes LoadVar,
// StoreDeref becomes StoreVar, CopyDeref becomes CopyVar, and Tex and
// AtomicCounter have their deref sources folded into chains. The deref
// instructions themselves are removed once nothing consumes them.
//
// Instructions are visited in reverse order within each block so that a
// deref's consumers, which appear later in program order, have already been
// rewritten by the time the deref itself is examined. A forward walk could
// see a use count that a later rewrite was about to drop to zero and
// wrongly keep the deref.
func LowerDerefInstrs(m *Module, flags LowerDerefFlags) bool {
	progress := false
	for _, f := range m.Functions {
		if lowerDerefInstrsFunc(f, flags) {
			progress = true
		}
	}
	return progress
}

func lowerDerefInstrsFunc(f *Function, flags LowerDerefFlags) bool {
	progress := false
	b := NewBuilder(f)

	for bi := len(f.Blocks) - 1; bi >= 0; bi-- {
		blk := f.Blocks[bi]
		for in := blk.Last(); in != nil; {
			prev := in.Prev()

			switch op := in.Op.(type) {
			case *DerefVar, *DerefArray, *DerefArrayWildcard, *DerefStruct:
				if in.Uses() == 0 {
					blk.Remove(in)
					progress = true
				}

			case *LoadDeref:
				if flags&LowerLoadStoreDerefs == 0 {
					break
				}
				b.SetCursor(Before(in))
				repl := b.LoadVar(ChainFromDeref(op.Src))
				f.ReplaceUses(in, repl)
				blk.Remove(in)
				progress = true

			case *StoreDeref:
				if flags&LowerLoadStoreDerefs == 0 {
					break
				}
				b.SetCursor(Before(in))
				b.StoreVar(ChainFromDeref(op.Dst), op.Value, op.WriteMask)
				blk.Remove(in)
				progress = true

			case *CopyDeref:
				if flags&LowerLoadStoreDerefs == 0 {
					break
				}
				b.SetCursor(Before(in))
				b.CopyVar(ChainFromDeref(op.Dst), ChainFromDeref(op.Src))
				blk.Remove(in)
				progress = true

			case *Tex:
				if flags&LowerTextureDerefs == 0 {
					break
				}
				if moveDerefToChain(&op.TextureDeref, &op.TextureChain) {
					progress = true
				}
				if moveDerefToChain(&op.SamplerDeref, &op.SamplerChain) {
					progress = true
				}

			case *AtomicCounter:
				if flags&LowerAtomicCounterDerefs == 0 {
					break
				}
				if moveDerefToChain(&op.CounterDeref, &op.CounterChain) {
					progress = true
				}
			}

			in = prev
		}
	}

	if progress {
		f.Preserve(MetadataBlockIndex | MetadataDominance)
	}
	return progress
}

// moveDerefToChain folds a deref-instruction source slot into an embedded
// chain slot, keeping use counts exact. The orphaned deref chain is cleaned
// up by the caller's reverse walk when it reaches it.
func moveDerefToChain(derefSlot **Instr, chainSlot *Chain) bool {
	deref := *derefSlot
	if deref == nil {
		return false
	}
	assert(chainSlot.Var == nil, "instruction has both deref and chain forms")

	c := ChainFromDeref(deref)

	deref.uses--
	assert(deref.uses >= 0, "use count went negative")
	*derefSlot = nil

	*chainSlot = c
	chainSlot.eachIndex(func(slot **Instr) {
		(*slot).uses++
	})
	return true
}
