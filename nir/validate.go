package nir

import (
	"fmt"
)

// ValidationError represents a validation error.
type ValidationError struct {
	Message string
	// Optional context
	Function string
	Instr    uint32
	HasInstr bool
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Function != "" {
		if e.HasInstr {
			return fmt.Sprintf("in function %s, instruction %%%d: %s", e.Function, e.Instr, e.Message)
		}
		return fmt.Sprintf("in function %s: %s", e.Function, e.Message)
	}
	return e.Message
}

// Validator validates IR modules.
type Validator struct {
	module *Module
	errors []ValidationError

	// current context
	function *Function
	instr    *Instr

	declared map[VarID]bool
	seen     map[*Instr]bool
	useCount map[*Instr]int
}

// Validate checks the IR module for correctness: declared variables,
// well-typed deref chains and embedded chains, wildcard placement, operand
// ordering, and exact use counts. It returns the violations found, or nil if
// the module is valid.
//
// The rewriting passes assert these invariants piecemeal as they run;
// Validate is the whole-module check used by tests and tools.
func Validate(module *Module) ([]ValidationError, error) {
	if module == nil {
		return nil, fmt.Errorf("module is nil")
	}

	v := &Validator{
		module: module,
		errors: make([]ValidationError, 0),
	}

	v.validateModule()

	if len(v.errors) > 0 {
		return v.errors, nil
	}
	return nil, nil
}

func (v *Validator) errorf(format string, args ...any) {
	e := ValidationError{Message: fmt.Sprintf(format, args...)}
	if v.function != nil {
		e.Function = v.function.Name
	}
	if v.instr != nil {
		e.Instr = v.instr.ID
		e.HasInstr = true
	}
	v.errors = append(v.errors, e)
}

func (v *Validator) validateModule() {
	v.declared = make(map[VarID]bool)
	for _, g := range v.module.Globals {
		v.validateVariable(g, false)
	}
	for _, f := range v.module.Functions {
		v.validateFunction(f)
	}
}

func (v *Validator) validateVariable(vr *Variable, local bool) {
	if _, ok := v.module.Types.Lookup(vr.Type); !ok {
		v.errorf("variable %q has an out-of-range type handle %d", vr.Name, vr.Type)
	}
	if local && vr.Mode != ModeLocal {
		v.errorf("function-scope variable %q has mode %s", vr.Name, vr.Mode)
	}
	if !local && vr.Mode == ModeLocal {
		v.errorf("module-scope variable %q has mode local", vr.Name)
	}
	if v.declared[vr.ID] {
		v.errorf("variable ID %d declared twice", vr.ID)
	}
	v.declared[vr.ID] = true
}

func (v *Validator) validateFunction(f *Function) {
	v.function = f
	defer func() { v.function = nil; v.instr = nil }()

	for _, l := range f.Locals {
		v.validateVariable(l, true)
	}

	// First walk: collect definitions and recount uses.
	v.seen = make(map[*Instr]bool)
	v.useCount = make(map[*Instr]int)
	for _, b := range f.Blocks {
		for in := b.First(); in != nil; in = in.Next() {
			v.seen[in] = true
			in.Operands(func(op *Instr) {
				v.useCount[op]++
			})
		}
	}

	// Second walk: per-instruction checks, in program order so that
	// operands must already have been visited.
	visited := make(map[*Instr]bool)
	for _, b := range f.Blocks {
		for in := b.First(); in != nil; in = in.Next() {
			v.instr = in
			v.validateInstr(in, visited)
			visited[in] = true
		}
	}
	v.instr = nil

	for in := range v.seen {
		if in.Uses() != v.useCount[in] {
			v.instr = in
			v.errorf("use count is %d but %d operand slots reference it", in.Uses(), v.useCount[in])
			v.instr = nil
		}
	}
}

func (v *Validator) validateInstr(in *Instr, visited map[*Instr]bool) {
	in.Operands(func(op *Instr) {
		if !v.seen[op] {
			v.errorf("operand %%%d is not in this function", op.ID)
		} else if !visited[op] {
			v.errorf("operand %%%d does not precede its use", op.ID)
		}
	})

	t := v.module.Types
	switch op := in.Op.(type) {
	case *DerefVar:
		if op.Var == nil {
			v.errorf("deref of nil variable")
			return
		}
		if !v.declared[op.Var.ID] {
			v.errorf("deref of undeclared variable %q", op.Var.Name)
		}
		if in.Type != op.Var.Type {
			v.errorf("variable deref has type %s, variable is %s", t.String(in.Type), t.String(op.Var.Type))
		}

	case *DerefArray:
		v.checkDerefParent(op.Parent)
		if !t.IsArrayOrMatrix(op.Parent.Type) {
			v.errorf("array deref into %s", t.String(op.Parent.Type))
			return
		}
		if in.Type != t.Elem(op.Parent.Type) {
			v.errorf("array deref has type %s, element type is %s", t.String(in.Type), t.String(t.Elem(op.Parent.Type)))
		}
		if !isIndexType(t, op.Index.Type) {
			v.errorf("array index has type %s", t.String(op.Index.Type))
		}

	case *DerefArrayWildcard:
		v.checkDerefParent(op.Parent)
		if !t.IsArrayOrMatrix(op.Parent.Type) {
			v.errorf("wildcard deref into %s", t.String(op.Parent.Type))
			return
		}
		if in.Type != t.Elem(op.Parent.Type) {
			v.errorf("wildcard deref has type %s, element type is %s", t.String(in.Type), t.String(t.Elem(op.Parent.Type)))
		}

	case *DerefStruct:
		v.checkDerefParent(op.Parent)
		if !t.IsStruct(op.Parent.Type) {
			v.errorf("struct deref into %s", t.String(op.Parent.Type))
			return
		}
		if op.Field >= t.Len(op.Parent.Type) {
			v.errorf("struct deref of field %d, struct has %d members", op.Field, t.Len(op.Parent.Type))
			return
		}
		if in.Type != t.Field(op.Parent.Type, op.Field) {
			v.errorf("struct deref has type %s, member type is %s", t.String(in.Type), t.String(t.Field(op.Parent.Type, op.Field)))
		}

	case *LoadConst:
		if n := t.Components(in.Type); n == 0 || int(n) != len(op.Data) {
			v.errorf("constant has %d words for type %s", len(op.Data), t.String(in.Type))
		}

	case *Undef:
		if !t.IsVectorOrScalar(in.Type) {
			v.errorf("undef of aggregate type %s", t.String(in.Type))
		}

	case *LoadDeref:
		v.checkLeafDeref(op.Src)
		if in.Type != op.Src.Type {
			v.errorf("load has type %s, address points at %s", t.String(in.Type), t.String(op.Src.Type))
		}

	case *StoreDeref:
		v.checkLeafDeref(op.Dst)
		if op.Value.Type != op.Dst.Type {
			v.errorf("stored value has type %s, address points at %s", t.String(op.Value.Type), t.String(op.Dst.Type))
		}

	case *CopyDeref:
		if !op.Dst.IsDeref() || !op.Src.IsDeref() {
			v.errorf("copy between non-derefs")
			return
		}
		if op.Dst.Type != op.Src.Type {
			v.errorf("copy between %s and %s", t.String(op.Dst.Type), t.String(op.Src.Type))
		}

	case *LoadVar:
		v.checkChain(op.Src, false)
		if in.Type != op.Src.Type() {
			v.errorf("load has type %s, chain points at %s", t.String(in.Type), t.String(op.Src.Type()))
		}

	case *StoreVar:
		v.checkChain(op.Dst, false)
		if op.Value.Type != op.Dst.Type() {
			v.errorf("stored value has type %s, chain points at %s", t.String(op.Value.Type), t.String(op.Dst.Type()))
		}

	case *CopyVar:
		v.checkChain(op.Dst, true)
		v.checkChain(op.Src, true)
		if op.Dst.Type() != op.Src.Type() {
			v.errorf("copy between %s and %s", t.String(op.Dst.Type()), t.String(op.Src.Type()))
		}
		if op.Dst.CountWildcards() != op.Src.CountWildcards() {
			v.errorf("copy chains have %d and %d wildcards", op.Dst.CountWildcards(), op.Src.CountWildcards())
		}

	case *Tex:
		if op.TextureDeref != nil && op.TextureChain.Var != nil {
			v.errorf("texture has both deref and chain forms")
		}
		if op.TextureChain.Var != nil {
			v.checkChain(op.TextureChain, false)
		}
		if op.SamplerChain.Var != nil {
			v.checkChain(op.SamplerChain, false)
		}

	case *AtomicCounter:
		if op.CounterDeref != nil && op.CounterChain.Var != nil {
			v.errorf("atomic counter has both deref and chain forms")
		}
		if op.CounterChain.Var != nil {
			v.checkChain(op.CounterChain, false)
		}

	case *Call:
		if op.Callee == nil {
			v.errorf("call of nil function")
		}
	}
}

func (v *Validator) checkDerefParent(parent *Instr) {
	if parent == nil || !parent.IsDeref() {
		v.errorf("deref parent is not a deref instruction")
	}
}

// checkLeafDeref checks a load/store address: a deref pointing at a vector
// or scalar with no wildcard anywhere in its chain. Wildcards are legal only
// inside whole-object copies.
func (v *Validator) checkLeafDeref(deref *Instr) {
	if deref == nil || !deref.IsDeref() {
		v.errorf("address is not a deref instruction")
		return
	}
	if !v.module.Types.IsVectorOrScalar(deref.Type) {
		v.errorf("load/store of aggregate type %s", v.module.Types.String(deref.Type))
	}
	for d := deref; d != nil; d = d.DerefParent() {
		if _, ok := d.Op.(*DerefArrayWildcard); ok {
			v.errorf("wildcard deref outside a copy")
			return
		}
	}
}

// checkChain re-derives every link type of an embedded chain and compares it
// against the stored one.
func (v *Validator) checkChain(c Chain, wildcardOK bool) {
	if c.Var == nil {
		v.errorf("instruction carries a zero chain")
		return
	}
	if !v.declared[c.Var.ID] {
		v.errorf("chain roots at undeclared variable %q", c.Var.Name)
	}
	t := v.module.Types
	ty := c.Var.Type
	for i, l := range c.Links {
		switch l.Kind {
		case LinkArray:
			if !t.IsArrayOrMatrix(ty) {
				v.errorf("chain link %d: array link into %s", i, t.String(ty))
				return
			}
			if l.Index == nil && l.Const >= t.Len(ty) {
				v.errorf("chain link %d: constant index %d out of range for %s", i, l.Const, t.String(ty))
			}
			ty = t.Elem(ty)
		case LinkWildcard:
			if !wildcardOK {
				v.errorf("chain link %d: wildcard outside a copy", i)
			}
			if !t.IsArrayOrMatrix(ty) {
				v.errorf("chain link %d: wildcard link into %s", i, t.String(ty))
				return
			}
			ty = t.Elem(ty)
		case LinkField:
			if !t.IsStruct(ty) {
				v.errorf("chain link %d: field link into %s", i, t.String(ty))
				return
			}
			if l.Field >= t.Len(ty) {
				v.errorf("chain link %d: field %d out of range for %s", i, l.Field, t.String(ty))
				return
			}
			ty = t.Field(ty, l.Field)
		}
		if l.Type != ty {
			v.errorf("chain link %d: stored type %s, derived type %s", i, t.String(l.Type), t.String(ty))
		}
	}
}
