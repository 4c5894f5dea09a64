package nir

import "strings"

// StorageMode describes where a variable lives. Modes form a bitmask so that
// passes can be asked to operate on a set of modes at once.
type StorageMode uint16

const (
	// ModeGlobal is a module-scope temporary.
	ModeGlobal StorageMode = 1 << iota
	// ModeLocal is a function-scope temporary.
	ModeLocal
	// ModeIn is a shader input.
	ModeIn
	// ModeOut is a shader output.
	ModeOut
	// ModeUniform is read-only data shared by all invocations.
	ModeUniform
	// ModeSystemValue is a value supplied by the system, not by a
	// previous stage.
	ModeSystemValue
)

// SplitModes are the modes the variable splitting passes accept. Only
// temporaries may be split; interface variables have externally visible
// layout.
const SplitModes = ModeGlobal | ModeLocal

func (m StorageMode) String() string {
	if m == 0 {
		return "none"
	}
	names := []struct {
		bit  StorageMode
		name string
	}{
		{ModeGlobal, "global"},
		{ModeLocal, "local"},
		{ModeIn, "in"},
		{ModeOut, "out"},
		{ModeUniform, "uniform"},
		{ModeSystemValue, "system"},
	}
	var parts []string
	for _, n := range names {
		if m&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Metadata tracks which derived per-function information is still valid.
// Passes that change instructions without touching control flow preserve
// block index and dominance; everything else is invalidated.
type Metadata uint8

const (
	MetadataBlockIndex Metadata = 1 << iota
	MetadataDominance

	MetadataNone Metadata = 0
	MetadataAll  Metadata = ^MetadataNone
)

// VarID identifies a variable within its module. IDs are never reused, so
// they are safe as map keys across a whole pass even as variables are
// created and destroyed.
type VarID uint32

// Variable is a declared shader variable. Its type may be an arbitrarily
// nested aggregate; the splitting passes exist to break such variables into
// smaller ones.
type Variable struct {
	ID   VarID
	Name string
	Mode StorageMode
	Type TypeHandle
}

// Module is a complete IR module: a type table, module-scope variables and
// functions. A module is not safe for concurrent mutation.
type Module struct {
	Types     *TypeTable
	Globals   []*Variable
	Functions []*Function

	nextVar VarID
}

// NewModule creates an empty module.
func NewModule() *Module {
	return &Module{Types: NewTypeTable()}
}

func (m *Module) newVariable(name string, mode StorageMode, ty TypeHandle) *Variable {
	v := &Variable{
		ID:   m.nextVar,
		Name: name,
		Mode: mode,
		Type: ty,
	}
	m.nextVar++
	return v
}

// NewGlobal declares a module-scope variable. Function-scope temporaries are
// created with Function.NewLocal instead.
func (m *Module) NewGlobal(name string, mode StorageMode, ty TypeHandle) *Variable {
	assert(mode != ModeLocal, "locals belong to a function, not the module")
	v := m.newVariable(name, mode, ty)
	m.Globals = append(m.Globals, v)
	return v
}

// RemoveGlobal deletes a module-scope variable declaration. The caller is
// responsible for having rewritten every access first.
func (m *Module) RemoveGlobal(v *Variable) {
	for i, g := range m.Globals {
		if g == v {
			m.Globals = append(m.Globals[:i], m.Globals[i+1:]...)
			return
		}
	}
	assertf(false, "variable %q is not a global of this module", v.Name)
}

// NewFunction creates a function with a single empty entry block.
func (m *Module) NewFunction(name string) *Function {
	f := &Function{Name: name, Module: m}
	f.AddBlock()
	m.Functions = append(m.Functions, f)
	return f
}

// PreserveAllMetadata marks every function's metadata as still valid, for
// passes that made no progress.
func (m *Module) PreserveAllMetadata() {
	for _, f := range m.Functions {
		f.ValidMetadata = MetadataAll
	}
}

// Function is a function body: local variables and a list of basic blocks
// executed in order. Control flow constructs beyond the block list are out
// of scope here; the deref passes never introduce or remove blocks.
type Function struct {
	Name   string
	Module *Module
	Locals []*Variable
	Blocks []*Block

	// ValidMetadata records which derived information is current.
	ValidMetadata Metadata

	nextInstrID uint32
}

// NewLocal declares a function-scope temporary.
func (f *Function) NewLocal(name string, ty TypeHandle) *Variable {
	v := f.Module.newVariable(name, ModeLocal, ty)
	f.Locals = append(f.Locals, v)
	return v
}

// RemoveLocal deletes a function-scope variable declaration.
func (f *Function) RemoveLocal(v *Variable) {
	for i, l := range f.Locals {
		if l == v {
			f.Locals = append(f.Locals[:i], f.Locals[i+1:]...)
			return
		}
	}
	assertf(false, "variable %q is not a local of this function", v.Name)
}

// AddBlock appends a new empty block to the function.
func (f *Function) AddBlock() *Block {
	b := &Block{fn: f, Index: uint32(len(f.Blocks))}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Entry returns the function's entry block.
func (f *Function) Entry() *Block {
	assert(len(f.Blocks) > 0, "function has no blocks")
	return f.Blocks[0]
}

// Preserve declares that only the given metadata survived a pass over this
// function; everything else is invalidated.
func (f *Function) Preserve(md Metadata) {
	f.ValidMetadata &= md
}

// IndexBlocks renumbers the blocks in order and marks the block index
// metadata valid.
func (f *Function) IndexBlocks() {
	for i, b := range f.Blocks {
		b.Index = uint32(i)
	}
	f.ValidMetadata |= MetadataBlockIndex
}
