package nir

import (
	"strings"
	"testing"

	"github.com/kr/pretty"
)

func validFixture(t *testing.T) *Module {
	t.Helper()
	m := NewModule()
	tt := m.Types
	out := m.NewGlobal("result", ModeOut, tt.F32())
	f := m.NewFunction("main")
	tmp := f.NewLocal("tmp", tt.Array(tt.F32(), 4))

	b := NewBuilder(f)
	root := b.DerefVar(tmp)
	elem := b.DerefArrayImm(root, 2)
	ld := b.LoadDeref(elem)
	b.StoreVar(ChainOf(out), ld, 0x1)
	return m
}

func mustValidate(t *testing.T, m *Module) []ValidationError {
	t.Helper()
	errs, err := Validate(m)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return errs
}

func expectViolation(t *testing.T, m *Module, substr string) {
	t.Helper()
	errs := mustValidate(t, m)
	for _, e := range errs {
		if strings.Contains(e.Message, substr) {
			return
		}
	}
	t.Fatalf("no violation containing %q in:\n%s", substr, pretty.Sprint(errs))
}

func TestValidateAcceptsWellFormedModule(t *testing.T) {
	m := validFixture(t)
	if errs := mustValidate(t, m); errs != nil {
		t.Fatalf("valid module rejected:\n%s", pretty.Sprint(errs))
	}
}

func TestValidateNilModule(t *testing.T) {
	if _, err := Validate(nil); err == nil {
		t.Fatal("nil module accepted")
	}
}

func TestValidateUndeclaredVariable(t *testing.T) {
	m := validFixture(t)
	g := m.Globals[0]

	// Orphan the global; the StoreVar chain still roots at it.
	m.RemoveGlobal(g)
	expectViolation(t, m, "undeclared variable")
}

func TestValidateOperandOrdering(t *testing.T) {
	m := NewModule()
	f := m.NewFunction("main")
	v := f.NewLocal("v", m.Types.F32())

	b := NewBuilder(f)
	root := b.DerefVar(v)
	b.SetCursor(AtStart(f.Entry()))
	b.LoadDeref(root)
	expectViolation(t, m, "does not precede its use")
}

func TestValidateWildcardOutsideCopy(t *testing.T) {
	m := NewModule()
	f := m.NewFunction("main")
	v := f.NewLocal("v", m.Types.Array(m.Types.F32(), 4))

	b := NewBuilder(f)
	wild := b.DerefWildcard(b.DerefVar(v))
	b.LoadDeref(wild)
	expectViolation(t, m, "wildcard deref outside a copy")
}

func TestValidateUseCountMismatch(t *testing.T) {
	m := NewModule()
	f := m.NewFunction("main")
	v := f.NewLocal("v", m.Types.F32())

	b := NewBuilder(f)
	root := b.DerefVar(v)
	ld := b.LoadDeref(root)
	st := b.StoreVar(ChainOf(f.NewLocal("w", m.Types.F32())), ld, 0x1)

	// Rewrite the operand slot behind the accounting's back.
	other := b.LoadDeref(root)
	st.Op.(*StoreVar).Value = other
	expectViolation(t, m, "use count")
}

func TestValidateChainTypeMismatch(t *testing.T) {
	m := NewModule()
	tt := m.Types
	f := m.NewFunction("main")
	v := f.NewLocal("v", tt.Array(tt.F32(), 4))

	b := NewBuilder(f)
	ld := b.LoadVar(ChainOf(v).Array(tt, 1))

	// Corrupt the stored link type.
	ld.Op.(*LoadVar).Src.Links[0].Type = tt.U32()
	ld.Type = tt.U32()
	expectViolation(t, m, "stored type")
}

func TestValidateConstIndexOutOfRange(t *testing.T) {
	m := NewModule()
	tt := m.Types
	f := m.NewFunction("main")
	v := f.NewLocal("v", tt.Array(tt.F32(), 4))

	b := NewBuilder(f)
	// The chain builder does not range-check; the validator does.
	b.LoadVar(ChainOf(v).Array(tt, 9))
	expectViolation(t, m, "out of range")
}

func TestValidateModeMismatch(t *testing.T) {
	m := NewModule()
	f := m.NewFunction("main")
	v := f.NewLocal("v", m.Types.F32())
	v.Mode = ModeUniform
	expectViolation(t, m, "has mode")
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Message: "boom", Function: "main", Instr: 7, HasInstr: true}
	if got := e.Error(); got != "in function main, instruction %7: boom" {
		t.Errorf("Error() = %q", got)
	}
	plain := ValidationError{Message: "boom"}
	if plain.Error() != "boom" {
		t.Errorf("Error() = %q", plain.Error())
	}
}
