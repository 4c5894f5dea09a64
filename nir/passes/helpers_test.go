package passes_test

import (
	"testing"

	"github.com/kr/pretty"

	"github.com/ValveSoftware/steamos-mesa/nir"
)

// countOps tallies how many instructions in the function satisfy pred.
func countOps(f *nir.Function, pred func(*nir.Instr) bool) int {
	n := 0
	for _, b := range f.Blocks {
		for in := b.First(); in != nil; in = in.Next() {
			if pred(in) {
				n++
			}
		}
	}
	return n
}

func isOp[T nir.Op](in *nir.Instr) bool {
	_, ok := in.Op.(T)
	return ok
}

// forEachOp calls fn for every instruction whose op is a T.
func forEachOp[T nir.Op](f *nir.Function, fn func(*nir.Instr, T)) {
	for _, b := range f.Blocks {
		for in := b.First(); in != nil; in = in.Next() {
			if op, ok := in.Op.(T); ok {
				fn(in, op)
			}
		}
	}
}

// checkValid fails the test if the module does not validate.
func checkValid(t *testing.T, m *nir.Module) {
	t.Helper()
	errs, err := nir.Validate(m)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(errs) > 0 {
		t.Fatalf("module failed validation:\n%s\n%s", pretty.Sprint(errs), nir.Sprint(m))
	}
}

// localNames returns the function's local variable names in declaration
// order.
func localNames(f *nir.Function) []string {
	names := make([]string, len(f.Locals))
	for i, v := range f.Locals {
		names[i] = v.Name
	}
	return names
}
