package passes

import "fmt"

// assert panics when cond is false. Pass preconditions and IR invariants are
// defects when violated, not runtime conditions; silently producing wrong
// shader code would be worse than the panic.
func assert(cond bool, msg string) {
	if !cond {
		panic("nir/passes: " + msg)
	}
}

// assertf is assert with a formatted message.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("nir/passes: "+format, args...))
	}
}
