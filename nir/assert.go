package nir

import "fmt"

// assert panics when cond is false. The rewriting passes lean on asserts for
// conditions that can only arise from malformed IR; a failed assert is a bug
// in the IR producer or in a pass, not a recoverable error.
func assert(cond bool, msg string) {
	if !cond {
		panic("nir: " + msg)
	}
}

// assertf is assert with a formatted message.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("nir: "+format, args...))
	}
}
