// Package nir defines a shader intermediate representation centered on
// structured memory access.
//
// The IR is organized around a Module that contains:
//   - Types: a structurally-deduplicated table of all types in the module
//   - Globals: module-scope variables tagged with a storage mode
//   - Functions: function bodies made of blocks of instructions
//
// # Dereferences
//
// Memory is addressed through dereference expressions: a root variable
// followed by a sequence of array-element, array-wildcard, and struct-field
// selectors. The IR carries dereferences in two forms:
//
//   - Deref instructions (DerefVar, DerefArray, DerefArrayWildcard,
//     DerefStruct), where each selector is its own instruction and consumers
//     like LoadDeref reference the chain's tail. This is the form the
//     rewriting passes operate on.
//
//   - Embedded chains (Chain), where the whole addressing expression is a
//     value carried directly on instructions like LoadVar. LowerDerefInstrs
//     converts the first form into the second.
//
// Both forms maintain the same invariant: the type of every selector equals
// the statically-derived type of applying it to its parent's type. Violating
// it is a programming defect and panics; there is no recovery path, because
// it means an earlier pass produced malformed IR.
//
// # Use accounting
//
// Every instruction tracks how many operand slots reference it, so "does
// anything still consume this deref" is answered in O(1). RemoveIfUnused
// walks a dead chain toward its root and is called after every rewrite, so
// dead addressing instructions never accumulate.
//
// # References
//
// The design follows Mesa's NIR:
//   - https://gitlab.freedesktop.org/mesa/mesa/-/tree/main/src/compiler/nir
package nir
