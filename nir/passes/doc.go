// Package passes implements the variable rewriting passes over the nir IR.
//
// The passes fall into three groups:
//
//   - Copy lowering (LowerVarCopies): replaces whole-aggregate copies with
//     per-leaf load/store sequences, expanding array wildcards into concrete
//     per-element operations.
//
//   - Variable splitting (SplitStructVars, SplitArrayVars): decomposes
//     aggregate variables into independent smaller variables wherever every
//     use permits it, rewriting all access sites.
//
//   - Dereference maintenance (RemoveDeadDerefs, LowerDerefInstrs from the
//     nir package, re-exported through the pass registry): cleanup and
//     representation conversion that the other passes rely on.
//
// Every pass takes a *nir.Module, mutates it in place, and reports whether
// it made progress, so a driver can alternate passes until a fixed point.
// Pipeline provides such a driver with a named pass registry and optional
// YAML configuration.
//
// All passes are single-threaded, whole-module batch transformations. They
// panic on malformed IR; see the nir package documentation for the invariant
// they maintain.
package passes
