package nir

import (
	"fmt"
	"strings"
)

// LinkKind discriminates the three ways a chain can step into an aggregate.
type LinkKind uint8

const (
	// LinkArray selects one element of an array or matrix.
	LinkArray LinkKind = iota
	// LinkWildcard selects every element of an array or matrix. Only
	// copies may carry wildcard links.
	LinkWildcard
	// LinkField selects one member of a struct.
	LinkField
)

// Link is one step of a dereference chain. Links are immutable records;
// rewrites build new chains rather than editing links in place.
type Link struct {
	Kind LinkKind
	// Type is the type reached after applying this link.
	Type TypeHandle
	// Field is the struct member index for LinkField.
	Field uint32
	// Const is the element index for a LinkArray whose Index is nil.
	Const uint32
	// Index is the dynamic element index for LinkArray, or nil when the
	// index is the compile-time constant Const.
	Index *Instr
}

// IsConst reports whether an array link has a compile-time constant index.
func (l Link) IsConst() bool {
	return l.Kind == LinkArray && l.Index == nil
}

// Chain addresses memory as a root variable plus a sequence of links. It is
// the embedded form of a dereference, carried directly on instructions like
// LoadVar rather than built out of deref instructions.
//
// Chains are value types. Extending a chain copies the link slice, so a
// derived chain never aliases its parent. A chain stored into an
// instruction must not be stored into a second instruction; clone it
// instead, so that operand rewriting inside one instruction cannot touch
// another.
type Chain struct {
	Var   *Variable
	Links []Link
}

// ChainOf starts a chain at a variable.
func ChainOf(v *Variable) Chain {
	assert(v != nil, "chain of nil variable")
	return Chain{Var: v}
}

// Type returns the type the chain points at: the variable's type for an
// empty chain, otherwise the type after the last link.
func (c Chain) Type() TypeHandle {
	if len(c.Links) == 0 {
		return c.Var.Type
	}
	return c.Links[len(c.Links)-1].Type
}

// TypeBefore returns the type the chain points at just before link i.
func (c Chain) TypeBefore(i int) TypeHandle {
	assert(i >= 0 && i <= len(c.Links), "link position out of range")
	if i == 0 {
		return c.Var.Type
	}
	return c.Links[i-1].Type
}

func (c Chain) extend(l Link) Chain {
	links := make([]Link, len(c.Links)+1)
	copy(links, c.Links)
	links[len(c.Links)] = l
	return Chain{Var: c.Var, Links: links}
}

// Array extends the chain with a constant-index array link.
func (c Chain) Array(t *TypeTable, index uint32) Chain {
	parent := c.Type()
	assertf(t.IsArrayOrMatrix(parent), "array link into %s", t.String(parent))
	return c.extend(Link{Kind: LinkArray, Const: index, Type: t.Elem(parent)})
}

// ArrayDyn extends the chain with a dynamically-indexed array link.
func (c Chain) ArrayDyn(t *TypeTable, index *Instr) Chain {
	parent := c.Type()
	assertf(t.IsArrayOrMatrix(parent), "array link into %s", t.String(parent))
	assert(index != nil, "dynamic array link with nil index")
	return c.extend(Link{Kind: LinkArray, Index: index, Type: t.Elem(parent)})
}

// Wildcard extends the chain with a wildcard link.
func (c Chain) Wildcard(t *TypeTable) Chain {
	parent := c.Type()
	assertf(t.IsArrayOrMatrix(parent), "wildcard link into %s", t.String(parent))
	return c.extend(Link{Kind: LinkWildcard, Type: t.Elem(parent)})
}

// Field extends the chain with a struct member link.
func (c Chain) Field(t *TypeTable, i uint32) Chain {
	parent := c.Type()
	assertf(t.IsStruct(parent), "field link into %s", t.String(parent))
	return c.extend(Link{Kind: LinkField, Field: i, Type: t.Field(parent, i)})
}

// Clone returns a copy of the chain whose link storage is not shared with
// the original.
func (c Chain) Clone() Chain {
	if len(c.Links) == 0 {
		return Chain{Var: c.Var}
	}
	links := make([]Link, len(c.Links))
	copy(links, c.Links)
	return Chain{Var: c.Var, Links: links}
}

// NextWildcard returns the position of the first wildcard link, or -1 if
// the chain has none.
func (c Chain) NextWildcard() int {
	for i, l := range c.Links {
		if l.Kind == LinkWildcard {
			return i
		}
	}
	return -1
}

// CountWildcards returns the number of wildcard links in the chain.
func (c Chain) CountWildcards() int {
	n := 0
	for _, l := range c.Links {
		if l.Kind == LinkWildcard {
			n++
		}
	}
	return n
}

// SpecializeWildcard returns a new chain in which the first wildcard link
// is replaced by a constant-index array link selecting element. The
// original chain is untouched.
func (c Chain) SpecializeWildcard(element uint32) Chain {
	w := c.NextWildcard()
	assert(w >= 0, "no wildcard to specialize")
	out := c.Clone()
	out.Links[w] = Link{Kind: LinkArray, Const: element, Type: out.Links[w].Type}
	return out
}

// eachIndex visits the dynamic index slot of every indexed link.
func (c Chain) eachIndex(fn func(slot **Instr)) {
	for i := range c.Links {
		if c.Links[i].Kind == LinkArray && c.Links[i].Index != nil {
			fn(&c.Links[i].Index)
		}
	}
}

// String renders the chain for diagnostics and dumps, e.g.
// "color[2].rgb[*]" or "data[%7]" for a dynamic index.
func (c Chain) String(t *TypeTable) string {
	if c.Var == nil {
		return "<nil chain>"
	}
	var sb strings.Builder
	sb.WriteString(c.Var.Name)
	ty := c.Var.Type
	for _, l := range c.Links {
		switch l.Kind {
		case LinkArray:
			if l.Index != nil {
				fmt.Fprintf(&sb, "[%%%d]", l.Index.ID)
			} else {
				fmt.Fprintf(&sb, "[%d]", l.Const)
			}
		case LinkWildcard:
			sb.WriteString("[*]")
		case LinkField:
			sb.WriteByte('.')
			if st, ok := t.Inner(ty).(StructType); ok && int(l.Field) < len(st.Members) {
				sb.WriteString(t.FieldName(ty, l.Field))
			} else {
				fmt.Fprintf(&sb, "@%d", l.Field)
			}
		}
		ty = l.Type
	}
	return sb.String()
}
