package nir

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Fprint writes a deterministic textual dump of the module. The dump is
// one-way: there is no parser for it. Value numbers are assigned in program
// order per function, so two structurally identical modules print
// identically regardless of the rewriting history that produced them.
func Fprint(w io.Writer, m *Module) error {
	p := &printer{w: w, types: m.Types}
	if len(m.Globals) > 0 {
		p.printf("globals:\n")
		for _, v := range m.Globals {
			p.printf("  %s: %s [%s]\n", v.Name, m.Types.String(v.Type), v.Mode)
		}
	}
	for _, f := range m.Functions {
		p.printFunction(f)
	}
	return p.err
}

// Sprint returns Fprint's output as a string.
func Sprint(m *Module) string {
	var sb strings.Builder
	// strings.Builder never errors.
	_ = Fprint(&sb, m)
	return sb.String()
}

type printer struct {
	w     io.Writer
	types *TypeTable
	names map[*Instr]string
	err   error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) printFunction(f *Function) {
	p.printf("fn %s:\n", f.Name)
	for _, v := range f.Locals {
		p.printf("  local %s: %s\n", v.Name, p.types.String(v.Type))
	}

	p.names = make(map[*Instr]string)
	n := 0
	for _, b := range f.Blocks {
		for in := b.First(); in != nil; in = in.Next() {
			if in.Type != TypeVoid {
				p.names[in] = "%" + strconv.Itoa(n)
				n++
			}
		}
	}

	for _, b := range f.Blocks {
		p.printf("  block %d:\n", b.Index)
		for in := b.First(); in != nil; in = in.Next() {
			p.printf("    %s\n", p.instrString(in))
		}
	}
}

func (p *printer) name(in *Instr) string {
	if s, ok := p.names[in]; ok {
		return s
	}
	return "%?"
}

func (p *printer) instrString(in *Instr) string {
	lhs := ""
	if in.Type != TypeVoid {
		lhs = p.name(in) + " = "
	}

	var rhs string
	switch op := in.Op.(type) {
	case *DerefVar:
		rhs = "deref_var &" + op.Var.Name
	case *DerefArray:
		rhs = fmt.Sprintf("deref_array %s[%s]", p.name(op.Parent), p.name(op.Index))
	case *DerefArrayWildcard:
		rhs = fmt.Sprintf("deref_array %s[*]", p.name(op.Parent))
	case *DerefStruct:
		parent := op.Parent
		rhs = fmt.Sprintf("deref_struct %s.%s", p.name(parent), p.types.FieldName(parent.Type, op.Field))
	case *LoadConst:
		rhs = "const " + p.constString(in.Type, op.Data)
	case *Undef:
		rhs = "undef"
	case *LoadDeref:
		rhs = "load_deref " + p.name(op.Src)
	case *StoreDeref:
		rhs = fmt.Sprintf("store_deref %s, %s wrmask=0x%x", p.name(op.Dst), p.name(op.Value), op.WriteMask)
	case *CopyDeref:
		rhs = fmt.Sprintf("copy_deref %s, %s", p.name(op.Dst), p.name(op.Src))
	case *LoadVar:
		rhs = "load_var " + p.chainString(op.Src)
	case *StoreVar:
		rhs = fmt.Sprintf("store_var %s, %s wrmask=0x%x", p.chainString(op.Dst), p.name(op.Value), op.WriteMask)
	case *CopyVar:
		rhs = fmt.Sprintf("copy_var %s, %s", p.chainString(op.Dst), p.chainString(op.Src))
	case *Tex:
		rhs = "tex " + p.texOperandString(op.TextureDeref, op.TextureChain)
		if op.SamplerDeref != nil || op.SamplerChain.Var != nil {
			rhs += ", " + p.texOperandString(op.SamplerDeref, op.SamplerChain)
		}
		if op.Coord != nil {
			rhs += ", coord=" + p.name(op.Coord)
		}
	case *AtomicCounter:
		verbs := [...]string{"atomic_inc", "atomic_dec", "atomic_read"}
		rhs = verbs[op.Op] + " " + p.texOperandString(op.CounterDeref, op.CounterChain)
	case *Call:
		args := make([]string, len(op.Args))
		for i, a := range op.Args {
			args[i] = p.name(a)
		}
		rhs = fmt.Sprintf("call %s(%s)", op.Callee.Name, strings.Join(args, ", "))
	default:
		rhs = fmt.Sprintf("<unknown %T>", in.Op)
	}

	if in.Type != TypeVoid {
		rhs += " : " + p.types.String(in.Type)
	}
	return lhs + rhs
}

func (p *printer) texOperandString(deref *Instr, chain Chain) string {
	if deref != nil {
		return p.name(deref)
	}
	return p.chainString(chain)
}

// chainString renders an embedded chain with printer-local value numbers for
// dynamic indices, unlike Chain.String which uses instruction IDs.
func (p *printer) chainString(c Chain) string {
	var sb strings.Builder
	sb.WriteString(c.Var.Name)
	ty := c.Var.Type
	for _, l := range c.Links {
		switch l.Kind {
		case LinkArray:
			if l.Index != nil {
				sb.WriteString("[" + p.name(l.Index) + "]")
			} else {
				fmt.Fprintf(&sb, "[%d]", l.Const)
			}
		case LinkWildcard:
			sb.WriteString("[*]")
		case LinkField:
			sb.WriteString("." + p.types.FieldName(ty, l.Field))
		}
		ty = l.Type
	}
	return sb.String()
}

func (p *printer) constString(ty TypeHandle, words []uint64) string {
	var scalar ScalarType
	switch t := p.types.Inner(ty).(type) {
	case ScalarType:
		scalar = t
	case VectorType:
		scalar = t.Scalar
	default:
		return fmt.Sprintf("%v", words)
	}

	parts := make([]string, len(words))
	for i, w := range words {
		switch scalar.Kind {
		case ScalarFloat:
			parts[i] = strconv.FormatFloat(float64(math.Float32frombits(uint32(w))), 'g', -1, 32)
		case ScalarSint:
			parts[i] = strconv.FormatInt(int64(int32(uint32(w))), 10)
		case ScalarBool:
			parts[i] = strconv.FormatBool(w != 0)
		default:
			parts[i] = strconv.FormatUint(w, 10)
		}
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
