package nir

import (
	"fmt"
	"strconv"
)

// TypeHandle references a type in a module's TypeTable.
//
// Handles are structurally deduplicated: two handles are equal exactly when
// the types they denote are equal. This is what lets the deref passes compare
// types with ==.
type TypeHandle uint32

// TypeVoid is the handle of the void type, pre-registered in every TypeTable.
// Instructions that produce no value use it as their result type.
const TypeVoid TypeHandle = 0

// TypeInner represents the inner type kind.
type TypeInner interface {
	typeInner()
}

// Type represents a type in the IR.
type Type struct {
	Name  string
	Inner TypeInner
}

// VoidType is the type of instructions that produce no value.
type VoidType struct{}

func (VoidType) typeInner() {}

// ScalarKind represents scalar type kinds.
type ScalarKind uint8

const (
	ScalarSint  ScalarKind = iota // Signed integer
	ScalarUint                    // Unsigned integer
	ScalarFloat                   // Floating point
	ScalarBool                    // Boolean
)

// ScalarType represents scalar types.
type ScalarType struct {
	Kind  ScalarKind
	Width uint8 // in bytes
}

func (ScalarType) typeInner() {}

// VectorSize represents vector sizes.
type VectorSize uint8

const (
	Vec2 VectorSize = 2
	Vec3 VectorSize = 3
	Vec4 VectorSize = 4
)

// VectorType represents vector types.
type VectorType struct {
	Size   VectorSize
	Scalar ScalarType
}

func (VectorType) typeInner() {}

// MatrixType represents matrix types. For dereferencing purposes a matrix
// behaves like an array of Columns column vectors.
type MatrixType struct {
	Columns VectorSize
	Rows    VectorSize
	Scalar  ScalarType
}

func (MatrixType) typeInner() {}

// ArrayType represents fixed-length array types. Runtime-sized arrays are
// not representable; every aggregate the splitting passes see has a known
// shape.
type ArrayType struct {
	Base TypeHandle
	Len  uint32
}

func (ArrayType) typeInner() {}

// StructType represents struct types.
type StructType struct {
	Members []StructMember
}

func (StructType) typeInner() {}

// StructMember represents a struct member.
type StructMember struct {
	Name string
	Type TypeHandle
}

// SamplerType is an opaque sampler type. Variables of this type are only
// ever addressed by texture instructions.
type SamplerType struct {
	Comparison bool
}

func (SamplerType) typeInner() {}

// ImageDimension represents image dimensions.
type ImageDimension uint8

const (
	Dim1D ImageDimension = iota
	Dim2D
	Dim3D
	DimCube
)

// ImageType is an opaque image/texture type.
type ImageType struct {
	Dim     ImageDimension
	Arrayed bool
}

func (ImageType) typeInner() {}

// AtomicUintType is the type of atomic counter variables.
type AtomicUintType struct{}

func (AtomicUintType) typeInner() {}

// TypeTable interns all types used by a module.
//
// Types are deduplicated structurally so that TypeHandle equality is type
// equality. The table is owned by a single module and is not safe for
// concurrent use; all passes are single-threaded over one module.
type TypeTable struct {
	types   []Type
	typeMap map[string]TypeHandle
	keyBuf  []byte // reusable buffer for building type keys
}

// NewTypeTable creates a type table with void pre-registered at TypeVoid.
func NewTypeTable() *TypeTable {
	t := &TypeTable{
		types:   make([]Type, 0, 16),
		typeMap: make(map[string]TypeHandle, 16),
		keyBuf:  make([]byte, 0, 64),
	}
	h := t.GetOrCreate("void", VoidType{})
	if h != TypeVoid {
		panic("nir: void must be the first registered type")
	}
	return t
}

// GetOrCreate returns an existing handle for the type if it exists,
// or creates a new one if it's unique.
func (t *TypeTable) GetOrCreate(name string, inner TypeInner) TypeHandle {
	key := t.normalizeType(inner)

	if handle, exists := t.typeMap[key]; exists {
		return handle
	}

	handle := TypeHandle(len(t.types))
	t.types = append(t.types, Type{
		Name:  name,
		Inner: inner,
	})
	t.typeMap[key] = handle

	return handle
}

// normalizeType creates a unique key for a type based on its structure.
// Two structurally identical types will produce the same key.
// Uses a reusable byte buffer to avoid fmt.Sprintf allocations for common types.
func (t *TypeTable) normalizeType(inner TypeInner) string {
	b := t.keyBuf[:0]

	switch ty := inner.(type) {
	case VoidType:
		return "void"

	case ScalarType:
		b = append(b, "scalar:"...)
		b = strconv.AppendInt(b, int64(ty.Kind), 10)
		b = append(b, ':')
		b = strconv.AppendUint(b, uint64(ty.Width), 10)
		t.keyBuf = b
		return string(b)

	case VectorType:
		// Recursive call clobbers keyBuf, so build with string concat.
		scalarKey := t.normalizeType(ty.Scalar)
		return "vec:" + strconv.FormatUint(uint64(ty.Size), 10) + ":" + scalarKey

	case MatrixType:
		scalarKey := t.normalizeType(ty.Scalar)
		return "mat:" + strconv.FormatUint(uint64(ty.Columns), 10) + "x" + strconv.FormatUint(uint64(ty.Rows), 10) + ":" + scalarKey

	case ArrayType:
		return "array:" + strconv.FormatUint(uint64(ty.Base), 10) + ":" + strconv.FormatUint(uint64(ty.Len), 10)

	case StructType:
		// Structs use fmt.Sprintf since they're less frequent and more complex.
		key := fmt.Sprintf("struct:%d", len(ty.Members))
		for _, member := range ty.Members {
			key += fmt.Sprintf(":m(%s,%d)", member.Name, member.Type)
		}
		return key

	case SamplerType:
		if ty.Comparison {
			return "sampler:true"
		}
		return "sampler:false"

	case ImageType:
		return fmt.Sprintf("image:%d:%v", ty.Dim, ty.Arrayed)

	case AtomicUintType:
		return "atomic_uint"

	default:
		return fmt.Sprintf("unknown:%T", inner)
	}
}

// Lookup finds a type by its handle.
func (t *TypeTable) Lookup(handle TypeHandle) (Type, bool) {
	if int(handle) >= len(t.types) {
		return Type{}, false
	}
	return t.types[handle], true
}

// Inner returns the inner kind of a type. It panics on an out-of-range
// handle; handles are only minted by this table, so a bad one is a defect.
func (t *TypeTable) Inner(handle TypeHandle) TypeInner {
	assert(int(handle) < len(t.types), "type handle out of range")
	return t.types[handle].Inner
}

// Count returns the number of unique types registered.
func (t *TypeTable) Count() int {
	return len(t.types)
}

// Convenience constructors. Each interns the type and returns its handle.

// Scalar interns a scalar type.
func (t *TypeTable) Scalar(kind ScalarKind, width uint8) TypeHandle {
	inner := ScalarType{Kind: kind, Width: width}
	return t.GetOrCreate(typeString(t, inner), inner)
}

// F32 interns the 32-bit float type.
func (t *TypeTable) F32() TypeHandle { return t.Scalar(ScalarFloat, 4) }

// I32 interns the 32-bit signed integer type.
func (t *TypeTable) I32() TypeHandle { return t.Scalar(ScalarSint, 4) }

// U32 interns the 32-bit unsigned integer type.
func (t *TypeTable) U32() TypeHandle { return t.Scalar(ScalarUint, 4) }

// Bool interns the boolean type.
func (t *TypeTable) Bool() TypeHandle { return t.Scalar(ScalarBool, 1) }

// Vector interns a vector type.
func (t *TypeTable) Vector(size VectorSize, scalar ScalarType) TypeHandle {
	inner := VectorType{Size: size, Scalar: scalar}
	return t.GetOrCreate(typeString(t, inner), inner)
}

// Matrix interns a matrix type.
func (t *TypeTable) Matrix(cols, rows VectorSize, scalar ScalarType) TypeHandle {
	inner := MatrixType{Columns: cols, Rows: rows, Scalar: scalar}
	return t.GetOrCreate(typeString(t, inner), inner)
}

// Array interns a fixed-length array type.
func (t *TypeTable) Array(elem TypeHandle, n uint32) TypeHandle {
	inner := ArrayType{Base: elem, Len: n}
	return t.GetOrCreate(typeString(t, inner), inner)
}

// Struct interns a struct type under the given name.
func (t *TypeTable) Struct(name string, members []StructMember) TypeHandle {
	return t.GetOrCreate(name, StructType{Members: members})
}

// Sampler interns a sampler type.
func (t *TypeTable) Sampler(comparison bool) TypeHandle {
	inner := SamplerType{Comparison: comparison}
	return t.GetOrCreate(typeString(t, inner), inner)
}

// Image interns an image type.
func (t *TypeTable) Image(dim ImageDimension, arrayed bool) TypeHandle {
	inner := ImageType{Dim: dim, Arrayed: arrayed}
	return t.GetOrCreate(typeString(t, inner), inner)
}

// AtomicUint interns the atomic counter type.
func (t *TypeTable) AtomicUint() TypeHandle {
	return t.GetOrCreate("atomic<u32>", AtomicUintType{})
}

// Aggregate queries. These mirror the shape questions the rewriting passes
// ask of a type.

// IsVoid reports whether h is the void type.
func (t *TypeTable) IsVoid(h TypeHandle) bool {
	_, ok := t.Inner(h).(VoidType)
	return ok
}

// IsArray reports whether h is an array type. Matrices are not arrays;
// use IsArrayOrMatrix for "can be indexed by an array deref".
func (t *TypeTable) IsArray(h TypeHandle) bool {
	_, ok := t.Inner(h).(ArrayType)
	return ok
}

// IsMatrix reports whether h is a matrix type.
func (t *TypeTable) IsMatrix(h TypeHandle) bool {
	_, ok := t.Inner(h).(MatrixType)
	return ok
}

// IsArrayOrMatrix reports whether h can be the parent of an array deref.
func (t *TypeTable) IsArrayOrMatrix(h TypeHandle) bool {
	switch t.Inner(h).(type) {
	case ArrayType, MatrixType:
		return true
	}
	return false
}

// IsStruct reports whether h is a struct type.
func (t *TypeTable) IsStruct(h TypeHandle) bool {
	_, ok := t.Inner(h).(StructType)
	return ok
}

// IsVectorOrScalar reports whether h is a leaf type loads and stores may
// address directly.
func (t *TypeTable) IsVectorOrScalar(h TypeHandle) bool {
	switch t.Inner(h).(type) {
	case ScalarType, VectorType:
		return true
	}
	return false
}

// Len returns the indexable length of a type: the element count of an
// array, the column count of a matrix, or the member count of a struct.
// It returns 0 for any other type.
func (t *TypeTable) Len(h TypeHandle) uint32 {
	switch ty := t.Inner(h).(type) {
	case ArrayType:
		return ty.Len
	case MatrixType:
		return uint32(ty.Columns)
	case StructType:
		return uint32(len(ty.Members))
	}
	return 0
}

// Elem returns the element type of an array or matrix. For a matrix this is
// the column vector type. It panics if h is not indexable; callers must
// check the kind first, a mismatch here means the IR is malformed.
func (t *TypeTable) Elem(h TypeHandle) TypeHandle {
	switch ty := t.Inner(h).(type) {
	case ArrayType:
		return ty.Base
	case MatrixType:
		return t.Vector(ty.Rows, ty.Scalar)
	}
	panic(fmt.Sprintf("nir: element of non-indexable type %s", t.String(h)))
}

// Field returns the type of struct member i. It panics if h is not a struct
// or i is out of range.
func (t *TypeTable) Field(h TypeHandle, i uint32) TypeHandle {
	st, ok := t.Inner(h).(StructType)
	assert(ok, "field access on non-struct type")
	assert(int(i) < len(st.Members), "struct field index out of range")
	return st.Members[i].Type
}

// FieldName returns the name of struct member i, or "@i" when unnamed.
func (t *TypeTable) FieldName(h TypeHandle, i uint32) string {
	st, ok := t.Inner(h).(StructType)
	assert(ok, "field name of non-struct type")
	assert(int(i) < len(st.Members), "struct field index out of range")
	if name := st.Members[i].Name; name != "" {
		return name
	}
	return "@" + strconv.FormatUint(uint64(i), 10)
}

// WithoutArray strips all outer array levels from a type. Matrices are left
// intact.
func (t *TypeTable) WithoutArray(h TypeHandle) TypeHandle {
	for {
		arr, ok := t.Inner(h).(ArrayType)
		if !ok {
			return h
		}
		h = arr.Base
	}
}

// ContainsStruct reports whether h is a struct, possibly wrapped in arrays.
// This is the candidate test for struct splitting.
func (t *TypeTable) ContainsStruct(h TypeHandle) bool {
	return t.IsStruct(t.WithoutArray(h))
}

// Components returns the component count of a vector or scalar type and 0
// for anything else.
func (t *TypeTable) Components(h TypeHandle) uint32 {
	switch ty := t.Inner(h).(type) {
	case ScalarType:
		return 1
	case VectorType:
		return uint32(ty.Size)
	}
	return 0
}

// BitSize returns the per-component bit width of a vector or scalar type and
// 0 for anything else.
func (t *TypeTable) BitSize(h TypeHandle) uint32 {
	switch ty := t.Inner(h).(type) {
	case ScalarType:
		return uint32(ty.Width) * 8
	case VectorType:
		return uint32(ty.Scalar.Width) * 8
	}
	return 0
}

// WrapInArrayOf wraps inner in the same array dimensions as outer. A
// non-array outer returns inner unchanged. Splitting uses this to give a
// leaf field of foo[4] the type field[4] rather than four scalars.
func (t *TypeTable) WrapInArrayOf(inner, outer TypeHandle) TypeHandle {
	arr, ok := t.Inner(outer).(ArrayType)
	if !ok {
		return inner
	}
	elem := t.WrapInArrayOf(inner, arr.Base)
	return t.Array(elem, arr.Len)
}

// String renders a type in WGSL-flavored notation, e.g. "vec3<f32>",
// "array<f32, 4>", "mat2x3<f32>".
func (t *TypeTable) String(h TypeHandle) string {
	ty, ok := t.Lookup(h)
	if !ok {
		return fmt.Sprintf("type(%d)", h)
	}
	if st, isStruct := ty.Inner.(StructType); isStruct {
		if ty.Name != "" {
			return ty.Name
		}
		s := "struct{"
		for i, m := range st.Members {
			if i > 0 {
				s += ", "
			}
			s += m.Name + ": " + t.String(m.Type)
		}
		return s + "}"
	}
	return typeString(t, ty.Inner)
}

func typeString(t *TypeTable, inner TypeInner) string {
	switch ty := inner.(type) {
	case VoidType:
		return "void"
	case ScalarType:
		return scalarString(ty)
	case VectorType:
		return fmt.Sprintf("vec%d<%s>", ty.Size, scalarString(ty.Scalar))
	case MatrixType:
		return fmt.Sprintf("mat%dx%d<%s>", ty.Columns, ty.Rows, scalarString(ty.Scalar))
	case ArrayType:
		return fmt.Sprintf("array<%s, %d>", t.String(ty.Base), ty.Len)
	case SamplerType:
		if ty.Comparison {
			return "sampler_comparison"
		}
		return "sampler"
	case ImageType:
		dims := [...]string{"1d", "2d", "3d", "cube"}
		s := "texture_" + dims[ty.Dim]
		if ty.Arrayed {
			s += "_array"
		}
		return s
	case AtomicUintType:
		return "atomic<u32>"
	default:
		return fmt.Sprintf("%T", inner)
	}
}

func scalarString(s ScalarType) string {
	switch s.Kind {
	case ScalarBool:
		return "bool"
	case ScalarSint:
		return "i" + strconv.Itoa(int(s.Width)*8)
	case ScalarUint:
		return "u" + strconv.Itoa(int(s.Width)*8)
	case ScalarFloat:
		return "f" + strconv.Itoa(int(s.Width)*8)
	}
	return "scalar"
}
