// Package layout describes C structures whose pointer-sized fields change
// width with the bitness of the image being decoded, and binds them to an
// address space for reading.
package layout

import (
	"errors"
	"fmt"
)

// Bitness is the pointer width of a PE image in bits.
type Bitness int

const (
	Bits32 Bitness = 32
	Bits64 Bitness = 64
)

// Valid reports whether b is 32 or 64.
func (b Bitness) Valid() bool {
	return b == Bits32 || b == Bits64
}

// PointerSize returns the pointer width in bytes.
func (b Bitness) PointerSize() int {
	return int(b) / 8
}

func (b Bitness) String() string {
	return fmt.Sprintf("%d位", int(b))
}

// Kind is the type of a structure field.
type Kind uint8

const (
	Uint8 Kind = iota + 1
	Uint16
	Uint32
	Uint64
	// Pointer is 4 or 8 bytes depending on the image bitness.
	Pointer
	// Bytes is a raw byte array of Field.Count bytes.
	Bytes
	// Struct embeds Field.Elem.
	Struct
	// Array holds Field.Count consecutive Field.Elem structures.
	Array
)

// ErrUnknownField is returned when a view is asked for a field its layout lacks.
var ErrUnknownField = errors.New("未知字段")

// Field is one member of a Layout.
type Field struct {
	Name  string
	Kind  Kind
	Count int
	Elem  *Layout
}

// Layout is an ordered list of fields in host-independent form.
type Layout struct {
	Name   string
	Fields []Field
}

// New builds a layout.
func New(name string, fields ...Field) *Layout {
	return &Layout{Name: name, Fields: fields}
}

func U8(name string) Field  { return Field{Name: name, Kind: Uint8} }
func U16(name string) Field { return Field{Name: name, Kind: Uint16} }
func U32(name string) Field { return Field{Name: name, Kind: Uint32} }
func U64(name string) Field { return Field{Name: name, Kind: Uint64} }
func Ptr(name string) Field { return Field{Name: name, Kind: Pointer} }

// Raw is a fixed-size byte array field.
func Raw(name string, n int) Field {
	return Field{Name: name, Kind: Bytes, Count: n}
}

// Nested embeds l as a field.
func Nested(name string, l *Layout) Field {
	return Field{Name: name, Kind: Struct, Elem: l}
}

// ArrayOf is an inline array of n elements of l.
func ArrayOf(name string, l *Layout, n int) Field {
	return Field{Name: name, Kind: Array, Elem: l, Count: n}
}

// Resolved is a Layout with offsets fixed for one bitness.
type Resolved struct {
	Layout  *Layout
	Bitness Bitness
	Size    uint64
	Align   uint64

	fields []resolvedField
	index  map[string]int
}

type resolvedField struct {
	Field
	Offset uint64
	Width  uint64
	Elem   *Resolved
}

// Resolve computes field offsets for bitness b using natural alignment:
// each member is aligned to its own width and the structure to its widest
// member, the way the Windows headers are laid out.
func Resolve(l *Layout, b Bitness) (*Resolved, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("无效的位数: %d", int(b))
	}

	r := &Resolved{Layout: l, Bitness: b, Align: 1, index: make(map[string]int, len(l.Fields))}
	var off uint64
	for _, f := range l.Fields {
		width, align, elem, err := fieldShape(f, b)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", l.Name, f.Name, err)
		}
		off = alignUp(off, align)
		if align > r.Align {
			r.Align = align
		}
		r.index[f.Name] = len(r.fields)
		r.fields = append(r.fields, resolvedField{Field: f, Offset: off, Width: width, Elem: elem})
		off += width
	}
	r.Size = alignUp(off, r.Align)
	return r, nil
}

func fieldShape(f Field, b Bitness) (width, align uint64, elem *Resolved, err error) {
	switch f.Kind {
	case Uint8:
		return 1, 1, nil, nil
	case Uint16:
		return 2, 2, nil, nil
	case Uint32:
		return 4, 4, nil, nil
	case Uint64:
		return 8, 8, nil, nil
	case Pointer:
		ps := uint64(b.PointerSize())
		return ps, ps, nil, nil
	case Bytes:
		if f.Count < 0 {
			return 0, 0, nil, fmt.Errorf("无效长度 %d", f.Count)
		}
		return uint64(f.Count), 1, nil, nil
	case Struct, Array:
		if f.Elem == nil {
			return 0, 0, nil, errors.New("缺少元素布局")
		}
		elem, err = Resolve(f.Elem, b)
		if err != nil {
			return 0, 0, nil, err
		}
		if f.Kind == Struct {
			return elem.Size, elem.Align, elem, nil
		}
		if f.Count < 0 {
			return 0, 0, nil, fmt.Errorf("无效长度 %d", f.Count)
		}
		return elem.Size * uint64(f.Count), elem.Align, elem, nil
	}
	return 0, 0, nil, fmt.Errorf("未知类型 %d", f.Kind)
}

func (r *Resolved) field(name string) (*resolvedField, error) {
	i, ok := r.index[name]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", r.Layout.Name, name, ErrUnknownField)
	}
	return &r.fields[i], nil
}

// Offset returns the byte offset of the named field.
func (r *Resolved) Offset(name string) (uint64, error) {
	f, err := r.field(name)
	if err != nil {
		return 0, err
	}
	return f.Offset, nil
}

// Width returns the byte size of the named field.
func (r *Resolved) Width(name string) (uint64, error) {
	f, err := r.field(name)
	if err != nil {
		return 0, err
	}
	return f.Width, nil
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}
