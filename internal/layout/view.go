package layout

import (
	"encoding/binary"
	"fmt"

	"github.com/ZacharyZcR/rpe/internal/memory"
)

// View is a read-only projection of a resolved layout at one address.
// Fields are read on access, so every call observes the current bytes.
type View struct {
	r     *Resolved
	space memory.AddressSpace
	addr  uint64
	// load fetches field bytes for decoding. Native views decode host
	// memory in place; every other mode copies through the space.
	load func(addr uint64, n int) ([]byte, error)
}

// Addr returns the address of the structure.
func (v *View) Addr() uint64 {
	return v.addr
}

// Size returns the structure size for the bound bitness.
func (v *View) Size() uint64 {
	return v.r.Size
}

// Layout returns the resolved layout of the view.
func (v *View) Layout() *Resolved {
	return v.r
}

// FieldAddr returns the absolute address of the named field.
func (v *View) FieldAddr(name string) (uint64, error) {
	f, err := v.r.field(name)
	if err != nil {
		return 0, err
	}
	return v.addr + f.Offset, nil
}

// Uint reads an integer or pointer field, zero-extended to 64 bits.
func (v *View) Uint(name string) (uint64, error) {
	f, err := v.r.field(name)
	if err != nil {
		return 0, err
	}
	switch f.Kind {
	case Uint8, Uint16, Uint32, Uint64, Pointer:
	default:
		return 0, fmt.Errorf("%s.%s 不是整数字段", v.r.Layout.Name, name)
	}
	raw, err := v.load(v.addr+f.Offset, int(f.Width))
	if err != nil {
		return 0, err
	}
	return decodeUint(raw), nil
}

// Uint16 reads a field and truncates it to 16 bits.
func (v *View) Uint16(name string) (uint16, error) {
	val, err := v.Uint(name)
	return uint16(val), err
}

// Uint32 reads a field and truncates it to 32 bits.
func (v *View) Uint32(name string) (uint32, error) {
	val, err := v.Uint(name)
	return uint32(val), err
}

// Bytes returns the raw bytes of any field.
func (v *View) Bytes(name string) ([]byte, error) {
	f, err := v.r.field(name)
	if err != nil {
		return nil, err
	}
	return v.space.ReadBytes(v.addr+f.Offset, int(f.Width))
}

// Raw returns the bytes of the whole structure.
func (v *View) Raw() ([]byte, error) {
	return v.space.ReadBytes(v.addr, int(v.r.Size))
}

// Struct returns a view of an embedded structure field.
func (v *View) Struct(name string) (*View, error) {
	f, err := v.r.field(name)
	if err != nil {
		return nil, err
	}
	if f.Kind != Struct {
		return nil, fmt.Errorf("%s.%s 不是结构体字段", v.r.Layout.Name, name)
	}
	return &View{r: f.Elem, space: v.space, addr: v.addr + f.Offset, load: v.load}, nil
}

// Index returns a view of element i of an array field.
func (v *View) Index(name string, i int) (*View, error) {
	f, err := v.r.field(name)
	if err != nil {
		return nil, err
	}
	if f.Kind != Array {
		return nil, fmt.Errorf("%s.%s 不是数组字段", v.r.Layout.Name, name)
	}
	if i < 0 || i >= f.Count {
		return nil, fmt.Errorf("%s.%s[%d] 越界 (长度 %d)", v.r.Layout.Name, name, i, f.Count)
	}
	return &View{r: f.Elem, space: v.space, addr: v.addr + f.Offset + uint64(i)*f.Elem.Size, load: v.load}, nil
}

func decodeUint(raw []byte) uint64 {
	switch len(raw) {
	case 1:
		return uint64(raw[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(raw))
	case 4:
		return uint64(binary.LittleEndian.Uint32(raw))
	case 8:
		return binary.LittleEndian.Uint64(raw)
	}
	return 0
}
