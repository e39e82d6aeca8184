package memory

// Buffer exposes a byte slice as if it were mapped at Base. It stands in
// for a foreign address space, so it always reports a handle.
type Buffer struct {
	base   uint64
	data   []byte
	handle uintptr
}

// NewBuffer maps data at base.
func NewBuffer(base uint64, data []byte) *Buffer {
	return &Buffer{base: base, data: data}
}

// WithHandle sets the opaque handle the buffer reports.
func (b *Buffer) WithHandle(h uintptr) *Buffer {
	b.handle = h
	return b
}

// Base returns the address of the first byte.
func (b *Buffer) Base() uint64 {
	return b.base
}

// Len returns the size of the mapped region.
func (b *Buffer) Len() int {
	return len(b.data)
}

// ReadBytes copies n bytes starting at addr.
func (b *Buffer) ReadBytes(addr uint64, n int) ([]byte, error) {
	if addr == 0 {
		return nil, &ReadError{Addr: addr, Len: n, Err: ErrNullAddress}
	}
	if n < 0 || addr < b.base {
		return nil, &ReadError{Addr: addr, Len: n, Err: ErrOutOfRange}
	}
	off := addr - b.base
	if off > uint64(len(b.data)) || uint64(n) > uint64(len(b.data))-off {
		return nil, &ReadError{Addr: addr, Len: n, Err: ErrOutOfRange}
	}
	out := make([]byte, n)
	copy(out, b.data[off:off+uint64(n)])
	return out, nil
}

// ReadCString reads a NUL-terminated string starting at addr.
func (b *Buffer) ReadCString(addr uint64) (string, error) {
	return readCString(b, addr)
}

// Handle returns the handle set with WithHandle.
func (b *Buffer) Handle() (uintptr, bool) {
	return b.handle, true
}
