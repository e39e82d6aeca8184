package memory

import (
	"math"
	"unsafe"
)

// Local reads the memory of the current process by direct dereference.
type Local struct{}

// ReadBytes copies n bytes at addr out of the current process.
func (l Local) ReadBytes(addr uint64, n int) ([]byte, error) {
	src, err := l.Slice(addr, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, src)
	return out, nil
}

// Slice returns the n bytes at addr without copying them.
func (Local) Slice(addr uint64, n int) ([]byte, error) {
	if addr == 0 {
		return nil, &ReadError{Addr: addr, Len: n, Err: ErrNullAddress}
	}
	if n < 0 || addr > math.MaxUint64-uint64(n) || uint64(uintptr(addr)) != addr {
		return nil, &ReadError{Addr: addr, Len: n, Err: ErrOutOfRange}
	}
	if n == 0 {
		return []byte{}, nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), n), nil
}

// ReadCString reads a NUL-terminated string from the current process.
func (l Local) ReadCString(addr uint64) (string, error) {
	return readCString(l, addr)
}

// Handle always reports no handle.
func (Local) Handle() (uintptr, bool) {
	return 0, false
}
