// Package memory provides the address spaces a mapped PE image can be read from.
package memory

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// MaxCStringLen bounds ReadCString so a missing terminator cannot run away.
const MaxCStringLen = 4096

// cstringChunk is the read granularity for C strings. Reads never cross a
// chunk boundary, so they never touch a page the string does not reach.
const cstringChunk = 64

var (
	// ErrNullAddress is returned for reads at address zero.
	ErrNullAddress = errors.New("空地址")
	// ErrOutOfRange is returned when a read leaves the backing region.
	ErrOutOfRange = errors.New("地址超出范围")
	// ErrStringTooLong is returned when no terminator is found within MaxCStringLen.
	ErrStringTooLong = errors.New("字符串缺少终止符")
	// ErrUnsupportedPlatform is returned by process readers on platforms without a read primitive.
	ErrUnsupportedPlatform = errors.New("当前平台不支持读取进程内存")
)

// AddressSpace is the read capability the PE decoder consumes.
type AddressSpace interface {
	// ReadBytes returns a copy of n bytes starting at addr.
	ReadBytes(addr uint64, n int) ([]byte, error)
	// ReadCString returns the NUL-terminated string at addr.
	ReadCString(addr uint64) (string, error)
	// Handle reports the handle backing the space. ok is false for the
	// current process, whose memory is dereferenced directly.
	Handle() (h uintptr, ok bool)
}

// InPlace is implemented by spaces whose bytes can be referenced without
// copying. The returned slice aliases live memory and must not be kept.
type InPlace interface {
	Slice(addr uint64, n int) ([]byte, error)
}

// ReadError wraps a failed read with the range that was requested.
type ReadError struct {
	Addr uint64
	Len  int
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("读取内存失败 0x%X (%d 字节): %v", e.Addr, e.Len, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// IsLocal reports whether s is the current process.
func IsLocal(s AddressSpace) bool {
	_, ok := s.Handle()
	return !ok
}

// DecodeString converts raw bytes to text. Each byte maps to one rune
// (Latin-1), so names that are not valid UTF-8 still survive intact.
func DecodeString(raw []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// TrimNUL cuts raw at its first NUL byte.
func TrimNUL(raw []byte) []byte {
	for i, b := range raw {
		if b == 0 {
			return raw[:i]
		}
	}
	return raw
}

type byteReader interface {
	ReadBytes(addr uint64, n int) ([]byte, error)
}

// readCString implements ReadCString on top of a plain byte reader.
func readCString(r byteReader, addr uint64) (string, error) {
	var buf []byte
	cur := addr
	for len(buf) < MaxCStringLen {
		n := cstringChunk - int(cur%cstringChunk)
		chunk, err := r.ReadBytes(cur, n)
		if err != nil {
			// The chunk may run past the end of the readable region even
			// though the terminator is inside it.
			chunk, err = readBytewise(r, cur, n)
			if err != nil {
				return "", err
			}
		}
		for i, b := range chunk {
			if b == 0 {
				return DecodeString(append(buf, chunk[:i]...)), nil
			}
		}
		buf = append(buf, chunk...)
		cur += uint64(n)
	}
	return "", &ReadError{Addr: addr, Len: len(buf), Err: ErrStringTooLong}
}

// readBytewise reads up to n single bytes, stopping after the first NUL.
func readBytewise(r byteReader, addr uint64, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		b, err := r.ReadBytes(addr+uint64(i), 1)
		if err != nil {
			return nil, err
		}
		out = append(out, b[0])
		if b[0] == 0 {
			break
		}
	}
	return out, nil
}
