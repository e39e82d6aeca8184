//go:build windows

package memory

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// Process reads another process through a handle with PROCESS_VM_READ.
type Process struct {
	h     windows.Handle
	owned bool
}

// newProcess wraps h. Close releases it only when owned is set.
func newProcess(h windows.Handle, owned bool) *Process {
	return &Process{h: h, owned: owned}
}

// OpenProcess opens pid for querying and reading.
func OpenProcess(pid uint32) (*Process, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, pid)
	if err != nil {
		return nil, fmt.Errorf("打开进程 %d 失败: %w", pid, err)
	}
	return newProcess(h, true), nil
}

// ReadBytes reads n bytes at addr with ReadProcessMemory.
func (p *Process) ReadBytes(addr uint64, n int) ([]byte, error) {
	if addr == 0 {
		return nil, &ReadError{Addr: addr, Len: n, Err: ErrNullAddress}
	}
	if n < 0 || uint64(uintptr(addr)) != addr {
		return nil, &ReadError{Addr: addr, Len: n, Err: ErrOutOfRange}
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	var read uintptr
	if err := windows.ReadProcessMemory(p.h, uintptr(addr), &buf[0], uintptr(n), &read); err != nil {
		return nil, &ReadError{Addr: addr, Len: n, Err: err}
	}
	if int(read) != n {
		return nil, &ReadError{Addr: addr, Len: n, Err: fmt.Errorf("仅读取 %d 字节", read)}
	}
	return buf, nil
}

// ReadCString reads a NUL-terminated string from the target process.
func (p *Process) ReadCString(addr uint64) (string, error) {
	return readCString(p, addr)
}

// Handle returns the process handle.
func (p *Process) Handle() (uintptr, bool) {
	return uintptr(p.h), true
}

// Close releases the handle if OpenProcess created it.
func (p *Process) Close() error {
	if !p.owned || p.h == 0 {
		return nil
	}
	err := windows.CloseHandle(p.h)
	p.h = 0
	return err
}
