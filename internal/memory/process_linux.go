//go:build linux

package memory

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Process reads another process with process_vm_readv. The handle is the pid.
type Process struct {
	pid int
}

// OpenProcess checks that pid exists and returns a reader for it.
func OpenProcess(pid uint32) (*Process, error) {
	if err := unix.Kill(int(pid), 0); err != nil && err != unix.EPERM {
		return nil, fmt.Errorf("打开进程 %d 失败: %w", pid, err)
	}
	return &Process{pid: int(pid)}, nil
}

// ReadBytes reads n bytes at addr.
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
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(n)
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: n}}
	read, err := unix.ProcessVMReadv(p.pid, local, remote, 0)
	if err != nil {
		return nil, &ReadError{Addr: addr, Len: n, Err: err}
	}
	if read != n {
		return nil, &ReadError{Addr: addr, Len: n, Err: fmt.Errorf("仅读取 %d 字节", read)}
	}
	return buf, nil
}

// ReadCString reads a NUL-terminated string from the target process.
func (p *Process) ReadCString(addr uint64) (string, error) {
	return readCString(p, addr)
}

// Handle returns the pid.
func (p *Process) Handle() (uintptr, bool) {
	return uintptr(p.pid), true
}

// Close is a no-op; no kernel object is held.
func (p *Process) Close() error {
	return nil
}
