//go:build !windows && !linux

package memory

// Process is unavailable on this platform.
type Process struct{}

// OpenProcess always fails with ErrUnsupportedPlatform.
func OpenProcess(pid uint32) (*Process, error) {
	return nil, ErrUnsupportedPlatform
}

func (p *Process) ReadBytes(addr uint64, n int) ([]byte, error) {
	return nil, &ReadError{Addr: addr, Len: n, Err: ErrUnsupportedPlatform}
}

func (p *Process) ReadCString(addr uint64) (string, error) {
	return "", &ReadError{Addr: addr, Err: ErrUnsupportedPlatform}
}

func (p *Process) Handle() (uintptr, bool) {
	return 0, true
}

func (p *Process) Close() error {
	return nil
}
