package pe

import (
	"fmt"
	"io"

	"github.com/ZacharyZcR/rpe/internal/memory"
)

// Reader wraps an Image together with the address space it owns.
type Reader struct {
	image  *Image
	source string
	closer io.Closer
}

// OpenDump maps a dump of an image that was loaded at base.
func OpenDump(path string, base uint64, opts ...Option) (*Reader, error) {
	dump, err := memory.OpenDump(path, base)
	if err != nil {
		return nil, err
	}
	img, err := New(dump, base, opts...)
	if err != nil {
		_ = dump.Close()
		return nil, fmt.Errorf("解析内存转储失败: %w", err)
	}
	return &Reader{image: img, source: path, closer: dump}, nil
}

// OpenProcess opens pid and decodes the image mapped at base in it.
func OpenProcess(pid uint32, base uint64, opts ...Option) (*Reader, error) {
	proc, err := memory.OpenProcess(pid)
	if err != nil {
		return nil, err
	}
	img, err := New(proc, base, opts...)
	if err != nil {
		_ = proc.Close()
		return nil, fmt.Errorf("解析进程 %d 中的镜像失败: %w", pid, err)
	}
	return &Reader{image: img, source: fmt.Sprintf("pid %d", pid), closer: proc}, nil
}

// OpenFile lays out a PE file as the loader would and decodes it at its
// preferred base.
func OpenFile(path string, opts ...Option) (*Reader, error) {
	buf, err := MapFile(path)
	if err != nil {
		return nil, err
	}
	img, err := New(buf, buf.Base(), opts...)
	if err != nil {
		return nil, fmt.Errorf("解析文件 %s 失败: %w", path, err)
	}
	return &Reader{image: img, source: path}, nil
}

// OpenLocal decodes an image mapped in the current process.
func OpenLocal(base uint64, opts ...Option) (*Reader, error) {
	img, err := New(memory.Local{}, base, opts...)
	if err != nil {
		return nil, err
	}
	return &Reader{image: img, source: "self"}, nil
}

// Close releases the address space.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Image returns the decoded image.
func (r *Reader) Image() *Image {
	return r.image
}

// Source describes where the image is read from.
func (r *Reader) Source() string {
	return r.source
}
