package memory

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Dump is a memory-mapped file holding the raw bytes of a mapped image,
// addressed as if it still lived at its original base.
type Dump struct {
	*Buffer
	data mmap.MMap
}

// OpenDump maps path read-only and places its first byte at base.
func OpenDump(path string, base uint64) (*Dump, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开内存转储失败: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("映射内存转储失败: %w", err)
	}

	return &Dump{Buffer: NewBuffer(base, data), data: data}, nil
}

// Close unmaps the file. The dump must not be read afterwards.
func (d *Dump) Close() error {
	if d.data == nil {
		return nil
	}
	err := d.data.Unmap()
	d.data = nil
	d.Buffer = NewBuffer(d.base, nil)
	return err
}
