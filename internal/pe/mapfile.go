package pe

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	binpe "github.com/Binject/debug/pe"

	"github.com/ZacharyZcR/rpe/internal/memory"
)

// maxMappedImage bounds SizeOfImage when a file is laid out in memory.
const maxMappedImage = 1 << 30

// ErrBadImageFile is returned when a PE file cannot be laid out.
var ErrBadImageFile = errors.New("无法映射的PE文件")

// MapFile lays out the PE file at path the way the loader maps it: headers
// first, then every section at its virtual address with zero fill after
// its raw data. Imports are not bound and relocations are not applied, so
// the result reads as if it were loaded at its preferred base.
func MapFile(path string) (*memory.Buffer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	return mapImage(raw)
}

func mapImage(raw []byte) (*memory.Buffer, error) {
	f, err := binpe.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("解析PE文件失败: %w", err)
	}
	defer func() { _ = f.Close() }()

	var base uint64
	var sizeOfImage, sizeOfHeaders uint32
	switch oh := f.OptionalHeader.(type) {
	case *binpe.OptionalHeader32:
		base, sizeOfImage, sizeOfHeaders = uint64(oh.ImageBase), oh.SizeOfImage, oh.SizeOfHeaders
	case *binpe.OptionalHeader64:
		base, sizeOfImage, sizeOfHeaders = oh.ImageBase, oh.SizeOfImage, oh.SizeOfHeaders
	default:
		return nil, fmt.Errorf("缺少可选头: %w", ErrBadImageFile)
	}
	if base == 0 || sizeOfImage == 0 || sizeOfImage > maxMappedImage {
		return nil, fmt.Errorf("基址 0x%X, 镜像大小 0x%X: %w", base, sizeOfImage, ErrBadImageFile)
	}

	image := make([]byte, sizeOfImage)
	headers := min(int(sizeOfHeaders), len(raw))
	copy(image, raw[:headers])

	for _, s := range f.Sections {
		if s.Size == 0 || s.VirtualAddress >= sizeOfImage {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("读取节区 %s 失败: %w", s.Name, err)
		}
		// Raw data past VirtualSize is file alignment padding.
		if s.VirtualSize != 0 && uint32(len(data)) > s.VirtualSize {
			data = data[:s.VirtualSize]
		}
		copy(image[s.VirtualAddress:], data)
	}

	return memory.NewBuffer(base, image), nil
}
