package pe

import (
	"encoding/binary"
	"fmt"

	"github.com/ZacharyZcR/rpe/internal/layout"
)

// DataDirectory is one entry of the optional header directory table.
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

// DOSHeader returns a view of the DOS header at the image base.
func (img *Image) DOSHeader() *layout.View {
	return img.dosHeader.At(img.base)
}

// NTHeader returns a view of the NT headers in the layout that matches the
// image bitness.
func (img *Image) NTHeader() (*layout.View, error) {
	lfanew, err := img.DOSHeader().Uint32("e_lfanew")
	if err != nil {
		return nil, fmt.Errorf("读取DOS头失败: %w", err)
	}
	return img.ntHeaders.At(img.base + uint64(lfanew)), nil
}

// FileHeader returns a view of the COFF file header.
func (img *Image) FileHeader() (*layout.View, error) {
	nt, err := img.NTHeader()
	if err != nil {
		return nil, err
	}
	return nt.Struct("FileHeader")
}

// OptionalHeader returns a view of the optional header.
func (img *Image) OptionalHeader() (*layout.View, error) {
	nt, err := img.NTHeader()
	if err != nil {
		return nil, err
	}
	return nt.Struct("OptionalHeader")
}

// optionalHeaderEnd returns the address just past the optional header as
// declared by SizeOfOptionalHeader, which is where the section table starts.
func (img *Image) optionalHeaderEnd() (uint64, error) {
	nt, err := img.NTHeader()
	if err != nil {
		return 0, err
	}
	fh, err := nt.Struct("FileHeader")
	if err != nil {
		return 0, err
	}
	size, err := fh.Uint16("SizeOfOptionalHeader")
	if err != nil {
		return 0, fmt.Errorf("读取文件头失败: %w", err)
	}
	optAddr, err := nt.FieldAddr("OptionalHeader")
	if err != nil {
		return 0, err
	}
	return optAddr + uint64(size), nil
}

// DataDirectory returns a view of the 16-entry directory table. It is
// located backwards from the end of the optional header rather than at a
// fixed offset, so non-canonical optional header sizes still decode.
func (img *Image) DataDirectory() (*layout.View, error) {
	end, err := img.optionalHeaderEnd()
	if err != nil {
		return nil, err
	}
	return img.dataDirectories.At(end - img.dataDirectories.Size()), nil
}

// Directory returns data directory entry index.
func (img *Image) Directory(index int) (DataDirectory, error) {
	dirs, err := img.DataDirectory()
	if err != nil {
		return DataDirectory{}, err
	}
	entry, err := dirs.Index("Entries", index)
	if err != nil {
		return DataDirectory{}, err
	}
	raw, err := entry.Raw()
	if err != nil {
		return DataDirectory{}, fmt.Errorf("读取数据目录 %d 失败: %w", index, err)
	}
	return DataDirectory{
		VirtualAddress: binary.LittleEndian.Uint32(raw[0:4]),
		Size:           binary.LittleEndian.Uint32(raw[4:8]),
	}, nil
}

// Validate checks the MZ and PE signatures.
func (img *Image) Validate() error {
	magic, err := img.DOSHeader().Bytes("e_magic")
	if err != nil {
		return fmt.Errorf("读取DOS头失败: %w", err)
	}
	if binary.LittleEndian.Uint16(magic) != IMAGE_DOS_SIGNATURE {
		return fmt.Errorf("DOS签名 0x%04X: %w", binary.LittleEndian.Uint16(magic), ErrBadSignature)
	}
	nt, err := img.NTHeader()
	if err != nil {
		return err
	}
	sig, err := nt.Uint32("Signature")
	if err != nil {
		return fmt.Errorf("读取NT头失败: %w", err)
	}
	if sig != IMAGE_NT_SIGNATURE {
		return fmt.Errorf("NT签名 0x%08X: %w", sig, ErrBadSignature)
	}
	return nil
}
