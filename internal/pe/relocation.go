package pe

import (
	"encoding/binary"
	"fmt"
)

// RelocationInfo contains base relocation information.
type RelocationInfo struct {
	HasRelocations bool
	BlockCount     int
	TotalEntries   int
	// Types counts entries per relocation type.
	Types map[uint16]int
}

// Relocation types
const (
	IMAGE_REL_BASED_ABSOLUTE       = 0
	IMAGE_REL_BASED_HIGH           = 1
	IMAGE_REL_BASED_LOW            = 2
	IMAGE_REL_BASED_HIGHLOW        = 3
	IMAGE_REL_BASED_HIGHADJ        = 4
	IMAGE_REL_BASED_MIPS_JMPADDR   = 5
	IMAGE_REL_BASED_ARM_MOV32      = 5
	IMAGE_REL_BASED_THUMB_MOV32    = 7
	IMAGE_REL_BASED_MIPS_JMPADDR16 = 9
	IMAGE_REL_BASED_DIR64          = 10
)

// maxRelocationBlock bounds SizeOfBlock; a block covers one 4 KiB page.
const maxRelocationBlock = 0x10000

// Relocations walks the base relocation directory (entry 5).
func (img *Image) Relocations() (*RelocationInfo, error) {
	info := &RelocationInfo{Types: make(map[uint16]int)}

	dir, err := img.Directory(IMAGE_DIRECTORY_ENTRY_BASERELOC)
	if err != nil {
		return nil, err
	}
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return info, nil
	}
	info.HasRelocations = true

	headerSize := img.baseReloc.Size()
	cur := img.base + uint64(dir.VirtualAddress)
	end := cur + uint64(dir.Size)
	for cur+headerSize <= end {
		size, err := img.baseReloc.At(cur).Uint32("SizeOfBlock")
		if err != nil {
			return nil, fmt.Errorf("读取重定位块失败: %w", err)
		}
		if uint64(size) < headerSize || size > maxRelocationBlock {
			break
		}

		raw, err := img.space.ReadBytes(cur+headerSize, int(uint64(size)-headerSize))
		if err != nil {
			return nil, fmt.Errorf("读取重定位项失败: %w", err)
		}
		for i := 0; i+2 <= len(raw); i += 2 {
			entry := binary.LittleEndian.Uint16(raw[i:])
			info.Types[entry>>12]++
			info.TotalEntries++
		}
		info.BlockCount++
		cur += uint64(size)
	}

	img.log.Debug().
		Int("blocks", info.BlockCount).
		Int("entries", info.TotalEntries).
		Msg("relocations read")
	return info, nil
}

// GetRelocationTypeName returns the name of a relocation type.
func GetRelocationTypeName(relocType uint16) string {
	switch relocType {
	case IMAGE_REL_BASED_ABSOLUTE:
		return "ABSOLUTE"
	case IMAGE_REL_BASED_HIGH:
		return "HIGH"
	case IMAGE_REL_BASED_LOW:
		return "LOW"
	case IMAGE_REL_BASED_HIGHLOW:
		return "HIGHLOW"
	case IMAGE_REL_BASED_HIGHADJ:
		return "HIGHADJ"
	case IMAGE_REL_BASED_MIPS_JMPADDR:
		return "MIPS_JMPADDR/ARM_MOV32"
	case IMAGE_REL_BASED_THUMB_MOV32:
		return "THUMB_MOV32"
	case IMAGE_REL_BASED_MIPS_JMPADDR16:
		return "MIPS_JMPADDR16"
	case IMAGE_REL_BASED_DIR64:
		return "DIR64"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", relocType)
	}
}
