package pe

import (
	"bytes"
	"fmt"

	"github.com/ZacharyZcR/rpe/internal/memory"
)

// Section is one entry of the section table.
type Section struct {
	// Name is the raw 8-byte slot; it is not guaranteed to be text or
	// NUL-terminated.
	Name            [8]byte
	Start           uint64
	Size            uint32
	VirtualAddress  uint32
	Characteristics uint32
}

// String returns the section name up to the first NUL.
func (s Section) String() string {
	return memory.DecodeString(memory.TrimNUL(s.Name[:]))
}

// Contains reports whether addr lies inside the mapped section.
func (s Section) Contains(addr uint64) bool {
	return addr >= s.Start && addr-s.Start < uint64(s.Size)
}

// Sections returns the section table. It is read once and cached.
func (img *Image) Sections() ([]Section, error) {
	return img.sections.get(img.readSections)
}

func (img *Image) readSections() ([]Section, error) {
	fh, err := img.FileHeader()
	if err != nil {
		return nil, err
	}
	count, err := fh.Uint16("NumberOfSections")
	if err != nil {
		return nil, fmt.Errorf("读取节区数量失败: %w", err)
	}
	table, err := img.optionalHeaderEnd()
	if err != nil {
		return nil, err
	}

	sections := make([]Section, 0, count)
	for i := 0; i < int(count); i++ {
		addr := table + uint64(i)*img.sectionHeader.Size()
		s, err := img.readSection(addr)
		if err != nil {
			return nil, fmt.Errorf("读取第 %d 个节区头失败: %w", i, err)
		}
		sections = append(sections, s)
	}

	img.log.Debug().Int("count", len(sections)).Msg("section table read")
	return sections, nil
}

func (img *Image) readSection(addr uint64) (Section, error) {
	v := img.sectionHeader.At(addr)

	var s Section
	name, err := v.Bytes("Name")
	if err != nil {
		return s, err
	}
	copy(s.Name[:], name)

	va, err := v.Uint32("VirtualAddress")
	if err != nil {
		return s, err
	}
	size, err := v.Uint32("VirtualSize")
	if err != nil {
		return s, err
	}
	chars, err := v.Uint32("Characteristics")
	if err != nil {
		return s, err
	}

	s.VirtualAddress = va
	s.Start = img.base + uint64(va)
	s.Size = size
	s.Characteristics = chars
	return s, nil
}

// SectionByName returns the first section whose name matches.
func (img *Image) SectionByName(name string) (Section, bool, error) {
	sections, err := img.Sections()
	if err != nil {
		return Section{}, false, err
	}
	for _, s := range sections {
		if bytes.Equal(memory.TrimNUL(s.Name[:]), []byte(name)) {
			return s, true, nil
		}
	}
	return Section{}, false, nil
}
