package pe

import (
	"fmt"
	"strings"

	"github.com/ZacharyZcR/rpe/internal/layout"
)

// maxThunks bounds a single INT or IAT walk.
const maxThunks = 0x10000

// ImportDescriptor represents IMAGE_IMPORT_DESCRIPTOR.
type ImportDescriptor struct {
	Addr               uint64 // Address of the descriptor itself.
	OriginalFirstThunk uint32 // RVA to Import Name Table (INT), may be 0.
	Name               uint32 // RVA to DLL name.
	FirstThunk         uint32 // RVA to Import Address Table (IAT).
	DLL                string
}

// ImportEntry is one imported function, paired positionally between the
// INT and the IAT.
type ImportEntry struct {
	// Addr is the address of the IAT slot.
	Addr uint64
	// NonHookValue is the slot value captured when the table was walked.
	NonHookValue uint64
	// Ordinal is the import ordinal for ByOrdinal entries and -1 otherwise.
	Ordinal     int64
	Hint        uint16
	Name        string
	IsByOrdinal bool
	// Resolved is false when the descriptor has no INT, so only the slot
	// address is known.
	Resolved bool
}

func (e ImportEntry) String() string {
	switch {
	case !e.Resolved:
		return fmt.Sprintf("IAT_0x%X", e.Addr)
	case e.IsByOrdinal:
		return fmt.Sprintf("Ordinal_%d", e.Ordinal)
	}
	return e.Name
}

// Imports maps a lower-cased DLL name to its entries.
type Imports map[string][]ImportEntry

// importName is one decoded INT slot.
type importName struct {
	ordinal     int64
	hint        uint16
	name        string
	isByOrdinal bool
}

// DecodeThunk splits a thunk value into its ordinal, using the ordinal
// flag of the image bitness b.
func DecodeThunk(value uint64, b layout.Bitness) (ordinal uint64, isByOrdinal bool) {
	flag := ordinalFlag(b)
	if value&flag == 0 {
		return 0, false
	}
	return value & (flag - 1), true
}

// ImportDescriptors walks the descriptor array until a descriptor with a
// zero FirstThunk.
func (img *Image) ImportDescriptors() ([]ImportDescriptor, error) {
	dir, err := img.Directory(IMAGE_DIRECTORY_ENTRY_IMPORT)
	if err != nil {
		return nil, err
	}
	if dir.VirtualAddress == 0 {
		return nil, nil
	}

	var descriptors []ImportDescriptor
	addr := img.base + uint64(dir.VirtualAddress)
	for {
		desc, err := img.readImportDescriptor(addr)
		if err != nil {
			return nil, fmt.Errorf("读取导入描述符失败: %w", err)
		}
		if desc.FirstThunk == 0 {
			break
		}
		descriptors = append(descriptors, desc)
		addr += img.importDesc.Size()
	}
	return descriptors, nil
}

func (img *Image) readImportDescriptor(addr uint64) (ImportDescriptor, error) {
	v := img.importDesc.At(addr)
	desc := ImportDescriptor{Addr: addr}

	var err error
	if desc.FirstThunk, err = v.Uint32("FirstThunk"); err != nil || desc.FirstThunk == 0 {
		return desc, err
	}
	if desc.OriginalFirstThunk, err = v.Uint32("OriginalFirstThunk"); err != nil {
		return desc, err
	}
	if desc.Name, err = v.Uint32("Name"); err != nil {
		return desc, err
	}
	if desc.DLL, err = img.readString(uint64(desc.Name)); err != nil {
		return desc, fmt.Errorf("读取DLL名称失败: %w", err)
	}
	return desc, nil
}

// Imports returns the import table grouped by lower-cased DLL name. It is
// walked once and cached.
//
// Descriptors without an INT yield entries that carry only the IAT slot;
// naming them would require resolving the slot values against the exports
// of the modules they point into.
func (img *Image) Imports() (Imports, error) {
	return img.imports.get(img.readImports)
}

func (img *Image) readImports() (Imports, error) {
	descriptors, err := img.ImportDescriptors()
	if err != nil {
		return nil, err
	}

	imports := make(Imports, len(descriptors))
	for _, desc := range descriptors {
		entries, err := img.readIAT(desc)
		if err != nil {
			return nil, fmt.Errorf("读取 %s 的IAT失败: %w", desc.DLL, err)
		}

		if desc.OriginalFirstThunk != 0 {
			names, err := img.readINT(desc)
			if err != nil {
				return nil, fmt.Errorf("读取 %s 的INT失败: %w", desc.DLL, err)
			}
			// INT and IAT run in lockstep. IAT slots past the end of the INT
			// stay address-only; INT slots past the IAT have no live slot.
			for i := 0; i < min(len(names), len(entries)); i++ {
				n := names[i]
				entries[i].Resolved = true
				entries[i].Ordinal = n.ordinal
				entries[i].Hint = n.hint
				entries[i].Name = n.name
				entries[i].IsByOrdinal = n.isByOrdinal
			}
		}

		key := strings.ToLower(desc.DLL)
		imports[key] = append(imports[key], entries...)

		img.log.Debug().
			Str("dll", desc.DLL).
			Int("entries", len(entries)).
			Bool("int", desc.OriginalFirstThunk != 0).
			Msg("import descriptor walked")
	}
	return imports, nil
}

// readThunks reads pointer-sized slots starting at rva until a zero slot.
func (img *Image) readThunks(rva uint32, visit func(addr, value uint64) error) error {
	addr := img.base + uint64(rva)
	for i := 0; ; i++ {
		if i >= maxThunks {
			return fmt.Errorf("RVA 0x%X: %w", rva, ErrTableTooLarge)
		}
		value, err := img.thunk.At(addr).Uint("Ordinal")
		if err != nil {
			return err
		}
		if value == 0 {
			return nil
		}
		if err := visit(addr, value); err != nil {
			return err
		}
		addr += img.thunk.Size()
	}
}

// readINT decodes the Import Name Table of desc.
func (img *Image) readINT(desc ImportDescriptor) ([]importName, error) {
	var names []importName
	err := img.readThunks(desc.OriginalFirstThunk, func(_, value uint64) error {
		if ordinal, ok := DecodeThunk(value, img.bitness); ok {
			names = append(names, importName{ordinal: int64(ordinal), isByOrdinal: true})
			return nil
		}

		// value is AddressOfData: RVA of an IMAGE_IMPORT_BY_NAME.
		byName := img.importByName.At(img.base + value)
		hint, err := byName.Uint16("Hint")
		if err != nil {
			return err
		}
		nameAddr, err := byName.FieldAddr("Name")
		if err != nil {
			return err
		}
		name, err := img.space.ReadCString(nameAddr)
		if err != nil {
			return err
		}
		names = append(names, importName{ordinal: -1, hint: hint, name: name})
		return nil
	})
	return names, err
}

// readIAT walks the Import Address Table of desc, recording each slot and
// its current value.
func (img *Image) readIAT(desc ImportDescriptor) ([]ImportEntry, error) {
	var entries []ImportEntry
	err := img.readThunks(desc.FirstThunk, func(addr, value uint64) error {
		entries = append(entries, ImportEntry{Addr: addr, NonHookValue: value, Ordinal: -1})
		return nil
	})
	return entries, err
}

// CurrentValue reads the live value of the IAT slot of e.
func (img *Image) CurrentValue(e ImportEntry) (uint64, error) {
	return img.thunk.At(e.Addr).Uint("Ordinal")
}

// Redirected reports whether the IAT slot of e no longer holds the value
// captured when the imports were walked.
func (img *Image) Redirected(e ImportEntry) (bool, error) {
	cur, err := img.CurrentValue(e)
	if err != nil {
		return false, err
	}
	return cur != e.NonHookValue, nil
}
