package pe

import (
	"encoding/binary"
	"fmt"
)

// maxExports bounds NumberOfFunctions and NumberOfNames.
const maxExports = 0x10000

// ExportDirectory represents the PE export directory table.
type ExportDirectory struct {
	Addr                  uint64 // Address of the directory itself.
	Size                  uint32 // Size declared by data directory entry 0.
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

// Contains reports whether addr falls inside the directory's virtual range,
// which is what marks an export as a forwarder.
func (d *ExportDirectory) Contains(addr uint64) bool {
	return addr >= d.Addr && addr-d.Addr < uint64(d.Size)
}

// Export is one entry of the export address table.
type Export struct {
	// ID is the index into the function table.
	ID int
	// Ordinal is ID biased by the directory Base.
	Ordinal uint32
	Name    string
	Named   bool
	// Address is the absolute address of the export; zero for forwarders.
	Address uint64
	// Forward is "Module.Function" for forwarded exports.
	Forward string
}

// IsForwarder reports whether the export redirects to another module.
func (e Export) IsForwarder() bool {
	return e.Forward != ""
}

func (e Export) String() string {
	name := e.Name
	if !e.Named {
		name = fmt.Sprintf("#%d", e.ID)
	}
	if e.IsForwarder() {
		return fmt.Sprintf("%s -> %s", name, e.Forward)
	}
	return fmt.Sprintf("%s @ 0x%X", name, e.Address)
}

// Exports publishes every export by id and, when it has one, by name.
type Exports struct {
	Entries []Export
	ByID    map[int]Export
	ByName  map[string]Export
}

func newExports(n int) *Exports {
	return &Exports{
		Entries: make([]Export, 0, n),
		ByID:    make(map[int]Export, n),
		ByName:  make(map[string]Export, n),
	}
}

func (e *Exports) add(exp Export) {
	e.Entries = append(e.Entries, exp)
	e.ByID[exp.ID] = exp
	if exp.Named {
		e.ByName[exp.Name] = exp
	}
}

// Len returns the number of exported functions.
func (e *Exports) Len() int {
	return len(e.Entries)
}

// Lookup finds an export by name.
func (e *Exports) Lookup(name string) (Export, bool) {
	exp, ok := e.ByName[name]
	return exp, ok
}

// ExportDirectory reads the export directory, or returns nil when data
// directory entry 0 is empty.
func (img *Image) ExportDirectory() (*ExportDirectory, error) {
	dir, err := img.Directory(IMAGE_DIRECTORY_ENTRY_EXPORT)
	if err != nil {
		return nil, err
	}
	if dir.VirtualAddress == 0 {
		return nil, nil
	}

	addr := img.base + uint64(dir.VirtualAddress)
	raw, err := img.exportDir.At(addr).Raw()
	if err != nil {
		return nil, fmt.Errorf("读取导出目录失败: %w", err)
	}
	r := img.exportDir.Resolved()
	u32 := func(field string) uint32 {
		off, _ := r.Offset(field)
		return binary.LittleEndian.Uint32(raw[off:])
	}

	return &ExportDirectory{
		Addr:                  addr,
		Size:                  dir.Size,
		Name:                  u32("Name"),
		Base:                  u32("Base"),
		NumberOfFunctions:     u32("NumberOfFunctions"),
		NumberOfNames:         u32("NumberOfNames"),
		AddressOfFunctions:    u32("AddressOfFunctions"),
		AddressOfNames:        u32("AddressOfNames"),
		AddressOfNameOrdinals: u32("AddressOfNameOrdinals"),
	}, nil
}

// Exports returns the export table. It is read once and cached; an image
// without an export directory has an empty table.
func (img *Image) Exports() (*Exports, error) {
	return img.exports.get(img.readExports)
}

func (img *Image) readExports() (*Exports, error) {
	dir, err := img.ExportDirectory()
	if err != nil {
		return nil, err
	}
	if dir == nil {
		return newExports(0), nil
	}
	if dir.NumberOfFunctions > maxExports || dir.NumberOfNames > maxExports {
		return nil, fmt.Errorf("%d 个函数, %d 个名称: %w", dir.NumberOfFunctions, dir.NumberOfNames, ErrTableTooLarge)
	}

	functions, err := img.readUint32s(dir.AddressOfFunctions, int(dir.NumberOfFunctions))
	if err != nil {
		return nil, fmt.Errorf("读取导出地址表失败: %w", err)
	}
	names, err := img.readUint32s(dir.AddressOfNames, int(dir.NumberOfNames))
	if err != nil {
		return nil, fmt.Errorf("读取导出名称表失败: %w", err)
	}
	ordinals, err := img.readUint16s(dir.AddressOfNameOrdinals, int(dir.NumberOfNames))
	if err != nil {
		return nil, fmt.Errorf("读取导出序号表失败: %w", err)
	}

	// The first name pointing at a function index wins.
	nameIndex := make(map[int]int, len(ordinals))
	for j, idx := range ordinals {
		if _, ok := nameIndex[int(idx)]; !ok {
			nameIndex[int(idx)] = j
		}
	}

	exports := newExports(len(functions))
	for i, rva := range functions {
		exp := Export{ID: i, Ordinal: dir.Base + uint32(i)}

		addr := img.base + uint64(rva)
		if dir.Contains(addr) {
			forward, err := img.space.ReadCString(addr)
			if err != nil {
				return nil, fmt.Errorf("读取转发导出 %d 失败: %w", i, err)
			}
			exp.Forward = forward
		} else {
			exp.Address = addr
		}

		if j, ok := nameIndex[i]; ok {
			name, err := img.readString(uint64(names[j]))
			if err != nil {
				return nil, fmt.Errorf("读取导出名称 %d 失败: %w", j, err)
			}
			exp.Name = name
			exp.Named = true
		}

		exports.add(exp)
	}

	img.log.Debug().
		Int("functions", len(functions)).
		Int("names", len(names)).
		Msg("export table read")
	return exports, nil
}

type exportName struct {
	name string
	ok   bool
}

// ExportName returns the module name recorded in the export directory.
// ok is false when there is no export directory or its Name field is zero.
func (img *Image) ExportName() (name string, ok bool, err error) {
	v, err := img.exportName.get(func() (exportName, error) {
		dir, err := img.ExportDirectory()
		if err != nil {
			return exportName{}, err
		}
		if dir == nil || dir.Name == 0 {
			return exportName{}, nil
		}
		name, err := img.readString(uint64(dir.Name))
		if err != nil {
			return exportName{}, fmt.Errorf("读取导出模块名失败: %w", err)
		}
		return exportName{name: name, ok: true}, nil
	})
	return v.name, v.ok, err
}

// ProcAddress resolves an exported name to its address. Forwarded exports
// have no address in this image and report ok as false.
func (img *Image) ProcAddress(name string) (addr uint64, ok bool, err error) {
	exports, err := img.Exports()
	if err != nil {
		return 0, false, err
	}
	exp, found := exports.Lookup(name)
	if !found || exp.IsForwarder() {
		return 0, false, nil
	}
	return exp.Address, true, nil
}

func (img *Image) readUint32s(rva uint32, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	raw, err := img.space.ReadBytes(img.base+uint64(rva), n*4)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return out, nil
}

func (img *Image) readUint16s(rva uint32, n int) ([]uint16, error) {
	if n == 0 {
		return nil, nil
	}
	raw, err := img.space.ReadBytes(img.base+uint64(rva), n*2)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return out, nil
}
