package pe

import (
	"encoding/binary"
	"testing"

	"github.com/ZacharyZcR/rpe/internal/layout"
	"github.com/ZacharyZcR/rpe/internal/memory"
	"github.com/stretchr/testify/require"
)

const (
	testLfanew  = 0x80
	testBase32  = 0x00400000
	testBase64  = 0x7FF612340000
	testImgSize = 0x4000
)

// testImage assembles a mapped PE image byte by byte.
type testImage struct {
	bits    layout.Bitness
	base    uint64
	data    []byte
	optSize uint16
}

func newTestImage(bits layout.Bitness) *testImage {
	ti := &testImage{bits: bits, data: make([]byte, testImgSize)}

	ti.data[0], ti.data[1] = 'M', 'Z'
	ti.putU32(0x3C, testLfanew)
	ti.putU32(testLfanew, IMAGE_NT_SIGNATURE)

	if bits == layout.Bits32 {
		ti.base = testBase32
		ti.setMachine(IMAGE_FILE_MACHINE_I386)
		ti.setOptionalHeaderSize(224)
		ti.putU16(ti.optOff(), 0x10b)
		ti.putU32(ti.optOff()+28, testBase32) // ImageBase
	} else {
		ti.base = testBase64
		ti.setMachine(IMAGE_FILE_MACHINE_AMD64)
		ti.setOptionalHeaderSize(240)
		ti.putU16(ti.optOff(), 0x20b)
		ti.putU64(ti.optOff()+24, testBase64) // ImageBase
	}
	ti.putU32(ti.optOff()+16, 0x1000)      // AddressOfEntryPoint
	ti.putU32(ti.optOff()+56, testImgSize) // SizeOfImage
	ti.putU16(ti.optOff()+68, 3)           // Subsystem: console
	return ti
}

func (ti *testImage) fileOff() int { return testLfanew + 4 }
func (ti *testImage) optOff() int  { return testLfanew + 24 }
func (ti *testImage) optEnd() int  { return ti.optOff() + int(ti.optSize) }

func (ti *testImage) setMachine(m uint16) {
	ti.putU16(ti.fileOff(), m)
}

func (ti *testImage) setOptionalHeaderSize(n uint16) {
	ti.optSize = n
	ti.putU16(ti.fileOff()+16, n)
}

func (ti *testImage) numberOfSections() int {
	return int(binary.LittleEndian.Uint16(ti.data[ti.fileOff()+2:]))
}

func (ti *testImage) putU16(off int, v uint16) { binary.LittleEndian.PutUint16(ti.data[off:], v) }
func (ti *testImage) putU32(off int, v uint32) { binary.LittleEndian.PutUint32(ti.data[off:], v) }
func (ti *testImage) putU64(off int, v uint64) { binary.LittleEndian.PutUint64(ti.data[off:], v) }

// putPtr writes a pointer-sized value for the image bitness and returns its width.
func (ti *testImage) putPtr(off int, v uint64) int {
	if ti.bits == layout.Bits32 {
		ti.putU32(off, uint32(v))
		return 4
	}
	ti.putU64(off, v)
	return 8
}

func (ti *testImage) putString(off int, s string) int {
	copy(ti.data[off:], s)
	ti.data[off+len(s)] = 0
	return len(s) + 1
}

// setDirectory writes data directory entry i, counted back from the end of
// the optional header.
func (ti *testImage) setDirectory(i int, rva, size uint32) {
	off := ti.optEnd() - IMAGE_NUMBEROF_DIRECTORY_ENTRIES*8 + i*8
	ti.putU32(off, rva)
	ti.putU32(off+4, size)
}

func (ti *testImage) addSection(name []byte, rva, size, chars uint32) {
	n := ti.numberOfSections()
	off := ti.optEnd() + n*40
	copy(ti.data[off:off+8], name)
	ti.putU32(off+8, size)
	ti.putU32(off+12, rva)
	ti.putU32(off+36, chars)
	ti.putU16(ti.fileOff()+2, uint16(n+1))
}

type testThunk struct {
	ordinal   uint64
	byOrdinal bool
	hint      uint16
	name      string
}

type testDLL struct {
	name   string
	thunks []testThunk
	noINT  bool
}

// iatValue is the resolved address a loader would have stored in slot i.
func (ti *testImage) iatValue(dll, i int) uint64 {
	if ti.bits == layout.Bits32 {
		return 0x77000000 + uint64(dll)*0x10000 + uint64(i)*0x10
	}
	return 0x7FFA00000000 + uint64(dll)*0x10000 + uint64(i)*0x10
}

func (ti *testImage) ordinalFlag() uint64 {
	if ti.bits == layout.Bits32 {
		return IMAGE_ORDINAL_FLAG32
	}
	return IMAGE_ORDINAL_FLAG64
}

// writeImports lays out descriptors at rva followed by names, INTs, IATs
// and hint/name entries, then points directory entry 1 at them.
func (ti *testImage) writeImports(rva int, dlls []testDLL) {
	ps := ti.bits.PointerSize()
	cur := rva + (len(dlls)+1)*20

	for d, dll := range dlls {
		desc := rva + d*20

		nameRVA := cur
		cur += ti.putString(cur, dll.name)
		cur = (cur + 7) &^ 7

		intRVA := cur
		cur += (len(dll.thunks) + 1) * ps
		iatRVA := cur
		cur += (len(dll.thunks) + 1) * ps

		for i, th := range dll.thunks {
			var value uint64
			if th.byOrdinal {
				value = ti.ordinalFlag() | th.ordinal
			} else {
				value = uint64(cur)
				ti.putU16(cur, th.hint)
				cur += 2
				cur += ti.putString(cur, th.name)
				cur = (cur + 1) &^ 1
			}
			ti.putPtr(intRVA+i*ps, value)
			ti.putPtr(iatRVA+i*ps, ti.iatValue(d, i))
		}

		if !dll.noINT {
			ti.putU32(desc, uint32(intRVA))
		}
		ti.putU32(desc+12, uint32(nameRVA))
		ti.putU32(desc+16, uint32(iatRVA))
	}
	ti.setDirectory(IMAGE_DIRECTORY_ENTRY_IMPORT, uint32(rva), uint32((len(dlls)+1)*20))
}

type testExports struct {
	name      string
	base      uint32
	functions []uint32
	names     map[int]string
	size      uint32
}

// writeExports lays out an export directory at rva and returns the RVA of
// the first free byte after it.
func (ti *testImage) writeExports(rva int, exp testExports) int {
	var indices []int
	for i := range exp.functions {
		if _, ok := exp.names[i]; ok {
			indices = append(indices, i)
		}
	}

	funcs := rva + 40
	names := funcs + len(exp.functions)*4
	ords := names + len(indices)*4
	cur := ords + len(indices)*2

	if exp.name != "" {
		ti.putU32(rva+12, uint32(cur))
		cur += ti.putString(cur, exp.name)
	}
	ti.putU32(rva+16, exp.base)
	ti.putU32(rva+20, uint32(len(exp.functions)))
	ti.putU32(rva+24, uint32(len(indices)))
	ti.putU32(rva+28, uint32(funcs))
	ti.putU32(rva+32, uint32(names))
	ti.putU32(rva+36, uint32(ords))

	for i, f := range exp.functions {
		ti.putU32(funcs+i*4, f)
	}
	for j, idx := range indices {
		ti.putU32(names+j*4, uint32(cur))
		cur += ti.putString(cur, exp.names[idx])
		ti.putU16(ords+j*2, uint16(idx))
	}

	size := exp.size
	if size == 0 {
		size = uint32(cur - rva)
	}
	ti.setDirectory(IMAGE_DIRECTORY_ENTRY_EXPORT, uint32(rva), size)
	return cur
}

func (ti *testImage) space() *memory.Buffer {
	return memory.NewBuffer(ti.base, ti.data)
}

func (ti *testImage) open(t *testing.T, opts ...Option) *Image {
	t.Helper()
	img, err := New(ti.space(), ti.base, opts...)
	require.NoError(t, err)
	return img
}

var bitnessCases = []struct {
	name string
	bits layout.Bitness
}{
	{name: "32-bit image", bits: layout.Bits32},
	{name: "64-bit image", bits: layout.Bits64},
}
