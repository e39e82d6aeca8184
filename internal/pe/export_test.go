package pe

import (
	"errors"
	"testing"

	"github.com/ZacharyZcR/rpe/internal/layout"
	"github.com/ZacharyZcR/rpe/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testExportRVA  = 0x3000
	testExportSize = 0x200
	testForwardRVA = 0x3180
)

func writeSampleExports(ti *testImage) {
	ti.writeExports(testExportRVA, testExports{
		name:      "test.dll",
		base:      5,
		functions: []uint32{0x1100, 0x1200, testForwardRVA},
		names:     map[int]string{0: "Alpha", 2: "Gamma"},
		size:      testExportSize,
	})
	ti.putString(testForwardRVA, "NTDLL.RtlGamma")
}

func TestExports(t *testing.T) {
	for _, bc := range bitnessCases {
		t.Run(bc.name, func(t *testing.T) {
			ti := newTestImage(bc.bits)
			writeSampleExports(ti)
			img := ti.open(t)

			exports, err := img.Exports()
			require.NoError(t, err)
			assert.Equal(t, 3, exports.Len())

			// Every id and every name is published.
			assert.Len(t, exports.ByID, 3)
			assert.Len(t, exports.ByName, 2)
			assert.Contains(t, exports.ByName, "Alpha")
			assert.Contains(t, exports.ByName, "Gamma")

			alpha := exports.ByID[0]
			assert.Equal(t, "Alpha", alpha.Name)
			assert.Equal(t, ti.base+0x1100, alpha.Address)
			assert.Equal(t, uint32(5), alpha.Ordinal)
			assert.False(t, alpha.IsForwarder())

			unnamed := exports.ByID[1]
			assert.False(t, unnamed.Named)
			assert.Equal(t, ti.base+0x1200, unnamed.Address)
			assert.Equal(t, uint32(6), unnamed.Ordinal)
			assert.Equal(t, "#1", unnamed.String()[:2])

			gamma, ok := exports.Lookup("Gamma")
			require.True(t, ok)
			assert.Equal(t, 2, gamma.ID)
			assert.True(t, gamma.IsForwarder())
			assert.Equal(t, "NTDLL.RtlGamma", gamma.Forward)
			assert.Zero(t, gamma.Address)
			assert.Equal(t, "Gamma -> NTDLL.RtlGamma", gamma.String())
		})
	}
}

func TestExportForwarderBoundary(t *testing.T) {
	tests := []struct {
		name      string
		rva       uint32
		forwarder bool
	}{
		{name: "Last byte of directory", rva: testExportRVA + testExportSize - 4, forwarder: true},
		{name: "One past directory", rva: testExportRVA + testExportSize, forwarder: false},
		{name: "Before directory", rva: testExportRVA - 0x10, forwarder: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ti := newTestImage(layout.Bits64)
			ti.writeExports(testExportRVA, testExports{
				base:      1,
				functions: []uint32{tt.rva},
				names:     map[int]string{0: "F"},
				size:      testExportSize,
			})
			ti.putString(int(tt.rva), "X.Y")

			exports, err := ti.open(t).Exports()
			require.NoError(t, err)
			f := exports.ByID[0]
			assert.Equal(t, tt.forwarder, f.IsForwarder())
			if tt.forwarder {
				assert.Equal(t, "X.Y", f.Forward)
			} else {
				assert.Equal(t, ti.base+uint64(tt.rva), f.Address)
			}
		})
	}
}

func TestExportsMissingDirectory(t *testing.T) {
	for _, bc := range bitnessCases {
		t.Run(bc.name, func(t *testing.T) {
			img := newTestImage(bc.bits).open(t)

			dir, err := img.ExportDirectory()
			require.NoError(t, err)
			assert.Nil(t, dir)

			exports, err := img.Exports()
			require.NoError(t, err)
			assert.Zero(t, exports.Len())

			_, ok, err := img.ExportName()
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestExportName(t *testing.T) {
	tests := []struct {
		name   string
		module string
		wantOK bool
	}{
		{name: "Named module", module: "test.dll", wantOK: true},
		{name: "Zero name field", module: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ti := newTestImage(layout.Bits32)
			ti.writeExports(testExportRVA, testExports{name: tt.module, functions: []uint32{0x1000}})

			name, ok, err := ti.open(t).ExportName()
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.module, name)
		})
	}
}

func TestExportsIdempotent(t *testing.T) {
	ti := newTestImage(layout.Bits64)
	writeSampleExports(ti)
	img := ti.open(t)

	first, err := img.Exports()
	require.NoError(t, err)
	second, err := img.Exports()
	require.NoError(t, err)
	assert.Same(t, first, second)

	n1, _, err := img.ExportName()
	require.NoError(t, err)
	n2, _, err := img.ExportName()
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
}

func TestProcAddress(t *testing.T) {
	ti := newTestImage(layout.Bits32)
	writeSampleExports(ti)
	img := ti.open(t)

	tests := []struct {
		name     string
		export   string
		wantAddr uint64
		wantOK   bool
	}{
		{name: "Local export", export: "Alpha", wantAddr: ti.base + 0x1100, wantOK: true},
		{name: "Forwarded export", export: "Gamma"},
		{name: "Unknown export", export: "Delta"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, ok, err := img.ProcAddress(tt.export)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantAddr, addr)
		})
	}
}

func TestExportsCrossBitness(t *testing.T) {
	for _, bc := range bitnessCases {
		t.Run(bc.name, func(t *testing.T) {
			ti := newTestImage(bc.bits)
			writeSampleExports(ti)

			var results []*Exports
			for _, host := range []layout.Bitness{layout.Bits32, layout.Bits64} {
				exports, err := ti.open(t, WithTransformer(layout.ForHost(host))).Exports()
				require.NoError(t, err)
				results = append(results, exports)
			}
			assert.Equal(t, results[0], results[1])
		})
	}
}

func TestExportsReadFailureNotCached(t *testing.T) {
	ti := newTestImage(layout.Bits64)
	writeSampleExports(ti)
	img := ti.open(t)

	// AddressOfNames out of range.
	names := testExportRVA + 32
	orig := append([]byte(nil), ti.data[names:names+4]...)
	ti.putU32(names, 0x20000)

	_, err := img.Exports()
	var rerr *memory.ReadError
	require.True(t, errors.As(err, &rerr))

	// The export name is cached independently.
	name, ok, err := img.ExportName()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "test.dll", name)

	copy(ti.data[names:], orig)
	exports, err := img.Exports()
	require.NoError(t, err)
	assert.Equal(t, 3, exports.Len())
}

func TestExportsTableTooLarge(t *testing.T) {
	ti := newTestImage(layout.Bits32)
	writeSampleExports(ti)
	ti.putU32(testExportRVA+20, maxExports+1)

	_, err := ti.open(t).Exports()
	assert.True(t, errors.Is(err, ErrTableTooLarge))
}
