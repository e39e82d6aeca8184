package pe

import (
	"bytes"
	"debug/pe"
	"testing"

	"github.com/ZacharyZcR/rpe/internal/layout"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSectionPermissions(t *testing.T) {
	tests := []struct {
		name string
		char uint32
		want string
	}{
		{
			name: "Read only",
			char: pe.IMAGE_SCN_MEM_READ,
			want: "R--",
		},
		{
			name: "Read Write",
			char: pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_WRITE,
			want: "RW-",
		},
		{
			name: "Read Execute",
			char: pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_EXECUTE,
			want: "R-X",
		},
		{
			name: "Read Write Execute (RWX - suspicious)",
			char: pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_WRITE | pe.IMAGE_SCN_MEM_EXECUTE,
			want: "RWX",
		},
		{
			name: "Write Execute",
			char: pe.IMAGE_SCN_MEM_WRITE | pe.IMAGE_SCN_MEM_EXECUTE,
			want: "-WX",
		},
		{
			name: "No permissions",
			char: 0,
			want: "---",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := getSectionPermissions(tt.char)
			if got != tt.want {
				t.Errorf("getSectionPermissions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetSubsystem(t *testing.T) {
	tests := []struct {
		name      string
		subsystem uint16
		want      string
	}{
		{
			name:      "Windows GUI",
			subsystem: pe.IMAGE_SUBSYSTEM_WINDOWS_GUI,
			want:      "Windows GUI",
		},
		{
			name:      "Windows Console",
			subsystem: pe.IMAGE_SUBSYSTEM_WINDOWS_CUI,
			want:      "Windows 控制台",
		},
		{
			name:      "Native",
			subsystem: pe.IMAGE_SUBSYSTEM_NATIVE,
			want:      "Native",
		},
		{
			name:      "Unknown subsystem",
			subsystem: 0xFF,
			want:      "未知 (0xFF)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := getSubsystem(tt.subsystem)
			if got != tt.want {
				t.Errorf("getSubsystem() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetArchitecture(t *testing.T) {
	tests := []struct {
		name    string
		machine uint16
		want    string
	}{
		{name: "x86", machine: pe.IMAGE_FILE_MACHINE_I386, want: "x86 (32位)"},
		{name: "x64", machine: pe.IMAGE_FILE_MACHINE_AMD64, want: "x64 (64位)"},
		{name: "Unknown", machine: 0x1234, want: "未知 (0x1234)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getArchitecture(tt.machine); got != tt.want {
				t.Errorf("getArchitecture() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	for _, bc := range bitnessCases {
		t.Run(bc.name, func(t *testing.T) {
			ti := newTestImage(bc.bits)
			ti.addSection([]byte(".text"), 0x1000, 0x100, pe.IMAGE_SCN_MEM_READ|pe.IMAGE_SCN_MEM_EXECUTE)
			ti.addSection([]byte(".idata"), 0x2000, 0x1000, pe.IMAGE_SCN_MEM_READ|pe.IMAGE_SCN_MEM_WRITE)
			// Virtual size past the end of the mapping.
			ti.addSection([]byte(".bss"), 0x3800, 0x10000, pe.IMAGE_SCN_MEM_READ)
			ti.writeImports(testImportRVA, sampleDLLs())
			writeSampleExports(ti)

			info, err := NewAnalyzer(ti.open(t, WithTransformer(layout.ForHost(bc.bits)))).Analyze()
			require.NoError(t, err)

			assert.Equal(t, ti.base, info.Base)
			assert.Equal(t, ti.base, info.ImageBase)
			assert.Equal(t, bc.bits, info.Bitness)
			assert.Equal(t, layout.Remote, info.Mode)
			assert.Equal(t, ti.base+0x1000, info.EntryPoint)
			assert.Equal(t, uint32(testImgSize), info.SizeOfImage)
			assert.Equal(t, "Windows 控制台", info.Subsystem)
			assert.Equal(t, "test.dll", info.ExportName)
			if bc.bits == layout.Bits32 {
				assert.Equal(t, "x86 (32位)", info.Architecture)
			} else {
				assert.Equal(t, "x64 (64位)", info.Architecture)
			}

			require.Len(t, info.Sections, 3)
			assert.Equal(t, ".text", info.Sections[0].Name)
			assert.Equal(t, "R-X", info.Sections[0].Permissions)
			assert.Equal(t, "RW-", info.Sections[1].Permissions)
			assert.Greater(t, info.Sections[1].Entropy, 0.0)
			assert.Zero(t, info.Sections[2].Entropy)

			require.Len(t, info.Imports, 2)
			assert.Equal(t, "kernel32.dll", info.Imports[0].DLL)
			assert.Equal(t, "user32.dll", info.Imports[1].DLL)
			assert.Len(t, info.Imports[0].Functions, 3)

			assert.Len(t, info.Exports, 3)
		})
	}
}

func TestAnalyzeUnreadableDirectories(t *testing.T) {
	ti := newTestImage(layout.Bits32)
	ti.writeTLS(nil)
	// Callback array outside the mapping.
	ti.putPtr(testTLSRVA+12, 0x7FFF0000)

	var logs bytes.Buffer
	img := ti.open(t, WithLogger(zerolog.New(&logs)))

	info, err := NewAnalyzer(img).Analyze()
	require.NoError(t, err)
	assert.Nil(t, info.TLS)
	require.Len(t, info.Warnings, 1)
	assert.Contains(t, info.Warnings[0], "TLS目录不可读")
	assert.Contains(t, logs.String(), "TLS directory unreadable")

	require.NotNil(t, info.Relocations)
	assert.False(t, info.Relocations.HasRelocations)
}
