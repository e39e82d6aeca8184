package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	require.NoError(t, os.WriteFile(path, []byte("MZ\x90\x00ntdll.dll\x00"), 0o600))

	dump, err := OpenDump(path, 0x7FF800000000)
	require.NoError(t, err)
	defer func() { _ = dump.Close() }()

	magic, err := dump.ReadBytes(0x7FF800000000, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("MZ"), magic)

	name, err := dump.ReadCString(0x7FF800000004)
	require.NoError(t, err)
	assert.Equal(t, "ntdll.dll", name)

	require.NoError(t, dump.Close())
	_, err = dump.ReadBytes(0x7FF800000000, 2)
	assert.Error(t, err)
}

func TestOpenDumpMissingFile(t *testing.T) {
	_, err := OpenDump(filepath.Join(t.TempDir(), "missing.bin"), 0x1000)
	assert.Error(t, err)
}
