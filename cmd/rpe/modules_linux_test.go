//go:build linux

package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMaps = `00400000-00452000 r-xp 00000000 08:02 173521      /usr/bin/wine64-preloader
7f0000010000-7f0000011000 r--p 00000000 00:2a 4211        /home/u/.wine/drive_c/windows/system32/kernel32.dll
7f0000011000-7f00000a0000 r-xp 00001000 00:2a 4211        /home/u/.wine/drive_c/windows/system32/kernel32.dll
7f0000200000-7f0000201000 r--p 00001000 00:2a 4300        /home/u/.wine/drive_c/windows/system32/user32.dll
7f0000300000-7f0000301000 r--p 00000000 00:2a 4400        /home/u/My Apps/Tool.EXE
7ffd6b7e1000-7ffd6b802000 rw-p 00000000 00:00 0           [stack]
`

func TestFindMapping(t *testing.T) {
	tests := []struct {
		name   string
		module string
		want   uint64
		wantOK bool
	}{
		{name: "Exact name", module: "kernel32.dll", want: 0x7f0000010000, wantOK: true},
		{name: "Case insensitive", module: "KERNEL32.DLL", want: 0x7f0000010000, wantOK: true},
		{name: "Path with spaces", module: "tool.exe", want: 0x7f0000300000, wantOK: true},
		{name: "Only non-zero offset", module: "user32.dll"},
		{name: "Missing", module: "ntdll.dll"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := findMapping(strings.NewReader(sampleMaps), tt.module)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
