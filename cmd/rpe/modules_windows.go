//go:build windows

package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

// findModule returns the load address of the module called name in pid.
func findModule(pid uint32, name string) (uint64, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, pid)
	if err != nil {
		return 0, fmt.Errorf("打开进程 %d 失败: %w", pid, err)
	}
	defer func() { _ = windows.CloseHandle(h) }()

	var modules [1024]windows.Handle
	var needed uint32
	size := uint32(len(modules)) * uint32(unsafe.Sizeof(modules[0]))
	if err := windows.EnumProcessModules(h, &modules[0], size, &needed); err != nil {
		return 0, fmt.Errorf("枚举模块失败: %w", err)
	}

	count := int(needed / uint32(unsafe.Sizeof(modules[0])))
	if count > len(modules) {
		count = len(modules)
	}
	for _, mod := range modules[:count] {
		var buf [windows.MAX_PATH]uint16
		if err := windows.GetModuleFileNameEx(h, mod, &buf[0], uint32(len(buf))); err != nil {
			continue
		}
		path := windows.UTF16ToString(buf[:])
		if strings.EqualFold(filepath.Base(path), name) {
			// A module handle is its load address.
			return uint64(mod), nil
		}
	}
	return 0, fmt.Errorf("进程 %d 中未找到模块", pid)
}
