//go:build linux

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
)

// findModule returns the lowest address at which a file called name is
// mapped in pid, which is how Wine lays out loaded PE modules.
func findModule(pid uint32, name string) (uint64, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	base, ok, err := findMapping(f, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("进程 %d 中未找到模块", pid)
	}
	return base, nil
}

// findMapping scans /proc/<pid>/maps lines for the offset-0 mapping of name.
func findMapping(r io.Reader, name string) (uint64, bool, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		// start-end perms offset dev inode path
		fields := strings.Fields(scanner.Text())
		if len(fields) < 6 {
			continue
		}
		file := strings.Join(fields[5:], " ")
		if !strings.EqualFold(path.Base(file), name) {
			continue
		}
		offset, err := strconv.ParseUint(fields[2], 16, 64)
		if err != nil || offset != 0 {
			continue
		}
		start, _, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		base, err := strconv.ParseUint(start, 16, 64)
		if err != nil {
			return 0, false, fmt.Errorf("解析映射地址 %s 失败: %w", fields[0], err)
		}
		return base, true, nil
	}
	return 0, false, scanner.Err()
}
