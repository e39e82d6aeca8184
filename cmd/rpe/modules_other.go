//go:build !windows && !linux

package main

import "github.com/ZacharyZcR/rpe/internal/memory"

func findModule(pid uint32, name string) (uint64, error) {
	return 0, memory.ErrUnsupportedPlatform
}
