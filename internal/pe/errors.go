package pe

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownMachine matches every UnknownMachineError.
	ErrUnknownMachine = errors.New("未知的目标机器类型")
	// ErrBadSignature is returned by Validate when a header magic is wrong.
	ErrBadSignature = errors.New("PE签名无效")
	// ErrTableTooLarge is returned when a table walk exceeds its sanity bound.
	ErrTableTooLarge = errors.New("表项数量超出上限")
)

// UnknownMachineError is returned when the Machine field of the NT header
// is neither i386 nor AMD64, so the image bitness cannot be determined.
type UnknownMachineError struct {
	Machine uint16
}

func (e *UnknownMachineError) Error() string {
	return fmt.Sprintf("未知的PE目标机器类型 <0x%x>", e.Machine)
}

func (e *UnknownMachineError) Is(target error) bool {
	return target == ErrUnknownMachine
}
