package bootloader

import (
	"errors"
	"fmt"
)

// ErrAlreadyBooted is returned when Boot is called more than once.
var ErrAlreadyBooted = errors.New("bootloader: already booted")

// RuntimeFaultError describes an entry into the runtime error trap.
type RuntimeFaultError struct {
	Code uint32
	Line uint32
	File string
}

func (e *RuntimeFaultError) Error() string {
	return fmt.Sprintf("runtime fault: error 0x%08X at %s:%d", e.Code, e.File, e.Line)
}

// HardFaultError describes an entry into the hard fault trap.
type HardFaultError struct {
	PC uint32
	LR uint32
}

func (e *HardFaultError) Error() string {
	return fmt.Sprintf("hard fault: pc=0x%08X lr=0x%08X", e.PC, e.LR)
}
