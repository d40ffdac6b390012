package dfu

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrShortPacket is returned when a buffer cannot hold the packet it claims to be.
var ErrShortPacket = errors.New("dfu: short packet")

// LengthError reports a declared or received length that cannot hold a packet variant.
type LengthError struct {
	PacketType Type
	Want       int
	Got        int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("dfu: %s packet needs %d bytes, got %d", e.PacketType, e.Want, e.Got)
}

// Unwrap lets errors.Is match ErrShortPacket.
func (e *LengthError) Unwrap() error {
	return ErrShortPacket
}

// FieldError reports a field value that does not fit its wire width.
type FieldError struct {
	Field string
	Value uint64
	Max   uint64
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("dfu: field %s value 0x%X exceeds maximum 0x%X", e.Field, e.Value, e.Max)
}
