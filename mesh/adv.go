// Package mesh describes the mesh advertisement records delivered by the
// radio transport.
//
// A mesh advertisement is a BLE service-data AD structure:
//
//	[LEN(1)][TYPE(1)][UUID(2)][HANDLE(2)][DATA...]
//
// LEN counts every byte after itself. The handle selects a logical channel;
// handles above AppMaxHandle carry DFU packets whose packet_type is the
// handle itself.
package mesh

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

const (
	// AppMaxHandle is the highest handle reserved for application traffic
	AppMaxHandle uint16 = 0xFFEF

	// AccessAddressBLEAdv is the BLE advertising access address
	AccessAddressBLEAdv uint32 = 0x8E89BED6

	// ServiceDataType is the AD type of a 16-bit UUID service data structure
	ServiceDataType = 0x16

	// MeshUUID is the service UUID of mesh advertisements
	MeshUUID uint16 = 0xFEE4

	// HeaderSize covers LEN, TYPE, UUID and HANDLE
	HeaderSize = 6

	// payloadOffset is where the handle field starts
	payloadOffset = 4

	// lengthOverhead is TYPE + UUID, counted in LEN but not in the payload
	lengthOverhead = 3
)

// ErrMalformed is returned for advertisements that cannot hold a mesh header.
var ErrMalformed = errors.New("mesh: malformed advertisement")

// AdvData is one received mesh advertisement. It aliases the transport's
// buffer and is valid only for the duration of the receive callback.
type AdvData struct {
	Length uint8
	Type   uint8
	UUID   uint16
	Handle uint16

	raw []byte
}

// ParseAdvData parses a raw advertisement structure without copying it.
func ParseAdvData(raw []byte) (*AdvData, error) {
	if len(raw) < HeaderSize {
		return nil, errors.Wrapf(ErrMalformed, "got %d bytes, need %d", len(raw), HeaderSize)
	}

	return &AdvData{
		Length: raw[0],
		Type:   raw[1],
		UUID:   binary.LittleEndian.Uint16(raw[2:4]),
		Handle: binary.LittleEndian.Uint16(raw[4:6]),
		raw:    raw,
	}, nil
}

// IsDFU reports whether the handle lies above the application range.
func (a *AdvData) IsDFU() bool {
	return a.Handle > AppMaxHandle
}

// PayloadLen is the length of the payload starting at the handle field.
func (a *AdvData) PayloadLen() int {
	return int(a.Length) - lengthOverhead
}

// Payload returns the PayloadLen bytes starting at the handle field. ok is
// false when LEN is too small to cover the handle or exceeds the buffer.
func (a *AdvData) Payload() (payload []byte, ok bool) {
	n := a.PayloadLen()
	if n < 2 || payloadOffset+n > len(a.raw) {
		return nil, false
	}
	return a.raw[payloadOffset : payloadOffset+n], true
}

func (a *AdvData) String() string {
	return fmt.Sprintf("adv(len=%d type=0x%02X uuid=0x%04X handle=0x%04X)", a.Length, a.Type, a.UUID, a.Handle)
}

// NewAdvData builds a raw mesh advertisement carrying payload on handle.
func NewAdvData(handle uint16, data []byte) ([]byte, error) {
	length := lengthOverhead + 2 + len(data)
	if length > 0xFF {
		return nil, errors.Errorf("mesh: payload of %d bytes does not fit an advertisement", len(data))
	}

	raw := make([]byte, 0, 1+length)
	raw = append(raw, byte(length), ServiceDataType)
	raw = binary.LittleEndian.AppendUint16(raw, MeshUUID)
	raw = binary.LittleEndian.AppendUint16(raw, handle)
	return append(raw, data...), nil
}
