package dfu

import "fmt"

// Type is the packet_type field of a DFU packet.
type Type uint16

func (t Type) String() string {
	switch t {
	case TypeFWID:
		return "FWID"
	case TypeState:
		return "STATE"
	case TypeData:
		return "DATA"
	case TypeDataReq:
		return "DATA_REQ"
	case TypeDataRsp:
		return "DATA_RSP"
	case TypeRelayReq:
		return "RELAY_REQ"
	default:
		return fmt.Sprintf("Type(0x%04X)", uint16(t))
	}
}

// DFUType identifies which image a transfer updates.
type DFUType uint8

func (t DFUType) String() string {
	switch t {
	case DFUTypeNone:
		return "none"
	case DFUTypeSoftDevice:
		return "softdevice"
	case DFUTypeBootloader:
		return "bootloader"
	case DFUTypeApp:
		return "app"
	default:
		return fmt.Sprintf("DFUType(0x%02X)", uint8(t))
	}
}

// Packet is a DFU protocol packet. The set of implementations is closed:
// FWID, StateReady, DataStart and Raw.
type Packet interface {
	// Type returns the packet_type carried on the wire
	Type() Type

	// EncodedLen returns the exact encoded size including the type header
	EncodedLen() int

	appendPayload(b []byte) []byte
}

// AppID identifies an application image.
type AppID struct {
	CompanyID  uint32
	AppID      uint16
	AppVersion uint32
}

// FWID advertises the firmware currently present on a node.
type FWID struct {
	App        AppID
	SoftDevice uint16
	Bootloader uint16
}

func (*FWID) Type() Type { return TypeFWID }
func (*FWID) EncodedLen() int { return LenFWID }

// StateReady is a STATE packet in the ready phase: a node with authority
// announces that a transfer of the identified image is about to start.
type StateReady struct {
	// Authority is a 3-bit priority; higher wins on conflict
	Authority uint8

	// Flood and RelayNode are advisory relay flags
	Flood     bool
	RelayNode bool

	DFUType       DFUType
	TransactionID uint32
	ID            AppID

	// MIC is the integrity tag of the image
	MIC uint32
}

func (*StateReady) Type() Type { return TypeState }
func (*StateReady) EncodedLen() int { return LenReadyApp }

// DataStart is segment 0 of a DATA transfer and declares the transfer shape.
type DataStart struct {
	Diff       bool
	SingleBank bool
	First      bool
	Last       bool

	// Segment is always 0 on the wire for a START packet
	Segment uint16

	// Length is the image length in 32-bit words (24 bits)
	Length uint32

	SignatureLength uint16
	StartAddress    uint32
	TransactionID   uint32
}

func (*DataStart) Type() Type { return TypeData }
func (*DataStart) EncodedLen() int { return LenStart }

// Raw holds any packet type this package does not decode field by field.
type Raw struct {
	PacketType Type
	Payload    []byte
}

func (r *Raw) Type() Type { return r.PacketType }
func (r *Raw) EncodedLen() int { return HeaderSize + len(r.Payload) }
