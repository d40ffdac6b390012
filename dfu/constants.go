package dfu

// Packet type codes. DFU packets share the mesh handle space, so every
// code sits above the application handle range.
const (
	// TypeRelayReq asks neighbours to relay a transfer
	TypeRelayReq Type = 0xFFF9

	// TypeDataRsp answers a missing-segment request
	TypeDataRsp Type = 0xFFFA

	// TypeDataReq requests a missing segment
	TypeDataReq Type = 0xFFFB

	// TypeData carries image segments; segment 0 is the START packet
	TypeData Type = 0xFFFC

	// TypeState advertises the DFU state of a node
	TypeState Type = 0xFFFD

	// TypeFWID advertises the firmware identity of a node
	TypeFWID Type = 0xFFFE
)

// DFU image types.
const (
	DFUTypeNone       DFUType = 0x00
	DFUTypeSoftDevice DFUType = 0x01
	DFUTypeBootloader DFUType = 0x02
	DFUTypeApp        DFUType = 0x04
)

// Encoded sizes in bytes.
const (
	// HeaderSize is the packet_type field
	HeaderSize = 2

	// AppIDSize is company_id(4) + app_id(2) + app_version(4)
	AppIDSize = 10

	// FWIDPayloadSize is sd(2) + bootloader(2) + app id
	FWIDPayloadSize = 4 + AppIDSize

	// ReadyAppPayloadSize is flags(2) + transaction_id(4) + app id + MIC(4)
	ReadyAppPayloadSize = 2 + 4 + AppIDSize + 4

	// StartPayloadSize is segment(2) + transaction_id(4) + start_address(4) +
	// length(3) + signature_length(2) + flags(1)
	StartPayloadSize = 2 + 4 + 4 + 3 + 2 + 1
)

// Declared packet lengths handed to the receive entry point along with a packet.
const (
	LenFWID     = HeaderSize + FWIDPayloadSize
	LenReadyApp = HeaderSize + ReadyAppPayloadSize
	LenStart    = HeaderSize + StartPayloadSize
)

// Field limits for bit-packed fields.
const (
	MaxAuthority   = 0x07
	MaxStartLength = 0xFFFFFF
)
