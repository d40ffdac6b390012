package dfu

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Flag bits of the DATA/START flags byte.
const (
	startFlagDiff       = 1 << 0
	startFlagSingleBank = 1 << 1
	startFlagFirst      = 1 << 2
	startFlagLast       = 1 << 3
)

// Flag bits of the second STATE flags byte.
const (
	stateAuthorityMask = 0x07
	stateFlagFlood     = 1 << 3
	stateFlagRelay     = 1 << 4
	stateDFUTypeMask   = 0x0F
)

// Validate checks that every bit-packed field fits its wire width.
func Validate(p Packet) error {
	switch v := p.(type) {
	case *StateReady:
		if v.Authority > MaxAuthority {
			return &FieldError{Field: "authority", Value: uint64(v.Authority), Max: MaxAuthority}
		}
		if v.DFUType > stateDFUTypeMask {
			return &FieldError{Field: "dfu_type", Value: uint64(v.DFUType), Max: stateDFUTypeMask}
		}
	case *DataStart:
		if v.Length > MaxStartLength {
			return &FieldError{Field: "length", Value: uint64(v.Length), Max: MaxStartLength}
		}
	case nil:
		return errors.New("dfu: nil packet")
	}
	return nil
}

// Encode serialises p into exactly p.EncodedLen() bytes.
// Bit-packed fields wider than their wire width are truncated; call
// Validate first when the values come from outside.
//
// Frame structure:
//
//	[TYPE_L][TYPE_H][PAYLOAD...]
func Encode(p Packet) []byte {
	b := make([]byte, 0, p.EncodedLen())
	b = binary.LittleEndian.AppendUint16(b, uint16(p.Type()))
	return p.appendPayload(b)
}

// EncodeTo serialises p into a buffer of the declared length n, zero-padding
// the tail. A declared length shorter than the variant is a contract
// violation and returns a *LengthError.
func EncodeTo(p Packet, n int) ([]byte, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	if n < p.EncodedLen() {
		return nil, &LengthError{PacketType: p.Type(), Want: p.EncodedLen(), Got: n}
	}

	b := make([]byte, n)
	copy(b, Encode(p))
	return b, nil
}

func appendAppID(b []byte, id AppID) []byte {
	b = binary.LittleEndian.AppendUint32(b, id.CompanyID)
	b = binary.LittleEndian.AppendUint16(b, id.AppID)
	return binary.LittleEndian.AppendUint32(b, id.AppVersion)
}

func (f *FWID) appendPayload(b []byte) []byte {
	b = binary.LittleEndian.AppendUint16(b, f.SoftDevice)
	b = binary.LittleEndian.AppendUint16(b, f.Bootloader)
	return appendAppID(b, f.App)
}

func (s *StateReady) appendPayload(b []byte) []byte {
	flags := s.Authority & stateAuthorityMask
	if s.Flood {
		flags |= stateFlagFlood
	}
	if s.RelayNode {
		flags |= stateFlagRelay
	}
	b = append(b, byte(s.DFUType)&stateDFUTypeMask, flags)
	b = binary.LittleEndian.AppendUint32(b, s.TransactionID)
	b = appendAppID(b, s.ID)
	return binary.LittleEndian.AppendUint32(b, s.MIC)
}

func (d *DataStart) appendPayload(b []byte) []byte {
	b = binary.LittleEndian.AppendUint16(b, d.Segment)
	b = binary.LittleEndian.AppendUint32(b, d.TransactionID)
	b = binary.LittleEndian.AppendUint32(b, d.StartAddress)
	b = append(b, byte(d.Length), byte(d.Length>>8), byte(d.Length>>16))
	b = binary.LittleEndian.AppendUint16(b, d.SignatureLength)

	var flags byte
	if d.Diff {
		flags |= startFlagDiff
	}
	if d.SingleBank {
		flags |= startFlagSingleBank
	}
	if d.First {
		flags |= startFlagFirst
	}
	if d.Last {
		flags |= startFlagLast
	}
	return append(b, flags)
}

func (r *Raw) appendPayload(b []byte) []byte {
	return append(b, r.Payload...)
}

// Decode parses a DFU packet. Bytes beyond the variant's encoded length are
// ignored, so zero-padded buffers produced by EncodeTo decode cleanly.
// DATA packets with a non-zero segment and all unknown types decode as *Raw.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return nil, errors.Wrapf(ErrShortPacket, "header needs %d bytes, got %d", HeaderSize, len(b))
	}

	t := Type(binary.LittleEndian.Uint16(b))
	body := b[HeaderSize:]

	switch t {
	case TypeFWID:
		if len(b) < LenFWID {
			return nil, &LengthError{PacketType: t, Want: LenFWID, Got: len(b)}
		}
		return &FWID{
			SoftDevice: binary.LittleEndian.Uint16(body[0:2]),
			Bootloader: binary.LittleEndian.Uint16(body[2:4]),
			App:        decodeAppID(body[4:]),
		}, nil

	case TypeState:
		if len(b) < LenReadyApp {
			return nil, &LengthError{PacketType: t, Want: LenReadyApp, Got: len(b)}
		}
		return &StateReady{
			DFUType:       DFUType(body[0] & stateDFUTypeMask),
			Authority:     body[1] & stateAuthorityMask,
			Flood:         body[1]&stateFlagFlood != 0,
			RelayNode:     body[1]&stateFlagRelay != 0,
			TransactionID: binary.LittleEndian.Uint32(body[2:6]),
			ID:            decodeAppID(body[6:16]),
			MIC:           binary.LittleEndian.Uint32(body[16:20]),
		}, nil

	case TypeData:
		if len(body) >= 2 && binary.LittleEndian.Uint16(body) == 0 {
			if len(b) < LenStart {
				return nil, &LengthError{PacketType: t, Want: LenStart, Got: len(b)}
			}
			flags := body[15]
			return &DataStart{
				Segment:         0,
				TransactionID:   binary.LittleEndian.Uint32(body[2:6]),
				StartAddress:    binary.LittleEndian.Uint32(body[6:10]),
				Length:          uint32(body[10]) | uint32(body[11])<<8 | uint32(body[12])<<16,
				SignatureLength: binary.LittleEndian.Uint16(body[13:15]),
				Diff:            flags&startFlagDiff != 0,
				SingleBank:      flags&startFlagSingleBank != 0,
				First:           flags&startFlagFirst != 0,
				Last:            flags&startFlagLast != 0,
			}, nil
		}
	}

	payload := make([]byte, len(body))
	copy(payload, body)
	return &Raw{PacketType: t, Payload: payload}, nil
}

func decodeAppID(b []byte) AppID {
	return AppID{
		CompanyID:  binary.LittleEndian.Uint32(b[0:4]),
		AppID:      binary.LittleEndian.Uint16(b[4:6]),
		AppVersion: binary.LittleEndian.Uint32(b[6:10]),
	}
}
