// Package dfu implements the packet encoding of the mesh DFU protocol.
//
// # Packet Overview
//
// Every packet starts with a 16-bit little-endian packet_type followed by a
// payload whose layout depends on the type:
//
//	FWID:        [TYPE(2)][SD(2)][BOOTLOADER(2)][COMPANY(4)][APP_ID(2)][APP_VER(4)]
//	STATE/READY: [TYPE(2)][DFU_TYPE(1)][FLAGS(1)][TID(4)][COMPANY(4)][APP_ID(2)][APP_VER(4)][MIC(4)]
//	DATA/START:  [TYPE(2)][SEGMENT=0(2)][TID(4)][START_ADDR(4)][LEN(3)][SIG_LEN(2)][FLAGS(1)]
//
// The packet_type values live above the mesh application handle range, so a
// mesh advertisement's handle field doubles as the packet_type of the DFU
// packet it carries.
//
// # Packet Types
//
// Packet is a closed sum type. Each concrete type reports its own encoded
// length, replacing hand-maintained length tables:
//
//	fwid := &dfu.FWID{App: dfu.AppID{CompanyID: 0x59, AppID: 1, AppVersion: 2}}
//	buf := dfu.Encode(fwid) // len(buf) == fwid.EncodedLen() == dfu.LenFWID
//
// A receiver may be handed a declared length larger than the variant; use
// EncodeTo to produce a zero-padded buffer of that length:
//
//	buf, err := dfu.EncodeTo(start, dfu.LenReadyApp)
//
// Decode accepts such padded buffers and ignores the tail.
package dfu
