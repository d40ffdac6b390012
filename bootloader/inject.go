package bootloader

import (
	"github.com/moffa90/go-meshdfu/dfu"
)

// Bootstrap test vector. The MIC is a placeholder, not a real integrity tag.
const (
	BootstrapCompanyID     uint32 = 0x59
	BootstrapAppID         uint16 = 0x01
	BootstrapAppVersion    uint32 = 0x02
	BootstrapSoftDevice    uint16 = 0x0064
	BootstrapBootloader    uint16 = 0x02
	BootstrapMIC           uint32 = 0xBBBBBBBB
	BootstrapTransactionID uint32 = 0x12345678
	BootstrapStartAddress  uint32 = 0x18000

	// BootstrapLengthWords is the image length in 32-bit words
	BootstrapLengthWords uint32 = 8
)

// Injection is one packet of the bootstrap sequence with the length
// declared to the receive entry point.
type Injection struct {
	Packet dfu.Packet
	Length int
}

// BootstrapSequence returns the default bootstrap sequence: FWID,
// STATE/READY, DATA/START. The START packet is declared with
// dfu.LenReadyApp, as the nRF51 bootloader does.
func BootstrapSequence() []Injection {
	return bootstrapSequence(defaultConfig())
}

func bootstrapSequence(cfg Config) []Injection {
	id := dfu.AppID{
		CompanyID:  BootstrapCompanyID,
		AppID:      BootstrapAppID,
		AppVersion: BootstrapAppVersion,
	}

	seq := make([]Injection, 0, 3)
	seq = append(seq, Injection{
		Packet: &dfu.FWID{
			App:        id,
			SoftDevice: BootstrapSoftDevice,
			Bootloader: BootstrapBootloader,
		},
		Length: dfu.LenFWID,
	})

	if cfg.ReadyPacket {
		seq = append(seq, Injection{
			Packet: &dfu.StateReady{
				Authority:     1,
				DFUType:       dfu.DFUTypeApp,
				ID:            id,
				MIC:           BootstrapMIC,
				TransactionID: BootstrapTransactionID,
			},
			Length: dfu.LenReadyApp,
		})
	}

	seq = append(seq, Injection{
		Packet: &dfu.DataStart{
			Diff:            false,
			First:           true,
			Last:            true,
			Segment:         0,
			Length:          BootstrapLengthWords,
			SignatureLength: 0,
			SingleBank:      true,
			StartAddress:    BootstrapStartAddress,
			TransactionID:   BootstrapTransactionID,
		},
		Length: cfg.StartLength,
	})

	return seq
}

// Inject feeds the bootstrap sequence straight into the receive entry
// point, bypassing the radio. Boot calls it once after every collaborator
// is initialised; the receiver's handling of each packet is not inspected.
func (h *Harness) Inject() {
	for _, inj := range bootstrapSequence(h.config) {
		buf, err := dfu.EncodeTo(inj.Packet, inj.Length)
		if err != nil {
			h.logError("bootstrap packet not encodable",
				"type", inj.Packet.Type().String(),
				"error", err,
			)
			continue
		}

		h.logDebug("injecting bootstrap packet",
			"type", inj.Packet.Type().String(),
			"length", inj.Length,
		)
		h.ext.Bootloader.Rx(buf)
	}
}
