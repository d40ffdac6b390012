package bootloader

import (
	"fmt"

	"github.com/moffa90/go-meshdfu/hal"
	"github.com/moffa90/go-meshdfu/mesh"
)

// HandlePacket is the mesh receive callback. Advertisements on handles
// above mesh.AppMaxHandle are forwarded to the bootloader receive entry
// point as a DFU packet starting at the handle field and spanning
// adv.Length-3 bytes; everything else is dropped silently.
//
// The dispatch signal is held low for the duration of the forward, so the
// low pulse width on that pin measures the receive cost. HandlePacket must
// not be called concurrently with itself and does not retain adv.
func (h *Harness) HandlePacket(adv *mesh.AdvData) {
	if adv == nil || h.faulted.Load() {
		return
	}

	if !adv.IsDFU() {
		h.drop(adv, "application handle")
		return
	}

	payload, ok := adv.Payload()
	if !ok {
		h.drop(adv, "truncated")
		return
	}

	mask := hal.Bit(h.config.Signals.Dispatch)
	h.hw.Signals.Clear(mask)
	defer h.hw.Signals.Set(mask)

	h.forwarded.Add(1)
	h.ext.Bootloader.Rx(payload)
}

func (h *Harness) drop(adv *mesh.AdvData, reason string) {
	h.dropped.Add(1)
	h.logDebug("dropped advertisement",
		"handle", fmt.Sprintf("0x%04X", adv.Handle),
		"length", adv.Length,
		"reason", reason,
	)
}
