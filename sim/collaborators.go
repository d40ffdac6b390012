// Package sim provides recording stand-ins for the external collaborators of
// the boot harness (the DFU state machine, the mesh transport and the RTC)
// and a scenario runner that boots a harness on simulated hardware.
package sim

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/moffa90/go-meshdfu/bootloader"
	"github.com/moffa90/go-meshdfu/dfu"
	"github.com/moffa90/go-meshdfu/hal"
	"github.com/moffa90/go-meshdfu/hal/halsim"
	"github.com/moffa90/go-meshdfu/mesh"
)

// RxCall is one call into the receive entry point.
type RxCall struct {
	// Data is a copy of the buffer handed to Rx
	Data []byte

	// Packet is Data decoded, or nil if it did not decode
	Packet dfu.Packet

	// DecodeErr is the decode failure, if any
	DecodeErr error
}

// Length is the declared packet length.
func (c RxCall) Length() int {
	return len(c.Data)
}

// Bootloader records every call made into the DFU state machine.
type Bootloader struct {
	Journal *halsim.Journal

	// OnRx runs inside Rx after the call is recorded (optional)
	OnRx func(data []byte)

	mu         sync.Mutex
	calls      []RxCall
	infoPage   uint32
	backupPage uint32
	infoInits  int
	inits      int
}

func (b *Bootloader) InfoInit(infoPage, backupPage uint32) {
	b.mu.Lock()
	b.infoPage, b.backupPage = infoPage, backupPage
	b.infoInits++
	b.mu.Unlock()
	b.Journal.Record("bootloader.info_init 0x%08X 0x%08X", infoPage, backupPage)
}

func (b *Bootloader) Init() {
	b.mu.Lock()
	b.inits++
	b.mu.Unlock()
	b.Journal.Record("bootloader.init")
}

func (b *Bootloader) Rx(data []byte) {
	call := RxCall{Data: append([]byte(nil), data...)}
	call.Packet, call.DecodeErr = dfu.Decode(call.Data)

	b.mu.Lock()
	b.calls = append(b.calls, call)
	b.mu.Unlock()
	b.Journal.Record("bootloader.rx %d", len(data))

	if b.OnRx != nil {
		b.OnRx(data)
	}
}

// Calls returns a copy of every Rx call so far.
func (b *Bootloader) Calls() []RxCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RxCall, len(b.calls))
	copy(out, b.calls)
	return out
}

// InfoPages returns the pages passed to the last InfoInit.
func (b *Bootloader) InfoPages() (infoPage, backupPage uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.infoPage, b.backupPage
}

// InitCounts returns how many times InfoInit and Init were called.
func (b *Bootloader) InitCounts() (infoInits, inits int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.infoInits, b.inits
}

// ErrNotInitialised is returned by Transport.Deliver before Init.
var ErrNotInitialised = errors.New("sim: transport not initialised")

// Transport delivers raw advertisements to the registered callback, one at
// a time, and wakes Core the way a radio interrupt would.
type Transport struct {
	Journal *halsim.Journal

	// Core is woken after every delivery (optional)
	Core hal.Core

	mu            sync.Mutex
	deliver       sync.Mutex
	cb            bootloader.RxFunc
	accessAddress uint32
}

func (t *Transport) Init(cb bootloader.RxFunc, accessAddress uint32) {
	t.mu.Lock()
	t.cb, t.accessAddress = cb, accessAddress
	t.mu.Unlock()
	t.Journal.Record("transport.init 0x%08X", accessAddress)
}

// AccessAddress returns the access address passed to Init.
func (t *Transport) AccessAddress() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accessAddress
}

// Deliver parses raw and invokes the callback. Concurrent deliveries are
// serialised so the callback never runs re-entrantly.
func (t *Transport) Deliver(raw []byte) error {
	t.mu.Lock()
	cb := t.cb
	t.mu.Unlock()
	if cb == nil {
		return ErrNotInitialised
	}

	adv, err := mesh.ParseAdvData(raw)
	if err != nil {
		return errors.Wrap(err, "deliver")
	}

	t.deliver.Lock()
	cb(adv)
	t.deliver.Unlock()

	if t.Core != nil {
		t.Core.SendEvent()
	}
	return nil
}

// RTC records its initialisation.
type RTC struct {
	Journal *halsim.Journal

	mu    sync.Mutex
	inits int
}

func (r *RTC) Init() {
	r.mu.Lock()
	r.inits++
	r.mu.Unlock()
	r.Journal.Record("rtc.init")
}

// Inits returns how many times Init was called.
func (r *RTC) Inits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inits
}

var (
	_ bootloader.Bootloader = (*Bootloader)(nil)
	_ bootloader.Transport  = (*Transport)(nil)
	_ bootloader.RTC        = (*RTC)(nil)
)
