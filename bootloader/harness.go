package bootloader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moffa90/go-meshdfu/hal"
	"github.com/moffa90/go-meshdfu/mesh"
)

// Receiver is the DFU receive entry point of the external bootloader state
// machine. len(data) is the declared packet length. Rx must not retain data.
type Receiver interface {
	Rx(data []byte)
}

// Bootloader is the external DFU state machine.
type Bootloader interface {
	Receiver

	// InfoInit initialises bootloader info storage from its page and the
	// backup page preceding it
	InfoInit(infoPage, backupPage uint32)

	// Init starts the state machine; InfoInit must have run
	Init()
}

// RxFunc is the per-advertisement callback registered with a Transport.
type RxFunc func(adv *mesh.AdvData)

// Transport is the mesh radio transport. It invokes the registered callback
// at most once at a time.
type Transport interface {
	Init(cb RxFunc, accessAddress uint32)
}

// RTC is the real-time counter used by the state machine for timeouts.
type RTC interface {
	Init()
}

// Hardware groups the hal blocks driven directly by the harness.
type Hardware struct {
	Clock   hal.Clock
	Signals hal.SignalSink
	Core    hal.Core
}

// Collaborators groups the external modules the harness sequences.
type Collaborators struct {
	Bootloader Bootloader
	Transport  Transport
	RTC        RTC
}

// Stats counts dispatcher decisions.
type Stats struct {
	Forwarded uint64
	Dropped   uint64
}

// Harness runs the boot sequence of a mesh DFU bootloader: hardware
// bring-up, collaborator initialisation, the injected bootstrap packets and
// the idle loop. Its HandlePacket method is the mesh receive callback.
type Harness struct {
	hw     Hardware
	ext    Collaborators
	config Config

	booted    atomic.Bool
	faulted   atomic.Bool
	forwarded atomic.Uint64
	dropped   atomic.Uint64

	mu    sync.Mutex
	fault error
}

// New creates a new Harness over the given hardware and collaborators.
// Every field of hw and ext must be set.
//
// Example:
//
//	h := bootloader.New(
//	    bootloader.Hardware{Clock: clk, Signals: gpio, Core: core},
//	    bootloader.Collaborators{Bootloader: bl, Transport: tr, RTC: rtc},
//	    bootloader.WithLogger(logger),
//	)
func New(hw Hardware, ext Collaborators, opts ...Option) *Harness {
	if hw.Clock == nil || hw.Signals == nil || hw.Core == nil {
		panic("hardware blocks cannot be nil")
	}
	if ext.Bootloader == nil || ext.Transport == nil || ext.RTC == nil {
		panic("collaborators cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Harness{
		hw:     hw,
		ext:    ext,
		config: cfg,
	}
}

// Config returns the effective configuration.
func (h *Harness) Config() Config {
	return h.config
}

// Boot performs the complete boot sequence:
//  1. Start the HF and LF clocks and run one calibration
//  2. Initialise the diagnostic signal bank
//  3. Initialise the RTC
//  4. Initialise the transport with HandlePacket as receive callback
//  5. Initialise bootloader info storage
//  6. Initialise the bootloader state machine
//  7. Inject the bootstrap packets
//  8. Idle in WaitForEvent
//
// Boot only returns once ctx is done, with ctx.Err(). Clock bring-up spins
// without a timeout and ignores ctx.
func (h *Harness) Boot(ctx context.Context) error {
	if !h.booted.CompareAndSwap(false, true) {
		return ErrAlreadyBooted
	}

	startTime := time.Now()
	step := 0
	done := func(stage Stage) {
		step++
		h.reportProgress(Progress{
			Stage:       stage,
			Step:        step,
			TotalSteps:  bootStages,
			ElapsedTime: time.Since(startTime),
		})
	}

	h.startClocks()
	done(StageClocks)

	h.initSignals()
	done(StageSignals)

	h.ext.RTC.Init()
	done(StageRTC)

	h.ext.Transport.Init(h.HandlePacket, h.config.AccessAddress)
	done(StageTransport)

	info := h.config.InfoAddress
	h.ext.Bootloader.InfoInit(info, info-h.config.PageSize)
	done(StageInfo)

	h.ext.Bootloader.Init()
	done(StageBootloader)

	h.logInfo("bootloader initialised",
		"info_page", fmt.Sprintf("0x%08X", info),
		"access_address", fmt.Sprintf("0x%08X", h.config.AccessAddress),
	)

	if h.config.Bootstrap {
		h.Inject()
	}
	done(StageInject)

	done(StageIdle)
	return h.idle(ctx)
}

// startClocks brings up the oscillators. Each wait spins until the event
// is raised.
func (h *Harness) startClocks() {
	hal.Start(h.hw.Clock, hal.TaskHFClockStart, hal.EventHFClockStarted)
	hal.Start(h.hw.Clock, hal.TaskLFClockStart, hal.EventLFClockStarted)
	hal.Start(h.hw.Clock, hal.TaskCalibrate, hal.EventCalibrationDone)
}

// initSignals drives the signal bank as outputs, clears it and sets the
// idle pattern.
func (h *Harness) initSignals() {
	s := h.config.Signals
	h.hw.Signals.ConfigureOutputs(0, s.Width)
	h.hw.Signals.Clear(widthMask(s.Width))
	h.hw.Signals.Set(hal.Bits(s.Idle...))
}

// idle sleeps until ctx is done. Nothing is polled; the core is woken by
// hardware events and by ctx cancellation.
func (h *Harness) idle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, h.hw.Core.SendEvent)
	defer stop()

	for ctx.Err() == nil {
		h.hw.Core.WaitForEvent()
	}
	return ctx.Err()
}

// Stats returns a snapshot of the dispatcher counters.
func (h *Harness) Stats() Stats {
	return Stats{
		Forwarded: h.forwarded.Load(),
		Dropped:   h.dropped.Load(),
	}
}

func widthMask(width int) uint32 {
	if width >= 32 {
		return 0xFFFFFFFF
	}
	return hal.Bit(width) - 1
}

// reportProgress calls the stage callback if configured.
func (h *Harness) reportProgress(progress Progress) {
	if h.config.StageCallback != nil {
		h.config.StageCallback(progress)
	}
}

// logDebug logs a debug message if a logger is configured.
func (h *Harness) logDebug(msg string, keysAndValues ...interface{}) {
	if h.config.Logger != nil {
		h.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (h *Harness) logInfo(msg string, keysAndValues ...interface{}) {
	if h.config.Logger != nil {
		h.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (h *Harness) logError(msg string, keysAndValues ...interface{}) {
	if h.config.Logger != nil {
		h.config.Logger.Error(msg, keysAndValues...)
	}
}
