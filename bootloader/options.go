package bootloader

import (
	"github.com/moffa90/go-meshdfu/dfu"
	"github.com/moffa90/go-meshdfu/mesh"
)

// Board defaults for the nRF51 mesh bootloader.
const (
	// DefaultInfoAddress is the bootloader info page
	DefaultInfoAddress uint32 = 0x3FC00

	// DefaultPageSize is the flash page size
	DefaultPageSize uint32 = 0x400

	// DefaultDispatchPin is toggled low for the duration of each dispatch
	DefaultDispatchPin = 21

	// DefaultFaultPin is raised by the hard fault trap
	DefaultFaultPin = 7

	// DefaultSignalWidth is the number of GPIO pins driven as outputs
	DefaultSignalWidth = 32
)

// Signals maps diagnostic roles to GPIO pins.
type Signals struct {
	// Width is the number of pins, starting at 0, configured as outputs
	Width int

	// Dispatch is cleared before and set after every forwarded packet
	Dispatch int

	// Fault is set by the hard fault trap
	Fault int

	// Idle pins are set once the bank is initialised
	Idle []int
}

func (s Signals) valid() bool {
	if s.Width <= 0 || s.Width > 32 {
		return false
	}
	pins := append([]int{s.Dispatch, s.Fault}, s.Idle...)
	for _, p := range pins {
		if p < 0 || p >= s.Width {
			return false
		}
	}
	return true
}

// DefaultSignals returns the pin map of the reference board.
func DefaultSignals() Signals {
	return Signals{
		Width:    DefaultSignalWidth,
		Dispatch: DefaultDispatchPin,
		Fault:    DefaultFaultPin,
		Idle:     []int{21, 22, 23, 24},
	}
}

// Config holds the harness configuration.
type Config struct {
	// StageCallback is called after each boot stage (optional)
	StageCallback StageCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// AccessAddress is the radio access address the transport listens on
	AccessAddress uint32

	// InfoAddress is the bootloader info page; the page before it is the
	// info backup page
	InfoAddress uint32

	// PageSize is the flash page size
	PageSize uint32

	// Signals is the diagnostic pin map
	Signals Signals

	// Bootstrap enables the injected FWID, STATE/READY, DATA/START sequence
	Bootstrap bool

	// ReadyPacket includes the STATE/READY packet in the bootstrap sequence
	ReadyPacket bool

	// StartLength is the length declared for the DATA/START packet.
	// Default is dfu.LenReadyApp, the length the nRF51 bootloader declares.
	StartLength int
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		AccessAddress: mesh.AccessAddressBLEAdv,
		InfoAddress:   DefaultInfoAddress,
		PageSize:      DefaultPageSize,
		Signals:       DefaultSignals(),
		Bootstrap:     true,
		ReadyPacket:   true,
		StartLength:   dfu.LenReadyApp,
	}
}

// Option is a functional option for configuring the Harness.
type Option func(*Config)

// WithStageCallback sets a callback function to track boot stages.
//
// Example:
//
//	h := bootloader.New(hw, ext,
//	    bootloader.WithStageCallback(func(p bootloader.Progress) {
//	        fmt.Println(p.Stage)
//	    }),
//	)
func WithStageCallback(callback StageCallback) Option {
	return func(c *Config) {
		c.StageCallback = callback
	}
}

// WithLogger sets a logger for the harness operations.
//
// Example:
//
//	h := bootloader.New(hw, ext, bootloader.WithLogger(mlog.New("boot")))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithAccessAddress sets the radio access address passed to the transport.
func WithAccessAddress(addr uint32) Option {
	return func(c *Config) {
		c.AccessAddress = addr
	}
}

// WithInfoAddress sets the bootloader info page address. Zero is ignored.
func WithInfoAddress(addr uint32) Option {
	return func(c *Config) {
		if addr > 0 {
			c.InfoAddress = addr
		}
	}
}

// WithPageSize sets the flash page size. Zero is ignored.
//
// Example:
//
//	h := bootloader.New(hw, ext, bootloader.WithPageSize(0x1000))
func WithPageSize(size uint32) Option {
	return func(c *Config) {
		if size > 0 {
			c.PageSize = size
		}
	}
}

// WithSignals sets the diagnostic pin map. Maps with pins outside the
// configured width are ignored.
func WithSignals(s Signals) Option {
	return func(c *Config) {
		if s.valid() {
			c.Signals = s
		}
	}
}

// WithBootstrap enables or disables the injected bootstrap sequence.
// Default is true.
func WithBootstrap(enabled bool) Option {
	return func(c *Config) {
		c.Bootstrap = enabled
	}
}

// WithReadyPacket enables or disables the STATE/READY packet of the
// bootstrap sequence. Default is true.
func WithReadyPacket(enabled bool) Option {
	return func(c *Config) {
		c.ReadyPacket = enabled
	}
}

// WithStartLength sets the length declared for the DATA/START packet.
// Lengths shorter than dfu.LenStart are ignored.
//
// Example:
//
//	h := bootloader.New(hw, ext, bootloader.WithStartLength(dfu.LenStart))
func WithStartLength(n int) Option {
	return func(c *Config) {
		if n >= dfu.LenStart {
			c.StartLength = n
		}
	}
}
