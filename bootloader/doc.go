// Package bootloader sequences the entry of a mesh DFU bootloader.
//
// # Overview
//
// The Harness runs the boot sequence once:
//   - Starting the HF and LF clocks and calibrating
//   - Initialising the diagnostic signal bank
//   - Initialising the RTC, the mesh transport and the DFU state machine
//   - Injecting a scripted FWID, STATE/READY, DATA/START sequence
//   - Idling in WaitForEvent
//
// Afterwards the only activity is the mesh receive callback, HandlePacket,
// which forwards advertisements on DFU handles to the state machine.
//
// # Basic Usage
//
// The caller provides the hal blocks and the external collaborators:
//
//	h := bootloader.New(
//	    bootloader.Hardware{Clock: clk, Signals: gpio, Core: core},
//	    bootloader.Collaborators{Bootloader: dfuMachine, Transport: radio, RTC: rtc},
//	)
//
//	// Returns only when ctx is done
//	err := h.Boot(ctx)
//
// # Configuration Options
//
// Customize behavior with functional options:
//
//	h := bootloader.New(hw, ext,
//	    bootloader.WithLogger(mlog.New("boot")),
//	    bootloader.WithStageCallback(stageFunc),
//	    bootloader.WithInfoAddress(0x3FC00),
//	    bootloader.WithPageSize(0x400),
//	    bootloader.WithStartLength(dfu.LenStart),
//	)
//
// # Bootstrap Sequence
//
// The injected packets form a fixed test vector, see BootstrapSequence.
// The DATA/START packet is declared with dfu.LenReadyApp by default, the
// length the nRF51 bootloader declares; WithStartLength(dfu.LenStart)
// declares the variant's own length instead.
//
// # Fault Traps
//
// AppError and HardFault never return. After either is entered, HandlePacket
// drops everything without touching the signal bank.
//
// # Error Handling
//
// The runtime contract is binary: halt in a trap or silently continue.
// Boot returns only ctx.Err() or ErrAlreadyBooted. The fault descriptions
// RuntimeFaultError and HardFaultError are logged and available via Fault.
package bootloader
