package bootloader

import "github.com/moffa90/go-meshdfu/hal"

// AppError is the runtime error trap. It disables interrupts, halts at a
// breakpoint and spins forever; code, line and file are kept only for a
// debugger to inspect.
func (h *Harness) AppError(code, line uint32, file string) {
	h.enterFault(&RuntimeFaultError{Code: code, Line: line, File: file})

	h.hw.Core.DisableInterrupts()
	h.hw.Core.Breakpoint()
	for {
	}
}

// HardFault is the hard fault trap. It raises the fault signal, halts at a
// breakpoint and spins forever.
func (h *Harness) HardFault(pc, lr uint32) {
	h.enterFault(&HardFaultError{PC: pc, LR: lr})

	h.hw.Signals.Set(hal.Bit(h.config.Signals.Fault))
	h.hw.Core.Breakpoint()
	for {
	}
}

// Faulted reports whether a trap has been entered.
func (h *Harness) Faulted() bool {
	return h.faulted.Load()
}

// Fault returns the first trap entered, or nil.
func (h *Harness) Fault() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fault
}

func (h *Harness) enterFault(err error) {
	h.mu.Lock()
	if h.fault == nil {
		h.fault = err
	}
	h.mu.Unlock()
	h.faulted.Store(true)

	h.logError("fault trap entered", "error", err.Error())
}
