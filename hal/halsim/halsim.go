// Package halsim provides host-side simulations of the hal blocks. Every
// simulated block can write into a shared Journal so tests can assert the
// relative order of operations across blocks.
package halsim

import (
	"fmt"
	"sync"

	"github.com/moffa90/go-meshdfu/hal"
)

// Journal is an append-only, concurrency-safe log of operations.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// Record appends an entry. A nil Journal discards it.
func (j *Journal) Record(format string, args ...interface{}) {
	if j == nil {
		return
	}
	j.mu.Lock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
	j.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

// Len returns the number of recorded entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Clock simulates the clock controller. A triggered task raises its event
// after Latency polls; a task listed in Stuck never completes.
type Clock struct {
	Journal *Journal
	Latency int
	Stuck   map[hal.Task]bool

	mu      sync.Mutex
	pending map[hal.Event]int
	raised  map[hal.Event]bool
	polls   int
}

var taskEvents = map[hal.Task]hal.Event{
	hal.TaskHFClockStart: hal.EventHFClockStarted,
	hal.TaskLFClockStart: hal.EventLFClockStarted,
	hal.TaskCalibrate:    hal.EventCalibrationDone,
}

func (c *Clock) Trigger(task hal.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Journal.Record("clock.trigger %s", task)
	if c.Stuck[task] {
		return
	}
	if c.pending == nil {
		c.pending = make(map[hal.Event]int)
		c.raised = make(map[hal.Event]bool)
	}
	c.pending[taskEvents[task]] = c.Latency
}

func (c *Clock) Occurred(event hal.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.polls++
	if c.raised[event] {
		return true
	}
	left, ok := c.pending[event]
	if !ok {
		return false
	}
	if left > 0 {
		c.pending[event] = left - 1
		return false
	}
	delete(c.pending, event)
	c.raised[event] = true
	c.Journal.Record("clock.event %s", event)
	return true
}

// Polls returns how many times an event register was read.
func (c *Clock) Polls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polls
}

// GPIOOp is one write to the simulated GPIO bank.
type GPIOOp struct {
	Set  bool
	Mask uint32
}

func (o GPIOOp) String() string {
	if o.Set {
		return fmt.Sprintf("set 0x%08X", o.Mask)
	}
	return fmt.Sprintf("clear 0x%08X", o.Mask)
}

// GPIO simulates a 32-pin GPIO bank.
type GPIO struct {
	Journal *Journal

	mu      sync.Mutex
	outputs uint32
	out     uint32
	ops     []GPIOOp
}

func (g *GPIO) ConfigureOutputs(first, count int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for pin := first; pin < first+count && pin < 32; pin++ {
		g.outputs |= hal.Bit(pin)
	}
	g.Journal.Record("gpio.output %d+%d", first, count)
}

func (g *GPIO) Set(mask uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.out |= mask
	g.ops = append(g.ops, GPIOOp{Set: true, Mask: mask})
	g.Journal.Record("gpio.%s", GPIOOp{Set: true, Mask: mask})
}

func (g *GPIO) Clear(mask uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.out &^= mask
	g.ops = append(g.ops, GPIOOp{Mask: mask})
	g.Journal.Record("gpio.%s", GPIOOp{Mask: mask})
}

// Out returns the current output latch.
func (g *GPIO) Out() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.out
}

// Outputs returns the mask of pins configured as outputs.
func (g *GPIO) Outputs() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outputs
}

// Ops returns a copy of every write so far.
func (g *GPIO) Ops() []GPIOOp {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GPIOOp, len(g.ops))
	copy(out, g.ops)
	return out
}

// Core simulates the CPU core. WaitForEvent blocks until SendEvent; the
// event latch holds at most one pending event, as on Cortex-M.
type Core struct {
	Journal *Journal

	// OnBreakpoint runs after a breakpoint is recorded. Tests set it to
	// runtime.Goexit to unwind a trap that would otherwise spin forever.
	OnBreakpoint func()

	once        sync.Once
	events      chan struct{}
	mu          sync.Mutex
	irqDisabled bool
	breakpoints int
	waits       int
}

func (c *Core) init() {
	c.once.Do(func() { c.events = make(chan struct{}, 1) })
}

func (c *Core) DisableInterrupts() {
	c.mu.Lock()
	c.irqDisabled = true
	c.mu.Unlock()
	c.Journal.Record("core.cpsid")
}

func (c *Core) Breakpoint() {
	c.mu.Lock()
	c.breakpoints++
	hook := c.OnBreakpoint
	c.mu.Unlock()
	c.Journal.Record("core.bkpt")

	if hook != nil {
		hook()
	}
}

func (c *Core) WaitForEvent() {
	c.init()
	c.mu.Lock()
	c.waits++
	c.mu.Unlock()
	c.Journal.Record("core.wfe")
	<-c.events
}

func (c *Core) SendEvent() {
	c.init()
	select {
	case c.events <- struct{}{}:
	default:
	}
}

// InterruptsDisabled reports whether DisableInterrupts was called.
func (c *Core) InterruptsDisabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.irqDisabled
}

// Breakpoints returns how many breakpoints were hit.
func (c *Core) Breakpoints() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.breakpoints
}

// Waits returns how many times WaitForEvent was entered.
func (c *Core) Waits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waits
}

var (
	_ hal.Clock      = (*Clock)(nil)
	_ hal.SignalSink = (*GPIO)(nil)
	_ hal.Core       = (*Core)(nil)
)
