// Package hal abstracts the few hardware blocks the boot sequence touches:
// the clock controller, one GPIO bank used for diagnostic signals, and the
// CPU core itself.
//
// Register polling is expressed as Trigger/Occurred pairs and wrapped in the
// blocking WaitEvent helper, so the sequencing logic runs unchanged on a
// device or against the simulated blocks in hal/sim.
package hal

// Task is a clock controller task register.
type Task uint8

const (
	TaskHFClockStart Task = iota
	TaskLFClockStart
	TaskCalibrate
)

func (t Task) String() string {
	switch t {
	case TaskHFClockStart:
		return "HFCLKSTART"
	case TaskLFClockStart:
		return "LFCLKSTART"
	case TaskCalibrate:
		return "CAL"
	default:
		return "TASK?"
	}
}

// Event is a clock controller event register.
type Event uint8

const (
	EventHFClockStarted Event = iota
	EventLFClockStarted
	EventCalibrationDone
)

func (e Event) String() string {
	switch e {
	case EventHFClockStarted:
		return "HFCLKSTARTED"
	case EventLFClockStarted:
		return "LFCLKSTARTED"
	case EventCalibrationDone:
		return "DONE"
	default:
		return "EVENT?"
	}
}

// Clock is the clock controller.
type Clock interface {
	// Trigger starts a task
	Trigger(task Task)

	// Occurred reports whether an event has been raised
	Occurred(event Event) bool
}

// SignalSink is a GPIO bank driven as diagnostic outputs. Set and Clear
// touch only the bits in mask, like the OUTSET/OUTCLR registers.
type SignalSink interface {
	ConfigureOutputs(first, count int)
	Set(mask uint32)
	Clear(mask uint32)
}

// Core is the CPU core.
type Core interface {
	DisableInterrupts()

	// Breakpoint halts under a debugger; on a bare core it is a no-op
	Breakpoint()

	// WaitForEvent sleeps until the next hardware event
	WaitForEvent()

	// SendEvent raises an event that wakes WaitForEvent
	SendEvent()
}

// WaitEvent spins until event is raised. There is no timeout: a clock that
// never becomes ready hangs the boot and is left to the watchdog.
func WaitEvent(c Clock, event Event) {
	for !c.Occurred(event) {
	}
}

// Start triggers task and waits for event.
func Start(c Clock, task Task, event Event) {
	c.Trigger(task)
	WaitEvent(c, event)
}

// Bit returns the mask for a single pin.
func Bit(pin int) uint32 {
	return 1 << uint(pin)
}

// Bits returns the mask covering every listed pin.
func Bits(pins ...int) uint32 {
	var mask uint32
	for _, p := range pins {
		mask |= Bit(p)
	}
	return mask
}
