package bootloader

import "time"

// Stage names a step of the boot sequence.
type Stage string

// Boot stages in the order they run.
const (
	StageClocks     Stage = "clocks"
	StageSignals    Stage = "signals"
	StageRTC        Stage = "rtc"
	StageTransport  Stage = "transport"
	StageInfo       Stage = "info"
	StageBootloader Stage = "bootloader"
	StageInject     Stage = "inject"
	StageIdle       Stage = "idle"
)

// bootStages is the number of stages Boot reports.
const bootStages = 8

// Progress contains information about the boot sequence.
// Passed to StageCallback after each stage completes.
type Progress struct {
	// Stage is the stage that just completed
	Stage Stage

	// Step is the 1-based index of Stage
	Step int

	// TotalSteps is the number of stages Boot reports
	TotalSteps int

	// ElapsedTime is the time elapsed since Boot started
	ElapsedTime time.Duration
}

// StageCallback is called after each boot stage completes.
// Implementations should return quickly; the boot sequence waits for them.
//
// Example:
//
//	h := bootloader.New(hw, ext,
//	    bootloader.WithStageCallback(func(p bootloader.Progress) {
//	        fmt.Printf("[%d/%d] %s\n", p.Step, p.TotalSteps, p.Stage)
//	    }),
//	)
type StageCallback func(Progress)

// Logger is an optional logging interface that can be provided to the harness.
// This allows integration with any logging framework; internal/mlog wraps zap.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
//
//	h := bootloader.New(hw, ext, bootloader.WithLogger(&StdLogger{}))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
