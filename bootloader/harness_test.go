package bootloader_test

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-meshdfu/bootloader"
	"github.com/moffa90/go-meshdfu/dfu"
	"github.com/moffa90/go-meshdfu/hal"
	"github.com/moffa90/go-meshdfu/mesh"
	"github.com/moffa90/go-meshdfu/sim"
)

// boot starts a rig and waits until the core sleeps in WaitForEvent.
func boot(t *testing.T, opts ...bootloader.Option) (*sim.Rig, func()) {
	t.Helper()

	r := sim.NewRig(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	result, err := r.Start(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return r.Core.Waits() > 0 }, time.Second, time.Millisecond)

	stop := func() {
		cancel()
		select {
		case err := <-result:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("Boot did not return after cancel")
		}
	}
	return r, stop
}

func advert(t *testing.T, handle uint16, data []byte) *mesh.AdvData {
	t.Helper()
	raw, err := mesh.NewAdvData(handle, data)
	require.NoError(t, err)
	adv, err := mesh.ParseAdvData(raw)
	require.NoError(t, err)
	return adv
}

func TestNewPanicsOnNil(t *testing.T) {
	r := sim.NewRig()
	ext := bootloader.Collaborators{Bootloader: r.Bootloader, Transport: r.Transport, RTC: r.RTC}
	hw := bootloader.Hardware{Clock: r.Clock, Signals: r.GPIO, Core: r.Core}

	require.Panics(t, func() { bootloader.New(bootloader.Hardware{}, ext) })
	require.Panics(t, func() { bootloader.New(hw, bootloader.Collaborators{}) })
	require.NotPanics(t, func() { bootloader.New(hw, ext) })
}

func TestBootOrder(t *testing.T) {
	r, stop := boot(t)
	stop()

	want := []string{
		"clock.trigger HFCLKSTART",
		"clock.event HFCLKSTARTED",
		"clock.trigger LFCLKSTART",
		"clock.event LFCLKSTARTED",
		"clock.trigger CAL",
		"clock.event DONE",
		"gpio.output 0+32",
		"gpio.clear 0xFFFFFFFF",
		"gpio.set 0x01E00000",
		"rtc.init",
		"transport.init 0x8E89BED6",
		"bootloader.info_init 0x0003FC00 0x0003F800",
		"bootloader.init",
		"bootloader.rx 16",
		"bootloader.rx 22",
		"bootloader.rx 22",
	}

	entries := r.Journal.Entries()
	require.GreaterOrEqual(t, len(entries), len(want))
	require.Equal(t, want, entries[:len(want)])
	for _, e := range entries[len(want):] {
		require.Equal(t, "core.wfe", e)
	}

	infoInits, inits := r.Bootloader.InitCounts()
	require.Equal(t, 1, infoInits)
	require.Equal(t, 1, inits)
	require.Equal(t, 1, r.RTC.Inits())
	require.Equal(t, mesh.AccessAddressBLEAdv, r.Transport.AccessAddress())
}

func TestBootWaitsForSlowClocks(t *testing.T) {
	r := sim.NewRig()
	r.Clock.Latency = 50

	ctx, cancel := context.WithCancel(context.Background())
	result, err := r.Start(ctx)
	require.NoError(t, err)
	cancel()
	<-result

	require.GreaterOrEqual(t, r.Clock.Polls(), 3*51)
}

func TestBootTwice(t *testing.T) {
	r, stop := boot(t)
	defer stop()

	require.ErrorIs(t, r.Harness.Boot(context.Background()), bootloader.ErrAlreadyBooted)
}

func TestStageCallback(t *testing.T) {
	var stages []bootloader.Stage
	var steps, totals []int
	_, stop := boot(t, bootloader.WithStageCallback(func(p bootloader.Progress) {
		stages = append(stages, p.Stage)
		steps = append(steps, p.Step)
		totals = append(totals, p.TotalSteps)
	}))
	stop()

	require.Equal(t, []bootloader.Stage{
		bootloader.StageClocks,
		bootloader.StageSignals,
		bootloader.StageRTC,
		bootloader.StageTransport,
		bootloader.StageInfo,
		bootloader.StageBootloader,
		bootloader.StageInject,
		bootloader.StageIdle,
	}, stages)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, steps)
	require.Equal(t, []int{8, 8, 8, 8, 8, 8, 8, 8}, totals)
}

func TestInjectionSequence(t *testing.T) {
	r, stop := boot(t)
	stop()

	calls := r.Bootloader.Calls()
	require.Len(t, calls, 3)
	for _, c := range calls {
		require.NoError(t, c.DecodeErr)
	}

	id := dfu.AppID{CompanyID: 0x59, AppID: 0x01, AppVersion: 0x02}

	require.Equal(t, dfu.LenFWID, calls[0].Length())
	require.Equal(t, &dfu.FWID{App: id, SoftDevice: 0x0064, Bootloader: 0x02}, calls[0].Packet)

	require.Equal(t, dfu.LenReadyApp, calls[1].Length())
	require.Equal(t, &dfu.StateReady{
		Authority:     1,
		DFUType:       dfu.DFUTypeApp,
		ID:            id,
		MIC:           0xBBBBBBBB,
		TransactionID: 0x12345678,
	}, calls[1].Packet)

	require.Equal(t, dfu.LenReadyApp, calls[2].Length())
	require.Equal(t, &dfu.DataStart{
		First:         true,
		Last:          true,
		Segment:       0,
		Length:        8,
		SingleBank:    true,
		StartAddress:  0x18000,
		TransactionID: 0x12345678,
	}, calls[2].Packet)
}

func TestInjectionTransactionConsistency(t *testing.T) {
	seq := bootloader.BootstrapSequence()
	require.Len(t, seq, 3)

	ready, ok := seq[1].Packet.(*dfu.StateReady)
	require.True(t, ok)
	start, ok := seq[2].Packet.(*dfu.DataStart)
	require.True(t, ok)
	require.Equal(t, ready.TransactionID, start.TransactionID)
	require.Equal(t, uint32(0x12345678), start.TransactionID)

	fwid, ok := seq[0].Packet.(*dfu.FWID)
	require.True(t, ok)
	require.Equal(t, fwid.App, ready.ID)
}

func TestInjectionOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    []bootloader.Option
		lengths []int
		types   []dfu.Type
	}{
		{
			name:    "default",
			lengths: []int{dfu.LenFWID, dfu.LenReadyApp, dfu.LenReadyApp},
			types:   []dfu.Type{dfu.TypeFWID, dfu.TypeState, dfu.TypeData},
		},
		{
			name:    "variant start length",
			opts:    []bootloader.Option{bootloader.WithStartLength(dfu.LenStart)},
			lengths: []int{dfu.LenFWID, dfu.LenReadyApp, dfu.LenStart},
			types:   []dfu.Type{dfu.TypeFWID, dfu.TypeState, dfu.TypeData},
		},
		{
			name:    "start length too short is ignored",
			opts:    []bootloader.Option{bootloader.WithStartLength(dfu.LenStart - 1)},
			lengths: []int{dfu.LenFWID, dfu.LenReadyApp, dfu.LenReadyApp},
			types:   []dfu.Type{dfu.TypeFWID, dfu.TypeState, dfu.TypeData},
		},
		{
			name:    "without ready",
			opts:    []bootloader.Option{bootloader.WithReadyPacket(false)},
			lengths: []int{dfu.LenFWID, dfu.LenReadyApp},
			types:   []dfu.Type{dfu.TypeFWID, dfu.TypeData},
		},
		{
			name: "disabled",
			opts: []bootloader.Option{bootloader.WithBootstrap(false)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, stop := boot(t, tt.opts...)
			stop()

			calls := r.Bootloader.Calls()
			require.Len(t, calls, len(tt.lengths))
			for i, c := range calls {
				require.Equal(t, tt.lengths[i], c.Length())
				require.Equal(t, tt.types[i], c.Packet.Type())
			}
		})
	}
}

func TestDispatcherThreshold(t *testing.T) {
	r := sim.NewRig(bootloader.WithBootstrap(false))

	forwarded := 0
	for handle := 0; handle <= 0xFFFF; handle++ {
		before := len(r.Bootloader.Calls())
		r.Harness.HandlePacket(advert(t, uint16(handle), []byte{0x01}))
		got := len(r.Bootloader.Calls()) - before

		if uint16(handle) > mesh.AppMaxHandle {
			require.Equal(t, 1, got, "handle 0x%04X", handle)
			forwarded++
		} else {
			require.Equal(t, 0, got, "handle 0x%04X", handle)
		}
	}

	require.Equal(t, 0xFFFF-int(mesh.AppMaxHandle), forwarded)
	stats := r.Harness.Stats()
	require.Equal(t, uint64(forwarded), stats.Forwarded)
	require.Equal(t, uint64(int(mesh.AppMaxHandle)+1), stats.Dropped)
}

func TestDispatcherForwardedLength(t *testing.T) {
	r := sim.NewRig(bootloader.WithBootstrap(false))

	for n := 0; n <= 32; n++ {
		adv := advert(t, uint16(dfu.TypeData), make([]byte, n))
		r.Harness.HandlePacket(adv)

		calls := r.Bootloader.Calls()
		last := calls[len(calls)-1]
		require.Equal(t, int(adv.Length)-3, last.Length())
		require.Equal(t, []byte{0xFC, 0xFF}, last.Data[:2], "payload starts at the handle")
	}
}

func TestDispatcherDropsTruncated(t *testing.T) {
	r := sim.NewRig(bootloader.WithBootstrap(false))

	raw := []byte{0x20, mesh.ServiceDataType, 0xE4, 0xFE, 0xFE, 0xFF, 0x00}
	adv, err := mesh.ParseAdvData(raw)
	require.NoError(t, err)

	r.Harness.HandlePacket(adv)
	r.Harness.HandlePacket(nil)
	require.Empty(t, r.Bootloader.Calls())
	require.Empty(t, r.GPIO.Ops())
	require.Equal(t, uint64(1), r.Harness.Stats().Dropped)
}

func TestDispatcherSignalBracket(t *testing.T) {
	dispatch := hal.Bit(bootloader.DefaultDispatchPin)

	var during []uint32
	r, stop := boot(t)
	defer stop()
	r.Bootloader.OnRx = func([]byte) {
		during = append(during, r.GPIO.Out()&dispatch)
	}
	opsBefore := len(r.GPIO.Ops())

	fwid := dfu.Encode(&dfu.FWID{SoftDevice: 0x64})
	raw, err := mesh.NewAdvData(uint16(dfu.TypeFWID), fwid[2:])
	require.NoError(t, err)
	require.NoError(t, r.Transport.Deliver(raw))

	require.Equal(t, []uint32{0}, during, "dispatch pin low during receive")
	require.Equal(t, dispatch, r.GPIO.Out()&dispatch, "dispatch pin high afterwards")

	ops := r.GPIO.Ops()[opsBefore:]
	require.Len(t, ops, 2)
	require.False(t, ops[0].Set)
	require.Equal(t, dispatch, ops[0].Mask)
	require.True(t, ops[1].Set)
	require.Equal(t, dispatch, ops[1].Mask)

	calls := r.Bootloader.Calls()
	require.Len(t, calls, 4)
	require.Equal(t, &dfu.FWID{SoftDevice: 0x64}, calls[3].Packet)
}

func TestDispatcherSignalRestoredOnPanic(t *testing.T) {
	r := sim.NewRig(bootloader.WithBootstrap(false))
	r.Bootloader.OnRx = func([]byte) { panic("receiver failure") }

	require.Panics(t, func() {
		r.Harness.HandlePacket(advert(t, uint16(dfu.TypeState), nil))
	})
	dispatch := hal.Bit(bootloader.DefaultDispatchPin)
	require.Equal(t, dispatch, r.GPIO.Out()&dispatch)
}

func TestIdleDoesNotPoll(t *testing.T) {
	r, stop := boot(t)
	defer stop()

	entries := r.Journal.Len()
	polls := r.Clock.Polls()
	time.Sleep(50 * time.Millisecond)

	require.Equal(t, entries, r.Journal.Len())
	require.Equal(t, polls, r.Clock.Polls())
	require.Equal(t, 1, r.Core.Waits())
	require.Len(t, r.Bootloader.Calls(), 3)
}

func TestIdleWakesPerEvent(t *testing.T) {
	r, stop := boot(t)
	defer stop()

	for i := 0; i < 3; i++ {
		raw, err := mesh.NewAdvData(0x0001, nil)
		require.NoError(t, err)
		require.NoError(t, r.Transport.Deliver(raw))
	}
	require.Eventually(t, func() bool { return r.Core.Waits() >= 2 }, time.Second, time.Millisecond)
	require.Len(t, r.Bootloader.Calls(), 3, "application traffic is not forwarded")
}

// trap runs fn in its own goroutine and reports whether it returned.
func trap(r *sim.Rig, fn func()) (returned bool) {
	r.Core.OnBreakpoint = runtime.Goexit
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
		returned = true
	}()
	<-done
	return returned
}

func TestAppErrorTrap(t *testing.T) {
	r := sim.NewRig(bootloader.WithBootstrap(false))

	returned := trap(r, func() { r.Harness.AppError(0x0D, 42, "main.c") })
	require.False(t, returned)
	require.True(t, r.Core.InterruptsDisabled())
	require.Equal(t, 1, r.Core.Breakpoints())
	require.True(t, r.Harness.Faulted())

	var fault *bootloader.RuntimeFaultError
	require.ErrorAs(t, r.Harness.Fault(), &fault)
	require.Equal(t, uint32(0x0D), fault.Code)
	require.Equal(t, uint32(42), fault.Line)
	require.Equal(t, "main.c", fault.File)

	entries := r.Journal.Len()
	r.Harness.HandlePacket(advert(t, uint16(dfu.TypeData), []byte{0x00, 0x00}))
	require.Empty(t, r.Bootloader.Calls())
	require.Equal(t, entries, r.Journal.Len(), "no side effects after the trap")
}

func TestHardFaultTrap(t *testing.T) {
	r := sim.NewRig(bootloader.WithBootstrap(false))

	returned := trap(r, func() { r.Harness.HardFault(0x00018A2C, 0xFFFFFFF9) })
	require.False(t, returned)
	require.Equal(t, 1, r.Core.Breakpoints())
	require.False(t, r.Core.InterruptsDisabled())

	fault := hal.Bit(bootloader.DefaultFaultPin)
	require.Equal(t, fault, r.GPIO.Out()&fault)

	var hf *bootloader.HardFaultError
	require.ErrorAs(t, r.Harness.Fault(), &hf)
	require.Equal(t, uint32(0x00018A2C), hf.PC)
	require.True(t, strings.Contains(hf.Error(), "lr=0xFFFFFFF9"))

	entries := r.Journal.Len()
	r.Harness.HandlePacket(advert(t, uint16(dfu.TypeFWID), nil))
	require.Empty(t, r.Bootloader.Calls())
	require.Equal(t, entries, r.Journal.Len())
}

func TestOptions(t *testing.T) {
	r := sim.NewRig()
	cfg := r.Harness.Config()
	require.Equal(t, bootloader.DefaultInfoAddress, cfg.InfoAddress)
	require.Equal(t, bootloader.DefaultPageSize, cfg.PageSize)
	require.Equal(t, mesh.AccessAddressBLEAdv, cfg.AccessAddress)
	require.Equal(t, bootloader.DefaultSignals(), cfg.Signals)
	require.Equal(t, dfu.LenReadyApp, cfg.StartLength)
	require.True(t, cfg.Bootstrap)
	require.True(t, cfg.ReadyPacket)

	custom := bootloader.Signals{Width: 16, Dispatch: 3, Fault: 4, Idle: []int{5}}
	r = sim.NewRig(
		bootloader.WithInfoAddress(0x7F000),
		bootloader.WithPageSize(0x1000),
		bootloader.WithAccessAddress(0x12345678),
		bootloader.WithSignals(custom),
	)
	cfg = r.Harness.Config()
	require.Equal(t, uint32(0x7F000), cfg.InfoAddress)
	require.Equal(t, uint32(0x1000), cfg.PageSize)
	require.Equal(t, uint32(0x12345678), cfg.AccessAddress)
	require.Equal(t, custom, cfg.Signals)

	r = sim.NewRig(
		bootloader.WithInfoAddress(0),
		bootloader.WithPageSize(0),
		bootloader.WithSignals(bootloader.Signals{Width: 8, Dispatch: 21}),
	)
	cfg = r.Harness.Config()
	require.Equal(t, bootloader.DefaultInfoAddress, cfg.InfoAddress)
	require.Equal(t, bootloader.DefaultPageSize, cfg.PageSize)
	require.Equal(t, bootloader.DefaultSignals(), cfg.Signals)
}

func TestCustomSignalsBoot(t *testing.T) {
	custom := bootloader.Signals{Width: 16, Dispatch: 3, Fault: 4, Idle: []int{3, 5}}
	r, stop := boot(t, bootloader.WithSignals(custom), bootloader.WithInfoAddress(0x1F000), bootloader.WithPageSize(0x1000))
	stop()

	entries := r.Journal.Entries()
	require.Contains(t, entries, "gpio.output 0+16")
	require.Contains(t, entries, "gpio.clear 0x0000FFFF")
	require.Contains(t, entries, "gpio.set 0x00000028")

	info, backup := r.Bootloader.InfoPages()
	require.Equal(t, uint32(0x1F000), info)
	require.Equal(t, uint32(0x1E000), backup)
}
