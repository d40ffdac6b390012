package sim

import (
	"context"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"github.com/moffa90/go-meshdfu/bootloader"
	"github.com/moffa90/go-meshdfu/hal/halsim"
)

// Board describes the simulated target.
type Board struct {
	InfoAddress   uint32   `yaml:"info_address"`
	PageSize      uint32   `yaml:"page_size"`
	AccessAddress uint32   `yaml:"access_address"`
	Signals       *Signals `yaml:"signals"`
}

// Signals is the YAML form of bootloader.Signals.
type Signals struct {
	Width    int   `yaml:"width"`
	Dispatch int   `yaml:"dispatch"`
	Fault    int   `yaml:"fault"`
	Idle     []int `yaml:"idle"`
}

// Scenario is a scripted boot: board parameters, bootstrap switches and
// the advertisements the radio delivers once the harness idles.
type Scenario struct {
	Board       Board    `yaml:"board"`
	Bootstrap   *bool    `yaml:"bootstrap"`
	ReadyPacket *bool    `yaml:"ready_packet"`
	StartLength int      `yaml:"start_length"`
	ClockDelay  int      `yaml:"clock_delay"`
	Adverts     []string `yaml:"adverts"`
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open scenario")
	}
	defer f.Close()

	return ParseScenario(f)
}

// ParseScenario decodes a scenario strictly: unknown keys are errors.
func ParseScenario(r io.Reader) (*Scenario, error) {
	sc := &Scenario{}
	dec := yaml.NewDecoder(r, yaml.Strict())
	if err := dec.Decode(sc); err != nil {
		return nil, errors.Wrap(err, "parse scenario")
	}
	if _, err := sc.rawAdverts(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Options translates the scenario into harness options.
func (sc *Scenario) Options() []bootloader.Option {
	var opts []bootloader.Option
	if sc.Board.PageSize != 0 {
		opts = append(opts, bootloader.WithPageSize(sc.Board.PageSize))
	}
	if sc.Board.InfoAddress != 0 {
		opts = append(opts, bootloader.WithInfoAddress(sc.Board.InfoAddress))
	}
	if sc.Board.AccessAddress != 0 {
		opts = append(opts, bootloader.WithAccessAddress(sc.Board.AccessAddress))
	}
	if s := sc.Board.Signals; s != nil {
		opts = append(opts, bootloader.WithSignals(bootloader.Signals{
			Width:    s.Width,
			Dispatch: s.Dispatch,
			Fault:    s.Fault,
			Idle:     s.Idle,
		}))
	}
	if sc.Bootstrap != nil {
		opts = append(opts, bootloader.WithBootstrap(*sc.Bootstrap))
	}
	if sc.ReadyPacket != nil {
		opts = append(opts, bootloader.WithReadyPacket(*sc.ReadyPacket))
	}
	if sc.StartLength != 0 {
		opts = append(opts, bootloader.WithStartLength(sc.StartLength))
	}
	return opts
}

func (sc *Scenario) rawAdverts() ([][]byte, error) {
	out := make([][]byte, 0, len(sc.Adverts))
	for i, s := range sc.Adverts {
		raw, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
		if err != nil {
			return nil, errors.Wrapf(err, "advert %d", i)
		}
		out = append(out, raw)
	}
	return out, nil
}

// Rig is a harness wired to simulated hardware and recording collaborators.
type Rig struct {
	Journal    *halsim.Journal
	Clock      *halsim.Clock
	GPIO       *halsim.GPIO
	Core       *halsim.Core
	Bootloader *Bootloader
	Transport  *Transport
	RTC        *RTC
	Harness    *bootloader.Harness

	idle     chan struct{}
	idleOnce sync.Once
}

// NewRig builds a Rig. Every block records into one shared journal. A
// stage callback passed in opts still runs.
func NewRig(opts ...bootloader.Option) *Rig {
	j := &halsim.Journal{}
	r := &Rig{
		Journal:    j,
		Clock:      &halsim.Clock{Journal: j},
		GPIO:       &halsim.GPIO{Journal: j},
		Core:       &halsim.Core{Journal: j},
		Bootloader: &Bootloader{Journal: j},
		RTC:        &RTC{Journal: j},
		idle:       make(chan struct{}),
	}
	r.Transport = &Transport{Journal: j, Core: r.Core}

	var probe bootloader.Config
	for _, opt := range opts {
		opt(&probe)
	}
	user := probe.StageCallback

	opts = append(opts, bootloader.WithStageCallback(func(p bootloader.Progress) {
		if user != nil {
			user(p)
		}
		if p.Stage == bootloader.StageIdle {
			r.idleOnce.Do(func() { close(r.idle) })
		}
	}))

	r.Harness = bootloader.New(
		bootloader.Hardware{Clock: r.Clock, Signals: r.GPIO, Core: r.Core},
		bootloader.Collaborators{Bootloader: r.Bootloader, Transport: r.Transport, RTC: r.RTC},
		opts...,
	)
	return r
}

// Start boots the harness in the background and returns once it idles.
// The returned channel yields Boot's result after ctx is done.
func (r *Rig) Start(ctx context.Context) (<-chan error, error) {
	result := make(chan error, 1)
	go func() {
		result <- r.Harness.Boot(ctx)
	}()

	select {
	case <-r.idle:
		return result, nil
	case err := <-result:
		return nil, errors.Wrap(err, "boot")
	}
}

// Result is the outcome of Run.
type Result struct {
	Calls     []RxCall
	Journal   []string
	Stats     bootloader.Stats
	Delivered int
}

// Run boots a harness for sc on simulated hardware, delivers every advert
// once the harness idles, then shuts it down.
func Run(ctx context.Context, sc *Scenario, opts ...bootloader.Option) (*Result, error) {
	adverts, err := sc.rawAdverts()
	if err != nil {
		return nil, err
	}

	r := NewRig(append(sc.Options(), opts...)...)
	r.Clock.Latency = sc.ClockDelay

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	booted, err := r.Start(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for i, raw := range adverts {
		if err := r.Transport.Deliver(raw); err != nil {
			cancel()
			<-booted
			return nil, errors.Wrapf(err, "advert %d", i)
		}
		res.Delivered++
	}

	cancel()
	if err := <-booted; !errors.Is(err, context.Canceled) {
		return nil, errors.Wrap(err, "shutdown")
	}

	res.Calls = r.Bootloader.Calls()
	res.Journal = r.Journal.Entries()
	res.Stats = r.Harness.Stats()
	return res, nil
}
