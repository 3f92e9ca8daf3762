package main

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// Rotary encoder sampler
// ============================================================================
// A dedicated goroutine polls the clock/data/button lines at a fixed, high
// cadence, far above the UI frame rate, and folds the raw levels into two
// pieces of shared state: a signed detent counter and a press latch. Both are
// drained with a single atomic swap, so no step or press is ever lost or
// double-counted across the sampler/UI boundary.
//
// All other decode state (quadrature history, debounce timestamps) is private
// to the goroutine; the decode itself lives in quadDecoder and buttonLatch,
// which are pure and stepped with explicit inputs so they can be tested
// without hardware or timing.
// ============================================================================

// quadTable maps (prevState<<2)|newState to a signed transition delta.
// States pack the (clk, dt) levels as clk<<1|dt. Only Gray-code-adjacent
// transitions contribute; bounces and skips decode to 0.
var quadTable = [16]int{
	0, -1, +1, 0,
	+1, 0, 0, -1,
	-1, 0, 0, +1,
	0, +1, -1, 0,
}

// quadDecoder accumulates quadrature transitions and converts them to
// detents at the configured pulses-per-detent ratio.
type quadDecoder struct {
	state int // last seen (clk<<1)|dt
	accum int // transitions not yet converted to detents
	ppr   int
}

func newQuadDecoder(clk, dt, ppr int) *quadDecoder {
	return &quadDecoder{state: (clk << 1) | dt, ppr: ppr}
}

// feed consumes one sample of the two lines and returns the detents it
// completed (usually 0, occasionally ±1, more if samples were coalesced).
// Conversion truncates toward zero so equal and opposite transition runs
// cancel exactly; Go integer division already truncates toward zero for
// negative operands, unlike floor division.
func (d *quadDecoder) feed(clk, dt int) int {
	s := (clk << 1) | dt
	idx := ((d.state << 2) | s) & 0xF
	d.state = s
	delta := quadTable[idx]
	if delta == 0 {
		return 0
	}
	d.accum += delta
	det := d.accum / d.ppr
	if det != 0 {
		d.accum -= det * d.ppr
	}
	return det
}

// buttonLatch debounces the raw switch level into at most one latched press
// per physical press. The level must sit stable at the active polarity for
// the full debounce window to latch, and must return to the released level
// before it may latch again, so holding the button never repeats.
type buttonLatch struct {
	activeLow   bool
	window      time.Duration
	last        int
	lastChange  time.Time
	waitRelease bool
}

func newButtonLatch(initial int, activeLow bool, window time.Duration, now time.Time) *buttonLatch {
	return &buttonLatch{
		activeLow:  activeLow,
		window:     window,
		last:       initial,
		lastChange: now,
	}
}

func (b *buttonLatch) active(level int) bool {
	if b.activeLow {
		return level == 0
	}
	return level == 1
}

// feed consumes one sample of the switch line and reports whether a
// debounced press completed on this sample.
func (b *buttonLatch) feed(level int, now time.Time) bool {
	if level != b.last {
		b.last = level
		b.lastChange = now
		if !b.active(level) {
			// Release edge observed; arm for the next press.
			b.waitRelease = false
		}
		return false
	}
	if b.waitRelease || !b.active(level) {
		return false
	}
	if now.Sub(b.lastChange) >= b.window {
		b.waitRelease = true
		return true
	}
	return false
}

// EncoderConfig carries everything the sampler needs to run.
type EncoderConfig struct {
	ClkPin int
	DtPin  int
	SwPin  int // negative disables the button

	ButtonActiveLow bool
	PPR             int
	PollInterval    time.Duration
	DebounceWindow  time.Duration
	MaxReadErrors   int
	Backend         Backend // force a specific backend; empty = fallback order
}

// Encoder owns the sampler goroutine and the two atomically drained outputs.
type Encoder struct {
	cfg    EncoderConfig
	reg    *PinRegistry
	logger *slog.Logger

	clk, dt, sw Pin
	backend     Backend

	steps    atomic.Int64
	press    atomic.Bool
	disabled atomic.Bool

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewEncoder claims the three lines, checks their resting levels and starts
// the sampler. The caller keeps running without an encoder if this fails.
func NewEncoder(cfg EncoderConfig, reg *PinRegistry, logger *slog.Logger) (*Encoder, error) {
	if cfg.PPR != 1 && cfg.PPR != 2 && cfg.PPR != 4 {
		return nil, fmt.Errorf("pulses-per-detent must be 1, 2 or 4, got %d", cfg.PPR)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}

	e := &Encoder{
		cfg:    cfg,
		reg:    reg,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	claim := func(line int) (Pin, error) {
		return reg.Claim(line, func(l int) Pin {
			p, b := openPinFallback(l, cfg.Backend, logger)
			e.backend = b
			return p
		})
	}

	var err error
	if e.clk, err = claim(cfg.ClkPin); err != nil {
		return nil, fmt.Errorf("claim clk: %w", err)
	}
	if e.dt, err = claim(cfg.DtPin); err != nil {
		e.releasePins()
		return nil, fmt.Errorf("claim dt: %w", err)
	}
	if cfg.SwPin >= 0 {
		if e.sw, err = claim(cfg.SwPin); err != nil {
			e.releasePins()
			return nil, fmt.Errorf("claim sw: %w", err)
		}
	}

	clk := e.readSoft(e.clk)
	dt := e.readSoft(e.dt)
	sw := 1
	if e.sw != nil {
		sw = e.readSoft(e.sw)
	}
	logger.Info("encoder initialized",
		"backend", e.backend, "clk", clk, "dt", dt, "sw", sw,
		"ppr", cfg.PPR, "poll", cfg.PollInterval)
	if clk == 0 && dt == 0 && sw == 0 {
		logger.Warn("all encoder lines read low at rest, check wiring and pull-ups")
	}

	go e.run(clk, dt, sw)
	return e, nil
}

// readSoft reads a pin, substituting the pulled-up idle level on error.
func (e *Encoder) readSoft(p Pin) int {
	v, err := p.Read()
	if err != nil {
		return 1
	}
	return v
}

func (e *Encoder) run(clk0, dt0, sw0 int) {
	defer close(e.done)

	dec := newQuadDecoder(clk0, dt0, e.cfg.PPR)
	var btn *buttonLatch
	if e.sw != nil {
		btn = newButtonLatch(sw0, e.cfg.ButtonActiveLow, e.cfg.DebounceWindow, time.Now())
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	errRun := 0
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
		}

		clk, err1 := e.clk.Read()
		dt, err2 := e.dt.Read()
		if err1 != nil || err2 != nil {
			// Fail soft: treat the lines as idle-high this sample, but a
			// sustained run of failures disables the sampler for good.
			errRun++
			if errRun > e.cfg.MaxReadErrors {
				e.softDisable(err1, err2)
				return
			}
			continue
		}
		errRun = 0

		if det := dec.feed(clk, dt); det != 0 {
			e.steps.Add(int64(det))
		}

		if btn != nil {
			lvl, err := e.sw.Read()
			if err != nil {
				errRun++
				if errRun > e.cfg.MaxReadErrors {
					e.softDisable(err, nil)
					return
				}
				continue
			}
			if btn.feed(lvl, time.Now()) {
				e.press.Store(true)
			}
		}
	}
}

func (e *Encoder) softDisable(errs ...error) {
	e.disabled.Store(true)
	e.steps.Store(0)
	e.press.Store(false)
	attrs := []any{"max_errors", e.cfg.MaxReadErrors}
	for _, err := range errs {
		if err != nil {
			attrs = append(attrs, "error", err)
			break
		}
	}
	e.logger.Error("encoder sampler disabled after repeated read failures", attrs...)
}

// Steps atomically drains the pending detents. Two back-to-back calls with
// no rotation in between return (n, 0).
func (e *Encoder) Steps() int {
	if e.disabled.Load() {
		return 0
	}
	return int(e.steps.Swap(0))
}

// Pressed atomically drains the press latch.
func (e *Encoder) Pressed() bool {
	if e.disabled.Load() {
		return false
	}
	return e.press.Swap(false)
}

// Disabled reports whether the sampler soft-disabled itself.
func (e *Encoder) Disabled() bool {
	return e.disabled.Load()
}

// BackendName reports which line backend won the fallback, for diagnostics.
func (e *Encoder) BackendName() string {
	return string(e.backend)
}

// Close stops the sampler, waits a bounded time for it to exit and releases
// the claimed lines either way. Safe to call more than once.
func (e *Encoder) Close() {
	e.closeOnce.Do(func() {
		close(e.stop)
		select {
		case <-e.done:
		case <-time.After(samplerJoinTimeout):
			e.logger.Warn("encoder sampler did not stop in time, releasing lines anyway")
		}
		e.releasePins()
	})
}

func (e *Encoder) releasePins() {
	if e.clk != nil {
		e.reg.Release(e.cfg.ClkPin)
	}
	if e.dt != nil {
		e.reg.Release(e.cfg.DtPin)
	}
	if e.sw != nil {
		e.reg.Release(e.cfg.SwPin)
	}
}
