package main

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// feedSequence feeds (clk, dt) level pairs and returns the summed detents.
func feedSequence(d *quadDecoder, pairs [][2]int) int {
	total := 0
	for _, p := range pairs {
		total += d.feed(p[0], p[1])
	}
	return total
}

// cwCycle is one full clockwise detent from the idle (1,1) state:
// 11 -> 01 -> 00 -> 10 -> 11.
var cwCycle = [][2]int{{0, 1}, {0, 0}, {1, 0}, {1, 1}}

// ccwCycle is the mirror image: 11 -> 10 -> 00 -> 01 -> 11.
var ccwCycle = [][2]int{{1, 0}, {0, 0}, {0, 1}, {1, 1}}

// TestQuadDecoder_FullCycleCW tests that one full Gray-code cycle at 4
// pulses per detent yields exactly one detent
func TestQuadDecoder_FullCycleCW(t *testing.T) {
	d := newQuadDecoder(1, 1, 4)
	if got := feedSequence(d, cwCycle); got != 1 {
		t.Errorf("expected 1 detent for full CW cycle, got %d", got)
	}
	if d.accum != 0 {
		t.Errorf("expected empty accumulator after full cycle, got %d", d.accum)
	}
}

// TestQuadDecoder_FullCycleCCW tests the opposite direction
func TestQuadDecoder_FullCycleCCW(t *testing.T) {
	d := newQuadDecoder(1, 1, 4)
	if got := feedSequence(d, ccwCycle); got != -1 {
		t.Errorf("expected -1 detent for full CCW cycle, got %d", got)
	}
}

// TestQuadDecoder_RepeatedSample tests that re-sampling an unchanged state
// contributes nothing (no false steps while the knob is at rest)
func TestQuadDecoder_RepeatedSample(t *testing.T) {
	d := newQuadDecoder(1, 1, 4)
	for i := 0; i < 100; i++ {
		if got := d.feed(1, 1); got != 0 {
			t.Fatalf("sample %d: expected 0 detents at rest, got %d", i, got)
		}
	}
}

// TestQuadDecoder_InvalidTransition tests that a two-bit skip (contact
// bounce or a missed sample) decodes to zero instead of a wrong direction
func TestQuadDecoder_InvalidTransition(t *testing.T) {
	d := newQuadDecoder(1, 1, 4)
	// 11 -> 00 flips both lines at once; not Gray-code adjacent.
	if got := d.feed(0, 0); got != 0 {
		t.Errorf("expected 0 detents for invalid transition, got %d", got)
	}
	if d.accum != 0 {
		t.Errorf("expected accumulator untouched, got %d", d.accum)
	}
}

// TestQuadDecoder_PPR tests detent conversion at each supported ratio
func TestQuadDecoder_PPR(t *testing.T) {
	tests := []struct {
		ppr    int
		cycles int
		want   int
	}{
		{1, 1, 4},  // every transition is a detent
		{2, 1, 2},  // every half cycle
		{4, 1, 1},  // every full cycle
		{4, 3, 3},  // multiple cycles accumulate
	}
	for _, tt := range tests {
		d := newQuadDecoder(1, 1, tt.ppr)
		got := 0
		for i := 0; i < tt.cycles; i++ {
			got += feedSequence(d, cwCycle)
		}
		if got != tt.want {
			t.Errorf("ppr=%d cycles=%d: expected %d detents, got %d", tt.ppr, tt.cycles, got, tt.want)
		}
	}
}

// TestQuadDecoder_DirectionReversal tests that equal and opposite partial
// rotations cancel exactly. This depends on truncation toward zero: a half
// cycle forward then a half cycle back must sum to zero detents, never -1.
func TestQuadDecoder_DirectionReversal(t *testing.T) {
	d := newQuadDecoder(1, 1, 4)
	total := 0
	// Half cycle forward: 11 -> 01 -> 00
	total += d.feed(0, 1)
	total += d.feed(0, 0)
	// Back the same way: 00 -> 01 -> 11
	total += d.feed(0, 1)
	total += d.feed(1, 1)
	if total != 0 {
		t.Errorf("expected reversal to cancel to 0 detents, got %d", total)
	}
	if d.accum != 0 {
		t.Errorf("expected accumulator back at 0, got %d", d.accum)
	}
}

// TestQuadDecoder_NegativeTruncation tests that three backward transitions
// at ppr=4 yield zero detents (not -1, which floor division would give)
func TestQuadDecoder_NegativeTruncation(t *testing.T) {
	d := newQuadDecoder(1, 1, 4)
	total := d.feed(1, 0) // -1
	total += d.feed(0, 0) // -1
	total += d.feed(0, 1) // -1
	if total != 0 {
		t.Errorf("expected 0 detents from 3/4 of a CCW cycle, got %d", total)
	}
	if d.accum != -3 {
		t.Errorf("expected accumulator -3, got %d", d.accum)
	}
	// The final transition completes the detent.
	if got := d.feed(1, 1); got != -1 {
		t.Errorf("expected -1 detent on cycle completion, got %d", got)
	}
}

// TestButtonLatch_StablePress tests that a level held at the active
// polarity for the debounce window latches exactly once
func TestButtonLatch_StablePress(t *testing.T) {
	now := time.Unix(1000, 0)
	b := newButtonLatch(1, true, 5*time.Millisecond, now)

	// Falling edge, then stable low.
	if b.feed(0, now.Add(1*time.Millisecond)) {
		t.Error("latched on the edge itself")
	}
	if b.feed(0, now.Add(3*time.Millisecond)) {
		t.Error("latched before the debounce window elapsed")
	}
	if !b.feed(0, now.Add(7*time.Millisecond)) {
		t.Error("expected latch after stable window")
	}
	// Still held: must not repeat.
	for i := 8; i < 200; i += 10 {
		if b.feed(0, now.Add(time.Duration(i)*time.Millisecond)) {
			t.Fatalf("latched again at t+%dms while still held", i)
		}
	}
}

// TestButtonLatch_RequiresRelease tests that a second press only latches
// after the line returned to the released level
func TestButtonLatch_RequiresRelease(t *testing.T) {
	now := time.Unix(1000, 0)
	b := newButtonLatch(1, true, 5*time.Millisecond, now)

	b.feed(0, now.Add(1*time.Millisecond))
	if !b.feed(0, now.Add(10*time.Millisecond)) {
		t.Fatal("expected first latch")
	}

	// Release, then press again.
	b.feed(1, now.Add(20*time.Millisecond))
	b.feed(0, now.Add(30*time.Millisecond))
	if b.feed(0, now.Add(32*time.Millisecond)) {
		t.Error("second press latched before its own debounce window")
	}
	if !b.feed(0, now.Add(40*time.Millisecond)) {
		t.Error("expected second latch after release and stable window")
	}
}

// TestButtonLatch_Bounce tests that chatter shorter than the window never
// latches
func TestButtonLatch_Bounce(t *testing.T) {
	now := time.Unix(1000, 0)
	b := newButtonLatch(1, true, 5*time.Millisecond, now)

	// Alternate every 2ms: never stable long enough.
	level := 0
	for i := 1; i < 40; i += 2 {
		if b.feed(level, now.Add(time.Duration(i)*time.Millisecond)) {
			t.Fatalf("latched on bounce at t+%dms", i)
		}
		level = 1 - level
	}
}

// TestButtonLatch_ActiveHigh tests the non-inverted polarity
func TestButtonLatch_ActiveHigh(t *testing.T) {
	now := time.Unix(1000, 0)
	b := newButtonLatch(0, false, 5*time.Millisecond, now)

	b.feed(1, now.Add(1*time.Millisecond))
	if !b.feed(1, now.Add(10*time.Millisecond)) {
		t.Error("expected latch at active-high polarity")
	}
	if b.feed(0, now.Add(20*time.Millisecond)) {
		t.Error("release must not latch")
	}
}

// scriptedPin replays a recorded level sequence, one entry per Read, and
// holds the last level afterwards.
type scriptedPin struct {
	mu     sync.Mutex
	levels []int
	pos    int
	closed bool
}

func (p *scriptedPin) Read() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.levels) == 0 {
		return 1, nil
	}
	if p.pos < len(p.levels)-1 {
		v := p.levels[p.pos]
		p.pos++
		return v, nil
	}
	return p.levels[len(p.levels)-1], nil
}

func (p *scriptedPin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// failingPin errors on every read.
type failingPin struct{}

func (failingPin) Read() (int, error) { return 1, errors.New("line gone") }
func (failingPin) Close() error       { return nil }

// newTestEncoder wires an Encoder around pre-claimed fake pins and starts
// the sampler, bypassing backend selection.
func newTestEncoder(t *testing.T, cfg EncoderConfig, clk, dt, sw Pin) (*Encoder, *PinRegistry) {
	t.Helper()
	reg := NewPinRegistry()
	mustClaim := func(line int, p Pin) Pin {
		got, err := reg.Claim(line, func(int) Pin { return p })
		if err != nil {
			t.Fatalf("claim line %d: %v", line, err)
		}
		return got
	}
	e := &Encoder{
		cfg:    cfg,
		reg:    reg,
		logger: testLogger(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	e.clk = mustClaim(cfg.ClkPin, clk)
	e.dt = mustClaim(cfg.DtPin, dt)
	if cfg.SwPin >= 0 && sw != nil {
		e.sw = mustClaim(cfg.SwPin, sw)
	}
	go e.run(1, 1, 1)
	return e, reg
}

func testEncoderConfig() EncoderConfig {
	return EncoderConfig{
		ClkPin:          23,
		DtPin:           24,
		SwPin:           25,
		ButtonActiveLow: true,
		PPR:             4,
		PollInterval:    time.Millisecond,
		DebounceWindow:  5 * time.Millisecond,
		MaxReadErrors:   10,
	}
}

// TestEncoder_DrainSteps tests that a scripted full cycle surfaces as one
// detent and that draining is destructive
func TestEncoder_DrainSteps(t *testing.T) {
	clk := &scriptedPin{levels: []int{0, 0, 1, 1}}
	dt := &scriptedPin{levels: []int{1, 0, 0, 1}}
	e, _ := newTestEncoder(t, testEncoderConfig(), clk, dt, &scriptedPin{levels: []int{1}})
	defer e.Close()

	// Give the 1ms sampler time to play the 4-sample script out.
	time.Sleep(100 * time.Millisecond)

	if got := e.Steps(); got != 1 {
		t.Errorf("expected 1 detent, got %d", got)
	}
	if got := e.Steps(); got != 0 {
		t.Errorf("expected second drain to return 0, got %d", got)
	}
}

// TestEncoder_SinglePressPerHold tests that holding the button latches
// exactly one press
func TestEncoder_SinglePressPerHold(t *testing.T) {
	// Button falls low and stays there.
	sw := &scriptedPin{levels: []int{1, 1, 0}}
	e, _ := newTestEncoder(t, testEncoderConfig(), &scriptedPin{levels: []int{1}}, &scriptedPin{levels: []int{1}}, sw)
	defer e.Close()

	time.Sleep(100 * time.Millisecond)

	if !e.Pressed() {
		t.Fatal("expected one latched press")
	}
	if e.Pressed() {
		t.Error("expected drain to clear the latch")
	}
	// Still held: no new press may appear.
	time.Sleep(50 * time.Millisecond)
	if e.Pressed() {
		t.Error("held button latched a second press")
	}
}

// TestEncoder_SoftDisable tests that sustained read failures disable the
// sampler and zero its outputs for good
func TestEncoder_SoftDisable(t *testing.T) {
	e, _ := newTestEncoder(t, testEncoderConfig(), failingPin{}, failingPin{}, failingPin{})
	defer e.Close()

	// 10 allowed errors at 1ms poll; well past that by 100ms.
	time.Sleep(100 * time.Millisecond)

	if !e.Disabled() {
		t.Fatal("expected sampler to soft-disable after repeated failures")
	}
	if got := e.Steps(); got != 0 {
		t.Errorf("disabled encoder returned %d steps", got)
	}
	if e.Pressed() {
		t.Error("disabled encoder reported a press")
	}
}

// TestEncoder_CloseReleasesPins tests that Close joins the sampler and
// frees the registry claims, and is safe to call twice
func TestEncoder_CloseReleasesPins(t *testing.T) {
	cfg := testEncoderConfig()
	e, reg := newTestEncoder(t, cfg, &scriptedPin{levels: []int{1}}, &scriptedPin{levels: []int{1}}, &scriptedPin{levels: []int{1}})

	e.Close()
	e.Close()

	for _, line := range []int{cfg.ClkPin, cfg.DtPin, cfg.SwPin} {
		if reg.Claimed(line) {
			t.Errorf("line %d still claimed after Close", line)
		}
	}

	select {
	case <-e.done:
	default:
		t.Error("sampler goroutine still running after Close")
	}
}

// TestNewEncoder_RejectsBadPPR tests construction-time validation
func TestNewEncoder_RejectsBadPPR(t *testing.T) {
	cfg := testEncoderConfig()
	cfg.PPR = 3
	cfg.Backend = BackendStub
	if _, err := NewEncoder(cfg, NewPinRegistry(), testLogger()); err == nil {
		t.Error("expected error for ppr=3")
	}
}

// TestNewEncoder_DuplicateClaim tests that a line already claimed in the
// registry fails construction instead of double-sampling the line
func TestNewEncoder_DuplicateClaim(t *testing.T) {
	cfg := testEncoderConfig()
	cfg.Backend = BackendStub
	reg := NewPinRegistry()
	if _, err := reg.Claim(cfg.ClkPin, func(int) Pin { return stubPin{} }); err != nil {
		t.Fatalf("pre-claim: %v", err)
	}
	if _, err := NewEncoder(cfg, reg, testLogger()); err == nil {
		t.Error("expected error when clk line is already claimed")
	}
}

// TestNewEncoder_StubBackend tests the end-to-end construction path on the
// inert backend: it must come up, read idle, and close cleanly
func TestNewEncoder_StubBackend(t *testing.T) {
	cfg := testEncoderConfig()
	cfg.Backend = BackendStub
	reg := NewPinRegistry()
	e, err := NewEncoder(cfg, reg, testLogger())
	if err != nil {
		t.Fatalf("NewEncoder on stub backend: %v", err)
	}
	defer e.Close()

	if e.BackendName() != string(BackendStub) {
		t.Errorf("expected stub backend, got %q", e.BackendName())
	}
	time.Sleep(20 * time.Millisecond)
	if got := e.Steps(); got != 0 {
		t.Errorf("stub backend produced %d steps", got)
	}
	if e.Pressed() {
		t.Error("stub backend produced a press")
	}
}
