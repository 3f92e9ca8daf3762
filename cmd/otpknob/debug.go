package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ============================================================================
// Hardware debug modes
// ============================================================================
// Wiring aids for bring-up: -dump-levels prints raw line levels for a few
// seconds (turn the knob, watch the bits flip), -monitor runs the full
// sampler and prints detents and presses as they drain. Both bypass the UI.
// ============================================================================

// runLevelDump samples the three lines directly and prints each change.
func runLevelDump(ctx context.Context, cfg Config, logger *slog.Logger) error {
	reg := NewPinRegistry()
	defer reg.CloseAll()

	open := func(name string, line int) (Pin, error) {
		return reg.Claim(line, func(l int) Pin {
			p, b := openPinFallback(l, Backend(cfg.Encoder.Backend), logger)
			fmt.Printf("%s: line %d via %s backend\n", name, l, b)
			return p
		})
	}

	clk, err := open("clk", cfg.Encoder.ClkPin)
	if err != nil {
		return err
	}
	dt, err := open("dt", cfg.Encoder.DtPin)
	if err != nil {
		return err
	}
	var sw Pin
	if cfg.Encoder.SwPin >= 0 {
		if sw, err = open("sw", cfg.Encoder.SwPin); err != nil {
			return err
		}
	}

	read := func(p Pin) int {
		if p == nil {
			return 1
		}
		v, err := p.Read()
		if err != nil {
			return 1
		}
		return v
	}

	fmt.Println("dumping level changes, rotate the knob and press the button (ctrl-c to stop)")
	lastClk, lastDt, lastSw := read(clk), read(dt), read(sw)
	fmt.Printf("clk=%d dt=%d sw=%d (initial)\n", lastClk, lastDt, lastSw)

	ticker := time.NewTicker(time.Duration(cfg.Encoder.PollMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		c, d, s := read(clk), read(dt), read(sw)
		if c != lastClk || d != lastDt || s != lastSw {
			fmt.Printf("clk=%d dt=%d sw=%d\n", c, d, s)
			lastClk, lastDt, lastSw = c, d, s
		}
	}
}

// runMonitor starts the real sampler and prints every drained detent and
// press, which exercises the exact decode path the UI consumes.
func runMonitor(ctx context.Context, cfg Config, logger *slog.Logger) error {
	reg := NewPinRegistry()
	defer reg.CloseAll()

	enc, err := NewEncoder(cfg.ToEncoderConfig(), reg, logger)
	if err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}
	defer enc.Close()

	fmt.Printf("monitoring on %s backend, rotate and press (ctrl-c to stop)\n", enc.BackendName())

	total := 0
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("total detents: %d\n", total)
			return nil
		case <-ticker.C:
		}
		if enc.Disabled() {
			return fmt.Errorf("sampler disabled after repeated read failures")
		}
		if steps := enc.Steps(); steps != 0 {
			total += steps
			fmt.Printf("steps %+d (total %+d)\n", steps, total)
		}
		if enc.Pressed() {
			fmt.Println("press")
		}
	}
}
