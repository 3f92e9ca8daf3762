package main

import "time"

// StepSource is the drain interface the UI consumes each frame. The real
// implementation is *Encoder; tests substitute fakes.
type StepSource interface {
	Steps() int
	Pressed() bool
}

// readBurst bridges the rate mismatch between the slow render frame and
// brief mechanical events: it drains the source several times across a short
// window, summing detents and OR-ing presses, so events that land between
// frames are still collected. The inter-sample sleep intentionally blocks
// the UI loop for a few milliseconds per frame.
//
// A nil source yields (0, false); readBurst itself cannot fail.
func readBurst(src StepSource, samples int, interval time.Duration) (int, bool) {
	if src == nil || samples <= 0 {
		return 0, false
	}
	total := 0
	pressed := false
	for i := 0; i < samples; i++ {
		total += src.Steps()
		if src.Pressed() {
			pressed = true
		}
		if interval > 0 && i < samples-1 {
			time.Sleep(interval)
		}
	}
	return total, pressed
}
