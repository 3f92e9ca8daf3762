package main

import "time"

// sleepManager tracks input inactivity and decides when the display blanks.
// The UI consults it once per frame; waking forces the next draw to be a
// full redraw since the panel contents are gone after a blank.
type sleepManager struct {
	timeout      time.Duration
	lastActivity time.Time
	sleeping     bool
}

func newSleepManager(timeout time.Duration, now time.Time) *sleepManager {
	return &sleepManager{timeout: timeout, lastActivity: now}
}

// Touch records activity while awake.
func (m *sleepManager) Touch(now time.Time) {
	m.lastActivity = now
}

// ShouldSleep reports that the inactivity timeout elapsed while awake.
func (m *sleepManager) ShouldSleep(now time.Time) bool {
	return !m.sleeping && now.Sub(m.lastActivity) >= m.timeout
}

func (m *sleepManager) Sleeping() bool {
	return m.sleeping
}

func (m *sleepManager) Sleep() {
	m.sleeping = true
}

// Wake returns to the awake state and restarts the inactivity clock.
func (m *sleepManager) Wake(now time.Time) {
	m.sleeping = false
	m.lastActivity = now
}
