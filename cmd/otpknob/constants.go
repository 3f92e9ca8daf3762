package main

import "time"

// Default hardware wiring (BCM numbering) and timing constants.
// These match the shipped appliance; everything here can be overridden
// via the config file or flags.
const (
	defaultClkPin = 23
	defaultDtPin  = 24
	defaultSwPin  = 25

	// Transitions per detent. KY-040 style encoders produce 4 quadrature
	// transitions per click; some produce 2 or 1.
	defaultPPR = 4

	defaultPollMS     = 1
	defaultDebounceMS = 5

	// Consecutive read failures before the sampler disables itself.
	defaultMaxReadErrors = 10

	defaultBurstSamples    = 5
	defaultBurstIntervalMS = 2

	defaultPressDebounceMS  = 100
	defaultScreenChangeMS   = 200
	defaultSleepTimeoutSecs = 10
	defaultSaveDelaySecs    = 2

	defaultFrameHz = 20
)

// Hue moves this much per detent on the Color screen.
const defaultHueStep = 0.01

// User brightness 100% maps to this fraction of full LED drive.
// Full drive is too bright for a desk device and shortens strip life.
const maxLEDBright = 0.80

// Info screen countdown window, in seconds. The code itself comes from
// an external generator; we only render its remaining validity.
const codePeriod = 30

// Draw throttling for non-info screens.
const drawMinInterval = 50 * time.Millisecond

// Scroll hint advance rate on the reset menu.
const scrollAdvance = 500 * time.Millisecond

// Bounded wait for the sampler goroutine to stop on Close.
const samplerJoinTimeout = time.Second
