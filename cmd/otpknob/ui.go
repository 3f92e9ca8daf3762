package main

import (
	"fmt"
	"log/slog"
	"math"
	"time"
)

// ============================================================================
// UI state machine
// ============================================================================
// Cooperative, single-goroutine state machine driven once per display frame.
// Each frame it drains the sampler through a burst read, debounces the raw
// press into an edge, applies the screen transition table, evaluates the
// sleep and autosave timers, draws, and returns the values the LED renderer
// consumes plus an optional confirmed reset action.
//
// All timer logic takes the frame's `now` explicitly so tests drive the
// clock instead of sleeping.
// ============================================================================

// Screen enumerates the six UI screens, in encoder press order.
type Screen int

const (
	ScreenInfo Screen = iota
	ScreenColor
	ScreenBrightness
	ScreenLanguage
	ScreenResetMenu
	ScreenConfirm
)

func (s Screen) String() string {
	switch s {
	case ScreenInfo:
		return "info"
	case ScreenColor:
		return "color"
	case ScreenBrightness:
		return "brightness"
	case ScreenLanguage:
		return "language"
	case ScreenResetMenu:
		return "reset-menu"
	case ScreenConfirm:
		return "confirm"
	default:
		return fmt.Sprintf("screen(%d)", int(s))
	}
}

// ResetAction is the destructive action a Confirm press emits.
type ResetAction string

const (
	ResetNone ResetAction = "none"
	ResetWifi ResetAction = "wifi"
	ResetQR   ResetAction = "qr"
	ResetBoth ResetAction = "both"
)

// resetMenuActions maps reset-menu selections 1..3 to their action.
var resetMenuActions = [...]ResetAction{ResetWifi, ResetQR, ResetBoth}

// UIConfig carries the frame-side tuning knobs.
type UIConfig struct {
	HueStep         float64
	BurstSamples    int
	BurstInterval   time.Duration
	PressDebounce   time.Duration
	ScreenChangeMin time.Duration
	SleepTimeout    time.Duration
	SaveDelay       time.Duration
}

// FrameOutput is what one Handle call yields to the appliance loop.
// Reset is ResetNone except on the exact frame a Confirm press fired.
type FrameOutput struct {
	Hue           float64
	BrightnessPct int
	Reset         ResetAction
}

// UI owns all screen, settings and timer state.
type UI struct {
	cfg     UIConfig
	surface Surface
	store   *SettingsStore
	logger  *slog.Logger

	screen     Screen
	selection  int
	confirmFor ResetAction

	hue           float64
	brightnessPct int
	langIdx       int

	// Raw-press edge detection, separate from the sampler's debounce.
	btnWasPressed bool
	btnDebounceAt time.Time

	lastScreenChange time.Time
	sleep            *sleepManager

	// Dirty-settings autosave. dirtySince is anchored at the FIRST change of
	// a dirty run and deliberately not refreshed by later changes, so a burst
	// of edits coalesces into one save timed from the first edit.
	dirty         bool
	dirtySince    time.Time
	lastSavedHue  float64
	lastSavedPct  int
	lastSavedLang string

	forceDraw  bool
	lastDrawAt time.Time
	scrollPos  int
	scrollAt   time.Time

	wifiConnected bool
	wifiSSID      string
}

// NewUI builds the state machine from persisted settings (or the given
// defaults when no record exists).
func NewUI(cfg UIConfig, surface Surface, store *SettingsStore, defaults Settings, logger *slog.Logger, now time.Time) *UI {
	u := &UI{
		cfg:     cfg,
		surface: surface,
		store:   store,
		logger:  logger,

		screen:        ScreenInfo,
		hue:           wrapHue(defaults.Hue),
		brightnessPct: clampPct(defaults.BrightnessPct),
		langIdx:       langIndex(defaults.Language),

		lastScreenChange: now,
		sleep:            newSleepManager(cfg.SleepTimeout, now),
		forceDraw:        true,
	}

	if store != nil {
		if saved, found, err := store.Load(); err != nil {
			logger.Warn("failed to load settings, using defaults", "error", err)
		} else if found {
			u.hue = wrapHue(saved.Hue)
			u.brightnessPct = clampPct(saved.BrightnessPct)
			u.langIdx = langIndex(saved.Language)
			logger.Info("loaded settings",
				"hue", u.hue, "brightness_pct", u.brightnessPct, "language", u.lang())
		}
	}
	u.lastSavedHue = u.hue
	u.lastSavedPct = u.brightnessPct
	u.lastSavedLang = u.lang()
	return u
}

func wrapHue(h float64) float64 {
	h = math.Mod(h, 1.0)
	if h < 0 {
		h += 1.0
	}
	return h
}

func clampPct(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func (u *UI) lang() string {
	return languages[u.langIdx].Code
}

// SetWifiStatus updates the connectivity line on the info screen. Fed by
// an external watcher over IPC.
func (u *UI) SetWifiStatus(connected bool, ssid string) {
	u.wifiConnected = connected
	u.wifiSSID = ssid
}

// ActualBrightness maps the user percentage to the LED drive fraction,
// respecting the hardware cap.
func (u *UI) ActualBrightness() float64 {
	return float64(u.brightnessPct) / 100.0 * maxLEDBright
}

// Handle is the per-frame entry point: burst-read the sampler, run the
// state machine, draw, and return the frame result. It never returns an
// error; every sub-operation fails into a no-op for this frame only.
func (u *UI) Handle(src StepSource, code string, secsLeft int, now time.Time) FrameOutput {
	if src == nil {
		// No input device: sleep and autosave bookkeeping still run.
		return u.frameNoInput(code, secsLeft, now)
	}
	step, rawPress := readBurst(src, u.cfg.BurstSamples, u.cfg.BurstInterval)
	return u.frame(step, rawPress, code, secsLeft, now)
}

func (u *UI) frameNoInput(code string, secsLeft int, now time.Time) FrameOutput {
	if u.sleep.ShouldSleep(now) {
		u.blank()
		u.sleep.Sleep()
	} else if !u.sleep.Sleeping() {
		u.draw(code, secsLeft, now)
	}
	u.checkAutoSave(now)
	return u.output(ResetNone)
}

// frame runs one UI step from pre-aggregated inputs. Split from Handle so
// tests can drive it with a controlled clock and no burst delay.
func (u *UI) frame(step int, rawPress bool, code string, secsLeft int, now time.Time) FrameOutput {
	// Software edge detection on top of the sampler's hardware debounce:
	// a press is an edge only on first sight after a release, and edges
	// closer together than PressDebounce are folded into one.
	pressedEdge := false
	if rawPress && !u.btnWasPressed && now.Sub(u.btnDebounceAt) > u.cfg.PressDebounce {
		pressedEdge = true
		u.btnDebounceAt = now
	}
	u.btnWasPressed = rawPress

	hasActivity := step != 0 || pressedEdge

	if u.sleep.Sleeping() {
		if hasActivity {
			// The waking input is consumed entirely: no navigation, no value
			// change may ride on it.
			u.wake(now)
		}
		u.checkAutoSave(now)
		return u.output(ResetNone)
	}
	if hasActivity {
		u.sleep.Touch(now)
	} else if u.sleep.ShouldSleep(now) {
		u.blank()
		u.sleep.Sleep()
		u.checkAutoSave(now)
		return u.output(ResetNone)
	}

	reset := ResetNone
	oldScreen := u.screen

	// Rapid accidental double-advances are filtered by a minimum interval
	// between any two screen transitions.
	canChangeScreen := now.Sub(u.lastScreenChange) > u.cfg.ScreenChangeMin

	switch u.screen {
	case ScreenInfo:
		if pressedEdge && canChangeScreen {
			u.changeScreen(ScreenColor, now)
		}

	case ScreenColor:
		if step != 0 {
			u.hue = wrapHue(u.hue + float64(step)*u.cfg.HueStep)
		}
		if pressedEdge && canChangeScreen {
			u.changeScreen(ScreenBrightness, now)
		}

	case ScreenBrightness:
		if step != 0 {
			u.brightnessPct = clampPct(u.brightnessPct + step)
		}
		if pressedEdge && canChangeScreen {
			u.changeScreen(ScreenLanguage, now)
		}

	case ScreenLanguage:
		if step != 0 {
			// Applies immediately so the menus re-render in the candidate
			// language before the choice is ever persisted.
			u.langIdx = mod(u.langIdx+step, len(languages))
		}
		if pressedEdge && canChangeScreen {
			u.changeScreen(ScreenResetMenu, now)
		}

	case ScreenResetMenu:
		if step != 0 {
			u.selection = mod(u.selection+step, 4)
		}
		if pressedEdge && canChangeScreen {
			if u.selection == 0 {
				u.changeScreen(ScreenInfo, now)
			} else {
				u.confirmFor = resetMenuActions[u.selection-1]
				u.changeScreen(ScreenConfirm, now)
			}
		}

	case ScreenConfirm:
		// Asymmetric on purpose: rotation cancels, only a press confirms,
		// so a single accidental input can never fire a destructive action.
		if step != 0 && canChangeScreen {
			u.confirmFor = ResetNone
			u.changeScreen(ScreenInfo, now)
		} else if pressedEdge && canChangeScreen {
			if u.confirmFor != ResetNone {
				reset = u.confirmFor
				u.logger.Info("reset action confirmed", "action", reset)
			}
			u.confirmFor = ResetNone
			u.changeScreen(ScreenInfo, now)
		}
	}

	if u.screen != oldScreen {
		u.logger.Debug("screen change", "from", oldScreen, "to", u.screen)
		u.forceDraw = true
		if u.screen == ScreenResetMenu {
			u.scrollPos = 0
			u.scrollAt = now
		}
	}

	u.draw(code, secsLeft, now)
	u.checkAutoSave(now)
	return u.output(reset)
}

func (u *UI) changeScreen(s Screen, now time.Time) {
	u.screen = s
	u.lastScreenChange = now
}

func (u *UI) output(reset ResetAction) FrameOutput {
	return FrameOutput{Hue: u.hue, BrightnessPct: u.brightnessPct, Reset: reset}
}

// mod is a positive modulo for signed cursor arithmetic.
func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

func (u *UI) wake(now time.Time) {
	u.sleep.Wake(now)
	u.forceDraw = true
	u.logger.Debug("display waking")
}

func (u *UI) blank() {
	if u.surface == nil {
		return
	}
	if err := u.surface.Blank(); err != nil {
		u.logger.Warn("display blank failed", "error", err)
	} else {
		u.logger.Debug("display sleeping")
	}
}

// ----------------------------------------------------------------------------
// Dirty-settings autosave
// ----------------------------------------------------------------------------

// checkAutoSave marks the state dirty on the first observed change and
// persists once the save delay has elapsed since that first change. The
// timestamp is intentionally NOT refreshed by further changes while dirty;
// resetting it on every edit would postpone the save indefinitely under
// continuous knob activity.
func (u *UI) checkAutoSave(now time.Time) {
	changed := math.Abs(u.hue-u.lastSavedHue) > 0.001 ||
		u.brightnessPct != u.lastSavedPct ||
		u.lang() != u.lastSavedLang

	if changed && !u.dirty {
		u.dirty = true
		u.dirtySince = now
		u.logger.Debug("settings dirty, save timer started")
	}

	if u.dirty && now.Sub(u.dirtySince) >= u.cfg.SaveDelay {
		u.saveSettings(now)
	}
}

// FlushSettings persists immediately if dirty. Called once on shutdown.
func (u *UI) FlushSettings(now time.Time) {
	if u.dirty {
		u.saveSettings(now)
	}
}

func (u *UI) saveSettings(now time.Time) {
	if u.store == nil {
		u.dirty = false
		return
	}
	st := Settings{
		Hue:           u.hue,
		BrightnessPct: u.brightnessPct,
		Language:      u.lang(),
		SavedAt:       now.Unix(),
	}
	if err := u.store.Save(st); err != nil {
		// Stay dirty: the in-memory values remain authoritative and a later
		// attempt may succeed.
		u.logger.Warn("settings save failed", "error", err)
		return
	}
	u.lastSavedHue = u.hue
	u.lastSavedPct = u.brightnessPct
	u.lastSavedLang = u.lang()
	u.dirty = false
	u.logger.Info("settings saved",
		"hue", u.hue, "brightness_pct", u.brightnessPct, "language", u.lang())
}

// ----------------------------------------------------------------------------
// Drawing
// ----------------------------------------------------------------------------

// draw renders the current screen, throttled: screen changes and wakes force
// a draw, the info screen always redraws (live countdown), everything else
// redraws at most every drawMinInterval.
func (u *UI) draw(code string, secsLeft int, now time.Time) {
	if u.surface == nil || u.sleep.Sleeping() {
		return
	}
	if !u.forceDraw && u.screen != ScreenInfo && now.Sub(u.lastDrawAt) < drawMinInterval {
		return
	}
	u.lastDrawAt = now
	u.forceDraw = false

	err := u.surface.Draw(func(f Frame) {
		switch u.screen {
		case ScreenInfo:
			u.drawInfo(f, code, secsLeft)
		case ScreenColor:
			u.drawColor(f)
		case ScreenBrightness:
			u.drawBrightness(f)
		case ScreenLanguage:
			u.drawLanguage(f)
		case ScreenResetMenu:
			u.drawResetMenu(f, now)
		case ScreenConfirm:
			u.drawConfirm(f)
		}
	})
	if err != nil {
		u.logger.Warn("draw failed", "screen", u.screen, "error", err)
	}
}

func (u *UI) drawInfo(f Frame, code string, secsLeft int) {
	lang := u.lang()
	f.Text(0, 0, fmt.Sprintf("%s  : %s", tr(lang, "otp"), code))
	f.Text(0, 14, fmt.Sprintf("%s : %2ds", tr(lang, "time"), secsLeft))
	f.Text(0, 25, fmt.Sprintf("%s  : %3d°", tr(lang, "hue"), int(u.hue*360)))
	f.Text(0, 37, fmt.Sprintf("%s: %3d%%", tr(lang, "bright"), u.brightnessPct))
	if u.wifiConnected {
		f.Text(0, 52, "WiFi: OK")
	} else {
		f.Text(0, 52, "WiFi: --")
	}
}

func (u *UI) drawColor(f Frame) {
	lang := u.lang()
	f.Text(0, 0, tr(lang, "color_title"))
	f.Text(0, 14, fmt.Sprintf("%s: %3d°", tr(lang, "hue"), int(u.hue*360)))
	f.Text(0, 28, tr(lang, "rotate_color"))
	f.Text(0, 42, tr(lang, "press_next"))
}

func (u *UI) drawBrightness(f Frame) {
	lang := u.lang()
	f.Text(0, 0, tr(lang, "bright_title"))
	f.Text(0, 14, fmt.Sprintf("%s: %3d%%", tr(lang, "level"), u.brightnessPct))
	f.Text(0, 28, tr(lang, "press_next"))
}

func (u *UI) drawLanguage(f Frame) {
	lang := u.lang()
	l := languages[u.langIdx]
	f.Text(0, 0, tr(lang, "lang_title"))
	f.Text(0, 14, "> "+l.Native)
	f.Text(0, 28, "  ("+l.English+")")
	f.Text(0, 42, tr(lang, "rotate_lang"))
	f.Text(0, 54, tr(lang, "press_next"))
}

func (u *UI) drawResetMenu(f Frame, now time.Time) {
	lang := u.lang()
	opts := []string{
		tr(lang, "next_screen"),
		tr(lang, "reset_wifi"),
		tr(lang, "reset_qr"),
		tr(lang, "reset_both"),
	}
	f.Text(0, 0, tr(lang, "reset_title"))
	y := 14
	for i, s := range opts {
		prefix := " "
		if i == u.selection {
			prefix = ">"
		}
		text := prefix + " " + s
		if r := []rune(text); len(r) > 20 {
			text = string(r[:19]) + "..."
		}
		f.Text(0, y, text)
		y += 10
	}
	f.Text(0, 54, u.scrollingText(tr(lang, "scroll_hint"), 21, now))
}

func (u *UI) drawConfirm(f Frame) {
	lang := u.lang()
	var label string
	switch u.confirmFor {
	case ResetWifi:
		label = tr(lang, "confirm_wifi")
	case ResetQR:
		label = tr(lang, "confirm_qr")
	case ResetBoth:
		label = tr(lang, "confirm_both")
	default:
		label = "Reset?"
	}
	f.Text(0, 0, tr(lang, "confirm_title"))
	f.Text(0, 14, label)
	f.Text(0, 28, tr(lang, "press_yes"))
	f.Text(0, 40, tr(lang, "rotate_cancel"))
	f.Text(0, 52, tr(lang, "restarts_after"))
}

// scrollingText windows a long line into maxWidth runes, advancing one rune
// per scrollAdvance while the reset menu is on screen.
func (u *UI) scrollingText(text string, maxWidth int, now time.Time) string {
	runes := []rune(text)
	if len(runes) <= maxWidth {
		return text
	}
	if now.Sub(u.scrollAt) >= scrollAdvance {
		u.scrollPos = (u.scrollPos + 1) % (len(runes) + 3)
		u.scrollAt = now
	}
	extended := append(append(append([]rune{}, runes...), ' ', ' ', ' '), runes...)
	start := u.scrollPos % len(extended)
	visible := extended[start:]
	if len(visible) < maxWidth {
		visible = append(append([]rune{}, visible...), extended[:maxWidth-len(visible)]...)
	}
	return string(visible[:maxWidth])
}
