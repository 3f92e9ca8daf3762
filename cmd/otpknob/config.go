package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the otpknob daemon.
//
// The config file is the primary configuration surface; flags exist for
// small overrides and for environments where a file is awkward. Defaults
// and validation are centralized here so the rest of the code can assume a
// well-formed config.
type Config struct {
	// Encoder wiring and sampling
	Encoder EncoderFileConfig `yaml:"encoder"`

	// Frame loop and screen behavior
	UI UIFileConfig `yaml:"ui"`

	// OLED panel
	Display DisplayFileConfig `yaml:"display"`

	// Settings persistence and reset targets
	Files FilesConfig `yaml:"files"`

	// IPC configuration (wifi watcher, tooling)
	IPC IPCConfig `yaml:"ipc"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type EncoderFileConfig struct {
	ClkPin int `yaml:"clk_pin"`
	DtPin  int `yaml:"dt_pin"`
	SwPin  int `yaml:"sw_pin"` // set negative to run without a button

	ButtonActiveLow bool   `yaml:"button_active_low"`
	PPR             int    `yaml:"ppr"` // quadrature transitions per detent: 1, 2 or 4
	PollMS          int    `yaml:"poll_ms"`
	DebounceMS      int    `yaml:"debounce_ms"`
	MaxReadErrors   int    `yaml:"max_read_errors"`
	Backend         string `yaml:"backend,omitempty"` // force: periph|cdev|sysfs|stub
}

type UIFileConfig struct {
	FrameHz          int     `yaml:"frame_hz"`
	BurstSamples     int     `yaml:"burst_samples"`
	BurstIntervalMS  int     `yaml:"burst_interval_ms"`
	PressDebounceMS  int     `yaml:"press_debounce_ms"`
	ScreenChangeMS   int     `yaml:"screen_change_ms"`
	SleepTimeoutSecs int     `yaml:"sleep_timeout_secs"`
	SaveDelaySecs    int     `yaml:"save_delay_secs"`
	HueStep          float64 `yaml:"hue_step"`
}

type DisplayFileConfig struct {
	Enabled bool   `yaml:"enabled"`
	I2CBus  string `yaml:"i2c_bus"` // empty = first available bus
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
}

type FilesConfig struct {
	// Settings is the JSON record the UI persists.
	Settings string `yaml:"settings"`
	// BootConfig is the wifi_config-style file whose 4th line mirrors the
	// language choice; it is also what a Wi-Fi reset deletes.
	BootConfig string `yaml:"boot_config"`
	// SecretDir holds the OTP secret and QR image a QR reset deletes.
	SecretDir string `yaml:"secret_dir"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go and the CLI defaults.
func DefaultConfig() Config {
	return Config{
		Encoder: EncoderFileConfig{
			ClkPin:          defaultClkPin,
			DtPin:           defaultDtPin,
			SwPin:           defaultSwPin,
			ButtonActiveLow: true,
			PPR:             defaultPPR,
			PollMS:          defaultPollMS,
			DebounceMS:      defaultDebounceMS,
			MaxReadErrors:   defaultMaxReadErrors,
		},
		UI: UIFileConfig{
			FrameHz:          defaultFrameHz,
			BurstSamples:     defaultBurstSamples,
			BurstIntervalMS:  defaultBurstIntervalMS,
			PressDebounceMS:  defaultPressDebounceMS,
			ScreenChangeMS:   defaultScreenChangeMS,
			SleepTimeoutSecs: defaultSleepTimeoutSecs,
			SaveDelaySecs:    defaultSaveDelaySecs,
			HueStep:          defaultHueStep,
		},
		Display: DisplayFileConfig{
			Enabled: true,
			I2CBus:  "",
			Width:   128,
			Height:  64,
		},
		Files: FilesConfig{
			Settings:   "/var/lib/otpknob/user_settings.json",
			BootConfig: "/var/lib/otpknob/wifi_config.txt",
			SecretDir:  "/var/lib/otpknob/secrets",
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/otpknob.sock",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true), and
// trailing garbage after the document is an error.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
// Each override is only applied when its pointer is non-nil, so a config
// file stays the primary source with flags as ad-hoc overrides.
type FlagOverrides struct {
	ClkPin  *int
	DtPin   *int
	SwPin   *int
	PPR     *int
	Backend *string

	FrameHz        *int
	DisplayEnabled *bool

	SettingsPath *string
	IPCSocket    *string
	LogLevel     *string
}

// Apply merges the overrides into cfg. Nil pointers are ignored; non-nil
// values are applied even when they are zero values.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.ClkPin != nil {
		cfg.Encoder.ClkPin = *o.ClkPin
	}
	if o.DtPin != nil {
		cfg.Encoder.DtPin = *o.DtPin
	}
	if o.SwPin != nil {
		cfg.Encoder.SwPin = *o.SwPin
	}
	if o.PPR != nil {
		cfg.Encoder.PPR = *o.PPR
	}
	if o.Backend != nil {
		cfg.Encoder.Backend = *o.Backend
	}
	if o.FrameHz != nil {
		cfg.UI.FrameHz = *o.FrameHz
	}
	if o.DisplayEnabled != nil {
		cfg.Display.Enabled = *o.DisplayEnabled
	}
	if o.SettingsPath != nil {
		cfg.Files.Settings = *o.SettingsPath
	}
	if o.IPCSocket != nil {
		cfg.IPC.SocketPath = *o.IPCSocket
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Encoder
	if c.Encoder.ClkPin < 0 || c.Encoder.DtPin < 0 {
		return errors.New("encoder.clk_pin and encoder.dt_pin must be >= 0")
	}
	if c.Encoder.ClkPin == c.Encoder.DtPin {
		return errors.New("encoder.clk_pin and encoder.dt_pin must differ")
	}
	if c.Encoder.PPR != 1 && c.Encoder.PPR != 2 && c.Encoder.PPR != 4 {
		return errors.New("encoder.ppr must be 1, 2 or 4")
	}
	if c.Encoder.PollMS <= 0 {
		return errors.New("encoder.poll_ms must be > 0")
	}
	if c.Encoder.DebounceMS <= 0 {
		return errors.New("encoder.debounce_ms must be > 0")
	}
	if c.Encoder.MaxReadErrors <= 0 {
		return errors.New("encoder.max_read_errors must be > 0")
	}
	if b := c.Encoder.Backend; b != "" {
		switch Backend(b) {
		case BackendPeriph, BackendCdev, BackendSysfs, BackendStub:
		default:
			return fmt.Errorf("encoder.backend must be one of periph, cdev, sysfs, stub (got %q)", b)
		}
	}

	// UI
	if c.UI.FrameHz <= 0 || c.UI.FrameHz > 1000 {
		return errors.New("ui.frame_hz must be between 1 and 1000")
	}
	if c.UI.BurstSamples <= 0 {
		return errors.New("ui.burst_samples must be > 0")
	}
	if c.UI.BurstIntervalMS < 0 {
		return errors.New("ui.burst_interval_ms must be >= 0")
	}
	if c.UI.PressDebounceMS < 0 {
		return errors.New("ui.press_debounce_ms must be >= 0")
	}
	if c.UI.ScreenChangeMS < 0 {
		return errors.New("ui.screen_change_ms must be >= 0")
	}
	if c.UI.SleepTimeoutSecs <= 0 {
		return errors.New("ui.sleep_timeout_secs must be > 0")
	}
	if c.UI.SaveDelaySecs <= 0 {
		return errors.New("ui.save_delay_secs must be > 0")
	}
	if c.UI.HueStep <= 0 || c.UI.HueStep >= 1 {
		return errors.New("ui.hue_step must be in (0, 1)")
	}

	// Display
	if c.Display.Enabled {
		if c.Display.Width <= 0 || c.Display.Height <= 0 {
			return errors.New("display.width and display.height must be > 0")
		}
	}

	// Files
	if c.Files.Settings == "" {
		return errors.New("files.settings must not be empty")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ToEncoderConfig converts the file config into the sampler's config.
func (c *Config) ToEncoderConfig() EncoderConfig {
	return EncoderConfig{
		ClkPin:          c.Encoder.ClkPin,
		DtPin:           c.Encoder.DtPin,
		SwPin:           c.Encoder.SwPin,
		ButtonActiveLow: c.Encoder.ButtonActiveLow,
		PPR:             c.Encoder.PPR,
		PollInterval:    time.Duration(c.Encoder.PollMS) * time.Millisecond,
		DebounceWindow:  time.Duration(c.Encoder.DebounceMS) * time.Millisecond,
		MaxReadErrors:   c.Encoder.MaxReadErrors,
		Backend:         Backend(c.Encoder.Backend),
	}
}

// ToUIConfig converts the file config into the frame-side config.
func (c *Config) ToUIConfig() UIConfig {
	return UIConfig{
		HueStep:         c.UI.HueStep,
		BurstSamples:    c.UI.BurstSamples,
		BurstInterval:   time.Duration(c.UI.BurstIntervalMS) * time.Millisecond,
		PressDebounce:   time.Duration(c.UI.PressDebounceMS) * time.Millisecond,
		ScreenChangeMin: time.Duration(c.UI.ScreenChangeMS) * time.Millisecond,
		SleepTimeout:    time.Duration(c.UI.SleepTimeoutSecs) * time.Second,
		SaveDelay:       time.Duration(c.UI.SaveDelaySecs) * time.Second,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
