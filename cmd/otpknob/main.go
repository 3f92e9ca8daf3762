package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("otpknob v%s\n", version)
	fmt.Println("Rotary-encoder menu daemon for the OTP display appliance")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  otpknob [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that samples a quadrature rotary encoder at high rate and")
	fmt.Println("  drives the appliance's OLED menu: LED color, brightness, language,")
	fmt.Println("  and a confirmed reset flow. Settings persist atomically with a")
	fmt.Println("  debounced autosave.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (flags override file values)")
	fmt.Println()
	fmt.Println("  -clk-pin / -dt-pin / -sw-pin int")
	fmt.Printf("        Encoder lines, BCM numbering (defaults %d/%d/%d)\n", defaultClkPin, defaultDtPin, defaultSwPin)
	fmt.Println()
	fmt.Println("  -ppr int")
	fmt.Printf("        Quadrature transitions per detent: 1, 2 or 4 (default %d)\n", defaultPPR)
	fmt.Println()
	fmt.Println("  -gpio-backend string")
	fmt.Println("        Force a line backend: periph, cdev, sysfs, stub")
	fmt.Println("        (default: ordered fallback periph -> cdev -> sysfs -> stub)")
	fmt.Println()
	fmt.Println("  -frame-hz int")
	fmt.Printf("        UI frame rate (default %d)\n", defaultFrameHz)
	fmt.Println()
	fmt.Println("  -no-display")
	fmt.Println("        Run without the OLED panel (state machine still runs)")
	fmt.Println()
	fmt.Println("  -settings-file string")
	fmt.Println("        Path of the persisted settings JSON record")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (default \"/tmp/otpknob.sock\")")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -dump-levels")
	fmt.Println("        Debug: print raw line level changes instead of running the UI")
	fmt.Println()
	fmt.Println("  -monitor")
	fmt.Println("        Debug: run the sampler and print detents and presses")
	fmt.Println()
	fmt.Println("  -version / -help")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - GPIO access needs root or membership in the gpio group")
	fmt.Println("  - The encoder is optional: without one the daemon still renders,")
	fmt.Println("    sleeps and autosaves")
	fmt.Println("  - A confirmed reset deletes the targeted state files and exits;")
	fmt.Println("    the service supervisor is expected to restart the appliance")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath   = flag.String("config", "", "Path to YAML config file")
		clkPin       = flag.Int("clk-pin", defaultClkPin, "Encoder clock line (BCM)")
		dtPin        = flag.Int("dt-pin", defaultDtPin, "Encoder data line (BCM)")
		swPin        = flag.Int("sw-pin", defaultSwPin, "Encoder button line (BCM), negative disables")
		ppr          = flag.Int("ppr", defaultPPR, "Quadrature transitions per detent (1, 2 or 4)")
		gpioBackend  = flag.String("gpio-backend", "", "Force gpio backend: periph, cdev, sysfs, stub")
		frameHz      = flag.Int("frame-hz", defaultFrameHz, "UI frame rate")
		noDisplay    = flag.Bool("no-display", false, "Run without the OLED panel")
		settingsFile = flag.String("settings-file", "", "Path of the settings JSON record")
		ipcSocket    = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		logLevelStr  = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		dumpLevels   = flag.Bool("dump-levels", false, "Print raw line levels and exit on ctrl-c")
		monitor      = flag.Bool("monitor", false, "Run the sampler and print detents/presses")
		showVersion  = flag.Bool("version", false, "Print version and exit")
		showHelp     = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only apply a flag when it was actually set, so file values survive.
	overrides := FlagOverrides{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "clk-pin":
			overrides.ClkPin = clkPin
		case "dt-pin":
			overrides.DtPin = dtPin
		case "sw-pin":
			overrides.SwPin = swPin
		case "ppr":
			overrides.PPR = ppr
		case "gpio-backend":
			overrides.Backend = gpioBackend
		case "frame-hz":
			overrides.FrameHz = frameHz
		case "no-display":
			enabled := !*noDisplay
			overrides.DisplayEnabled = &enabled
		case "settings-file":
			overrides.SettingsPath = settingsFile
		case "ipc-socket":
			overrides.IPCSocket = ipcSocket
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *dumpLevels || *monitor {
		run := runLevelDump
		if *monitor {
			run = runMonitor
		}
		if err := run(ctx, cfg, logger); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	// Display surface, falling back to a null surface so the state machine
	// runs headless when no panel is reachable.
	var surface Surface = nullSurface{}
	if cfg.Display.Enabled {
		oled, err := newOLEDSurface(cfg.Display.I2CBus, cfg.Display.Width, cfg.Display.Height, logger)
		if err != nil {
			logger.Warn("oled unavailable, running headless", "error", err)
		} else {
			surface = oled
		}
	}
	defer surface.Close()

	// Encoder is optional too: the UI still evaluates sleep and autosave
	// timers every frame without one.
	registry := NewPinRegistry()
	defer registry.CloseAll()

	var src StepSource
	encoder, err := NewEncoder(cfg.ToEncoderConfig(), registry, logger)
	if err != nil {
		logger.Warn("encoder unavailable, continuing without input device", "error", err)
	} else {
		src = encoder
		defer encoder.Close()
	}

	store := NewSettingsStore(ExpandPath(cfg.Files.Settings), cfg.Files.BootConfig, logger)

	now := time.Now()
	ui := NewUI(cfg.ToUIConfig(), surface, store, Settings{Hue: 0.33, BrightnessPct: 50, Language: "en"}, logger, now)

	// External events (wifi status etc) arrive over IPC and are drained at
	// the top of each frame.
	events := make(chan ExternalEvent, 64)
	if cfg.IPC.SocketPath != "" {
		go func() {
			if err := runIPCServer(ctx, cfg.IPC.SocketPath, events, logger); err != nil {
				logger.Error("IPC server error", "error", err)
			}
		}()
	}

	logger.Info("otpknob running",
		"clk", cfg.Encoder.ClkPin, "dt", cfg.Encoder.DtPin, "sw", cfg.Encoder.SwPin,
		"ppr", cfg.Encoder.PPR, "frame_hz", cfg.UI.FrameHz,
		"display", cfg.Display.Enabled, "ipc", cfg.IPC.SocketPath)

	ticker := time.NewTicker(time.Second / time.Duration(cfg.UI.FrameHz))
	defer ticker.Stop()

	var lastHue float64 = -1
	var lastBright float64 = -1

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			ui.FlushSettings(time.Now())
			return

		case ev := <-events:
			switch e := ev.(type) {
			case WifiStatusEvent:
				ui.SetWifiStatus(e.Connected, e.SSID)
			case PingEvent:
				// liveness probe, nothing to do
			}

		case now := <-ticker.C:
			code, secsLeft := currentCode(now)
			out := ui.Handle(src, code, secsLeft, now)

			if out.Reset != ResetNone {
				performReset(out.Reset, cfg.Files, surface, ui.lang(), logger)
				logger.Info("exiting for supervisor restart", "action", out.Reset)
				ui.FlushSettings(time.Now())
				return
			}

			// Hue and brightness feed the external LED renderer; surface the
			// values on the debug log when they move.
			bright := ui.ActualBrightness()
			if out.Hue != lastHue || bright != lastBright {
				logger.Debug("led output changed", "hue", out.Hue, "brightness", bright)
				lastHue = out.Hue
				lastBright = bright
			}
		}
	}
}

// currentCode supplies the info screen's code field and its remaining
// validity. Code generation itself lives outside this daemon; until the
// generator publishes one we render a placeholder against the standard
// 30-second window.
func currentCode(now time.Time) (string, int) {
	secsLeft := codePeriod - int(now.Unix()%codePeriod)
	return "------", secsLeft
}
