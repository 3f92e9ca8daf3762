package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// ============================================================================
// Digital line access
// ============================================================================
// A Pin is the only contract the sampler consumes: read a level, release it.
// Concrete backends differ per platform and kernel generation; they are
// selected at construction time from an ordered candidate list, ending in an
// inert stub so the caller always gets a working Pin.
// ============================================================================

// Pin is a single digital input line. Read returns 0 or 1.
type Pin interface {
	Read() (int, error)
	Close() error
}

// Backend identifies a pin access mechanism.
type Backend string

const (
	BackendPeriph Backend = "periph" // native GPIO via periph.io host drivers
	BackendCdev   Backend = "cdev"   // /dev/gpiochipN character device
	BackendSysfs  Backend = "sysfs"  // legacy /sys/class/gpio
	BackendStub   Backend = "stub"   // inert, reads constant high
)

// backendOrder is the default fallback sequence.
var backendOrder = []Backend{BackendPeriph, BackendCdev, BackendSysfs, BackendStub}

// ----------------------------------------------------------------------------
// periph.io backend (native)
// ----------------------------------------------------------------------------

var (
	hostInitOnce sync.Once
	hostInitErr  error
)

// initHost initializes the periph.io host drivers exactly once per process.
// Both the GPIO backend and the I2C display bus go through this.
func initHost() error {
	hostInitOnce.Do(func() {
		_, hostInitErr = host.Init()
	})
	return hostInitErr
}

type periphPin struct {
	p gpio.PinIO
}

func openPeriphPin(line int) (Pin, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", line))
	if p == nil {
		return nil, fmt.Errorf("periph: no pin named GPIO%d", line)
	}
	// Pull-ups keep the idle level high; encoder contacts short to ground.
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("periph: configure GPIO%d as input: %w", line, err)
	}
	return &periphPin{p: p}, nil
}

func (p *periphPin) Read() (int, error) {
	if p.p.Read() == gpio.High {
		return 1, nil
	}
	return 0, nil
}

func (p *periphPin) Close() error {
	return p.p.Halt()
}

// ----------------------------------------------------------------------------
// character device backend
// ----------------------------------------------------------------------------

type cdevPin struct {
	l *gpiocdev.Line
}

func openCdevPin(line int) (Pin, error) {
	l, err := gpiocdev.RequestLine("gpiochip0", line,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithConsumer("otpknob"))
	if err != nil {
		return nil, fmt.Errorf("cdev: request line %d: %w", line, err)
	}
	return &cdevPin{l: l}, nil
}

func (p *cdevPin) Read() (int, error) {
	v, err := p.l.Value()
	if err != nil {
		return 1, err
	}
	if v != 0 {
		return 1, nil
	}
	return 0, nil
}

func (p *cdevPin) Close() error {
	return p.l.Close()
}

// ----------------------------------------------------------------------------
// legacy sysfs backend
// ----------------------------------------------------------------------------

// sysfsPin keeps the value file open and re-reads it with pread so the
// high-rate poll loop does not pay open/close per sample.
type sysfsPin struct {
	line int
	fd   int
}

func openSysfsPin(line int) (Pin, error) {
	num := strconv.Itoa(line)
	// Export is idempotent from our perspective: EBUSY means already exported.
	if err := os.WriteFile("/sys/class/gpio/export", []byte(num), 0o200); err != nil && !os.IsExist(err) {
		if _, statErr := os.Stat("/sys/class/gpio/gpio" + num); statErr != nil {
			return nil, fmt.Errorf("sysfs: export gpio %d: %w", line, err)
		}
	}
	dir := "/sys/class/gpio/gpio" + num
	if err := os.WriteFile(dir+"/direction", []byte("in"), 0o644); err != nil {
		return nil, fmt.Errorf("sysfs: set gpio %d direction: %w", line, err)
	}
	fd, err := unix.Open(dir+"/value", unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("sysfs: open gpio %d value: %w", line, err)
	}
	return &sysfsPin{line: line, fd: fd}, nil
}

func (p *sysfsPin) Read() (int, error) {
	var buf [1]byte
	if _, err := unix.Pread(p.fd, buf[:], 0); err != nil {
		return 1, err
	}
	if buf[0] == '1' {
		return 1, nil
	}
	return 0, nil
}

func (p *sysfsPin) Close() error {
	err := unix.Close(p.fd)
	// Unexport is best effort; another process may still hold the line.
	_ = os.WriteFile("/sys/class/gpio/unexport", []byte(strconv.Itoa(p.line)), 0o200)
	return err
}

// ----------------------------------------------------------------------------
// stub backend
// ----------------------------------------------------------------------------

// stubPin reports the idle (pulled-up) level forever. It is the terminal
// fallback so a device with no usable GPIO still boots into the UI.
type stubPin struct{}

func (stubPin) Read() (int, error) { return 1, nil }
func (stubPin) Close() error       { return nil }

// ----------------------------------------------------------------------------
// backend selection
// ----------------------------------------------------------------------------

func openBackendPin(b Backend, line int) (Pin, error) {
	switch b {
	case BackendPeriph:
		return openPeriphPin(line)
	case BackendCdev:
		return openCdevPin(line)
	case BackendSysfs:
		return openSysfsPin(line)
	case BackendStub:
		return stubPin{}, nil
	default:
		return nil, fmt.Errorf("unknown gpio backend %q", b)
	}
}

// openPinFallback walks the candidate list and returns the first backend
// that can serve the line, plus the backend that won. It cannot fail: the
// list always ends in the stub.
func openPinFallback(line int, force Backend, logger *slog.Logger) (Pin, Backend) {
	order := backendOrder
	if force != "" {
		order = []Backend{force, BackendStub}
	}
	var lastErr error
	for _, b := range order {
		p, err := openBackendPin(b, line)
		if err == nil {
			return p, b
		}
		lastErr = err
		logger.Debug("gpio backend unavailable", "backend", b, "line", line, "error", err)
	}
	// Unreachable with a well-formed order list, but keep the contract total.
	logger.Warn("all gpio backends failed, using stub", "line", line, "error", lastErr)
	return stubPin{}, BackendStub
}

// ============================================================================
// Process-wide line claims
// ============================================================================
// GPIO lines are shared process resources: claiming the same line twice is a
// wiring bug (or a stale handle from a previous init cycle), and leaking a
// claim across a restart wedges the kernel driver. All claims go through a
// single registry with idempotent release and a close-all for shutdown.
// ============================================================================

// PinRegistry tracks which lines this process has claimed.
type PinRegistry struct {
	mu      sync.Mutex
	claimed map[int]Pin
}

func NewPinRegistry() *PinRegistry {
	return &PinRegistry{claimed: make(map[int]Pin)}
}

// Claim opens the line via open and records ownership. A line already
// claimed by this process is an error: two owners draining the same
// encoder line would corrupt the quadrature state.
func (r *PinRegistry) Claim(line int, open func(int) Pin) (Pin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.claimed[line]; ok {
		return nil, fmt.Errorf("gpio line %d already claimed", line)
	}
	pin := open(line)
	r.claimed[line] = pin
	return pin, nil
}

// Release closes and forgets the line. Releasing an unclaimed line is a
// no-op, so cleanup paths may run more than once.
func (r *PinRegistry) Release(line int) {
	r.mu.Lock()
	pin, ok := r.claimed[line]
	if ok {
		delete(r.claimed, line)
	}
	r.mu.Unlock()
	if ok {
		_ = pin.Close()
	}
}

// CloseAll force-releases every claim. Used on shutdown and before
// re-initializing after a soft restart.
func (r *PinRegistry) CloseAll() {
	r.mu.Lock()
	pins := r.claimed
	r.claimed = make(map[int]Pin)
	r.mu.Unlock()
	for _, pin := range pins {
		_ = pin.Close()
	}
}

// Claimed reports whether the line is currently held.
func (r *PinRegistry) Claimed(line int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.claimed[line]
	return ok
}
