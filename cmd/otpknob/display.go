package main

import (
	"fmt"
	"image"
	"log/slog"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// ============================================================================
// Display surface
// ============================================================================
// The UI never touches pixels. It renders through a scoped frame: begin,
// zero or more text draws, commit. Sleep commits an explicit blank frame.
// The OLED implementation composes into an off-screen 1-bit image and pushes
// the whole frame at commit, which doubles as the atomic screen update.
// ============================================================================

// Frame receives draw calls between begin and commit.
type Frame interface {
	// Text draws s with its top-left corner at (x, y), in panel pixels.
	Text(x, y int, s string)
}

// Surface is the narrow display contract the UI consumes.
type Surface interface {
	// Draw runs render against a fresh frame and commits it.
	Draw(render func(Frame)) error
	// Blank commits an empty frame (burn-in protection during sleep).
	Blank() error
	Close() error
}

// ----------------------------------------------------------------------------
// SSD1306 OLED over I2C
// ----------------------------------------------------------------------------

type oledSurface struct {
	bus i2c.BusCloser
	dev *ssd1306.Dev
}

// newOLEDSurface opens the I2C bus and initializes the panel. The caller
// falls back to a null surface when no panel is reachable.
func newOLEDSurface(busName string, w, h int, logger *slog.Logger) (Surface, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	opts := ssd1306.DefaultOpts
	if w > 0 && h > 0 {
		opts.W = w
		opts.H = h
	}
	dev, err := ssd1306.NewI2C(bus, &opts)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("init ssd1306: %w", err)
	}
	logger.Info("oled initialized", "bus", busName, "w", opts.W, "h", opts.H)
	return &oledSurface{bus: bus, dev: dev}, nil
}

type oledFrame struct {
	img *image1bit.VerticalLSB
}

func (f *oledFrame) Text(x, y int, s string) {
	d := font.Drawer{
		Dst:  f.img,
		Src:  &image.Uniform{C: image1bit.On},
		Face: basicfont.Face7x13,
		// Dot is the baseline; callers position by top-left corner.
		Dot: fixed.P(x, y+basicfont.Face7x13.Ascent),
	}
	d.DrawString(s)
}

func (s *oledSurface) Draw(render func(Frame)) error {
	img := image1bit.NewVerticalLSB(s.dev.Bounds())
	render(&oledFrame{img: img})
	return s.dev.Draw(s.dev.Bounds(), img, image.Point{})
}

func (s *oledSurface) Blank() error {
	img := image1bit.NewVerticalLSB(s.dev.Bounds())
	return s.dev.Draw(s.dev.Bounds(), img, image.Point{})
}

func (s *oledSurface) Close() error {
	if err := s.dev.Halt(); err != nil {
		_ = s.bus.Close()
		return err
	}
	return s.bus.Close()
}

// ----------------------------------------------------------------------------
// null surface
// ----------------------------------------------------------------------------

// nullSurface swallows all drawing. Used when the device has no panel or
// panel init failed; the UI state machine keeps running regardless.
type nullSurface struct{}

func (nullSurface) Draw(func(Frame)) error { return nil }
func (nullSurface) Blank() error           { return nil }
func (nullSurface) Close() error           { return nil }
