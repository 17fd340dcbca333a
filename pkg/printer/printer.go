// Package printer describes the output raster the slicer renders into and
// the physical size it covers.
package printer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrInvalid is returned by Validate for unusable configurations.
var ErrInvalid = errors.New("printer: invalid configuration")

// Resolution is the output raster size in pixels.
type Resolution struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// String formats the resolution as WxH.
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.X, r.Y)
}

// ParseResolution parses a WxH string such as "1280x800".
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("printer: resolution %q: expected WxH", s)
	}
	x, err := strconv.Atoi(w)
	if err != nil {
		return Resolution{}, fmt.Errorf("printer: resolution %q: width: %w", s, err)
	}
	y, err := strconv.Atoi(h)
	if err != nil {
		return Resolution{}, fmt.Errorf("printer: resolution %q: height: %w", s, err)
	}
	return Resolution{X: x, Y: y}, nil
}

// Config is the printer/output configuration. The slicer only reads it.
type Config struct {
	Resolution Resolution `json:"resolution"`
	WidthMM    float64    `json:"width_mm"` // physical width covered by Resolution.X
}

// Default returns a 1280x800 projector covering a 128 mm wide bed.
func Default() Config {
	return Config{
		Resolution: Resolution{X: 1280, Y: 800},
		WidthMM:    128,
	}
}

// Load reads a JSON configuration. Fields missing from the file keep their
// Default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("printer: load %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("printer: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration describes a usable raster.
func (c Config) Validate() error {
	if c.Resolution.X <= 0 || c.Resolution.Y <= 0 {
		return fmt.Errorf("%w: resolution %s", ErrInvalid, c.Resolution)
	}
	if c.WidthMM <= 0 {
		return fmt.Errorf("%w: width %v mm", ErrInvalid, c.WidthMM)
	}
	return nil
}

// AspectRatio is the raster width divided by its height.
func (c Config) AspectRatio() float64 {
	return float64(c.Resolution.X) / float64(c.Resolution.Y)
}

// PixelCount is the number of pixels in one slice.
func (c Config) PixelCount() int {
	return c.Resolution.X * c.Resolution.Y
}

// GLScale converts millimetres to world units. The bed width spans the
// world range [-1, 1].
func (c Config) GLScale() float64 {
	return 2 / c.WidthMM
}
