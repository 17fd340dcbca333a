package slice_test

import (
	"errors"
	"image"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/lamina/pkg/hull"
	"github.com/chazu/lamina/pkg/mesh"
	"github.com/chazu/lamina/pkg/printer"
	"github.com/chazu/lamina/pkg/slice"
	"github.com/chazu/lamina/pkg/slice/soft"
	"github.com/chazu/lamina/pkg/transform"
)

// testConfig maps one world unit to a quarter of a 64x64 raster.
var testConfig = printer.Config{Resolution: printer.Resolution{X: 64, Y: 64}, WidthMM: 2}

// recorder counts draws and otherwise forwards to a software device.
type recorder struct {
	slice.Device
	draws int
}

func (r *recorder) DrawTriangles(verts []v3.Vec) {
	r.draws++
	r.Device.DrawTriangles(verts)
}

// brokenDevice fails to build any program.
type brokenDevice struct {
	slice.Device
}

func (brokenDevice) NewProgram(src slice.ProgramSource) (slice.Program, error) {
	return nil, errors.New("0:12: syntax error")
}

func frameFor(m *mesh.Mesh, o transform.Orientation, cfg printer.Config) transform.Frame {
	pts := hull.Points(m.Vertices, hull.Reduce(m.Vertices))
	return transform.NewFrame(pts, o, cfg.GLScale())
}

func newRasterizer(t *testing.T, dev slice.Device, cfg printer.Config) *slice.Rasterizer {
	t.Helper()
	r := slice.New(dev, cfg)
	if err := r.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return r
}

func TestRasterizeUnitCube(t *testing.T) {
	cube := mesh.Cuboid(v3.Vec{X: 1, Y: 1, Z: 1})
	f := frameFor(cube, transform.Orientation{}, testConfig)
	r := newRasterizer(t, soft.New(32, 32), testConfig)

	tests := []struct {
		name      string
		frac      float64
		footprint image.Rectangle
	}{
		{"middle", 0.5, image.Rect(16, 16, 48, 48)},
		{"quarter", 0.25, image.Rect(16, 16, 48, 48)},
		{"bottom face", 0, image.Rect(16, 16, 48, 48)},
		{"top face", 1, image.Rectangle{}},
		{"above", 1.01, image.Rectangle{}},
		{"below", -0.01, image.Rectangle{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Rasterize(cube, f, tt.frac)
			if err != nil {
				t.Fatalf("Rasterize() error = %v", err)
			}
			if got.Width != 64 || got.Height != 64 || len(got.Pix) != 64*64*4 {
				t.Fatalf("raster is %dx%d with %d bytes", got.Width, got.Height, len(got.Pix))
			}
			if fp := got.Footprint(); fp != tt.footprint {
				t.Errorf("Footprint() = %v, want %v", fp, tt.footprint)
			}
			if want := tt.footprint.Dx() * tt.footprint.Dy(); got.CoveredCount() != want {
				t.Errorf("CoveredCount() = %d, want %d (solid footprint)", got.CoveredCount(), want)
			}
		})
	}
}

func TestRasterizeRotatedCube(t *testing.T) {
	// A cube standing on an edge: its section at mid height is a rectangle
	// sqrt(2) wide along X.
	cube := mesh.Cuboid(v3.Vec{X: 1, Y: 1, Z: 1})
	f := frameFor(cube, transform.Orientation{Yaw: 0.7853981633974483}, testConfig)
	r := newRasterizer(t, soft.New(1, 1), testConfig)

	got, err := r.Rasterize(cube, f, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	fp := got.Footprint()
	if fp.Dy() != 32 {
		t.Errorf("footprint height = %d, want 32", fp.Dy())
	}
	if fp.Dx() < 44 || fp.Dx() > 46 {
		t.Errorf("footprint width = %d, want about 45", fp.Dx())
	}
	if got.CoveredCount() != fp.Dx()*fp.Dy() {
		t.Errorf("section has holes: %d covered in %v", got.CoveredCount(), fp)
	}
}

func TestRasterizeNonSquareResolution(t *testing.T) {
	cfg := printer.Config{Resolution: printer.Resolution{X: 64, Y: 32}, WidthMM: 2}
	cube := mesh.Cuboid(v3.Vec{X: 1, Y: 1, Z: 1})
	r := newRasterizer(t, soft.New(1, 1), cfg)

	got, err := r.Rasterize(cube, frameFor(cube, transform.Orientation{}, cfg), 0.5)
	if err != nil {
		t.Fatal(err)
	}
	// Pixels stay square: the cube still spans 32 pixels on both axes.
	if fp, want := got.Footprint(), image.Rect(16, 0, 48, 32); fp != want {
		t.Errorf("Footprint() = %v, want %v", fp, want)
	}
}

func TestRasterizeRestoresDeviceState(t *testing.T) {
	cube := mesh.Cuboid(v3.Vec{X: 1, Y: 1, Z: 1})
	f := frameFor(cube, transform.Orientation{}, testConfig)

	tests := []struct {
		name      string
		mesh      *mesh.Mesh
		wantDraws int
	}{
		{"cube", cube, 3},
		{"empty", mesh.New("empty", nil), 0},
		{"nil", nil, 0},
		{"partial triangle", mesh.New("partial", []v3.Vec{{X: 1}, {Y: 1}}), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := soft.New(320, 200)
			rec := &recorder{Device: dev}
			r := newRasterizer(t, rec, testConfig)

			// A preview state that differs from every value the slicer sets.
			dev.Viewport(image.Rect(10, 10, 300, 190))
			dev.StencilFunc(slice.Equal, 4, 0x0f)
			dev.ClearColor(0.2, 0.2, 0.2, 1)
			before := dev.State()

			got, err := r.Rasterize(tt.mesh, f, 0.5)
			if err != nil {
				t.Fatalf("Rasterize() error = %v", err)
			}
			if after := dev.State(); after != before {
				t.Errorf("state after Rasterize = %+v, want %+v", after, before)
			}
			if rec.draws != tt.wantDraws {
				t.Errorf("draws = %d, want %d", rec.draws, tt.wantDraws)
			}
			if tt.wantDraws == 0 && !got.IsEmpty() {
				t.Error("degenerate mesh produced coverage")
			}
		})
	}
}

func TestRasterizeIdempotent(t *testing.T) {
	cube := mesh.Cuboid(v3.Vec{X: 1, Y: 2, Z: 1.5})
	f := frameFor(cube, transform.Orientation{Roll: 0.3, Pitch: 0.2}, testConfig)
	r := newRasterizer(t, soft.New(1, 1), testConfig)

	a, err := r.Rasterize(cube, f, 0.4)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Rasterize(cube, f, 0.4)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Error("two slices at the same height differ")
	}
	if a.IsEmpty() {
		t.Error("tilted box section is empty")
	}
}

func TestInitErrors(t *testing.T) {
	t.Run("program", func(t *testing.T) {
		r := slice.New(brokenDevice{Device: soft.New(1, 1)}, testConfig)
		err := r.Init()
		if !errors.Is(err, slice.ErrProgram) {
			t.Fatalf("Init() error = %v, want ErrProgram", err)
		}
	})
	t.Run("config", func(t *testing.T) {
		r := slice.New(soft.New(1, 1), printer.Config{})
		if err := r.Init(); !errors.Is(err, printer.ErrInvalid) {
			t.Fatalf("Init() error = %v, want printer.ErrInvalid", err)
		}
	})
	t.Run("not initialized", func(t *testing.T) {
		r := slice.New(soft.New(1, 1), testConfig)
		_, err := r.Rasterize(mesh.Cuboid(v3.Vec{X: 1, Y: 1, Z: 1}), transform.Frame{}, 0.5)
		if !errors.Is(err, slice.ErrNotInitialized) {
			t.Fatalf("Rasterize() error = %v, want ErrNotInitialized", err)
		}
	})
}
