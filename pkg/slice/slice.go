// Package slice extracts planar cross-sections of a mesh by stencil parity
// rasterization.
//
// The slicing camera looks straight down -Z. Every fragment at or below
// the slice plane is counted: back faces (clockwise on screen) increment
// the pixel's stencil counter and front faces decrement it. For a closed
// mesh wound outward, a pixel whose vertical line is inside the solid at
// the plane ends with a non-zero counter, and a second pass paints those
// pixels opaque white.
package slice

import (
	"errors"
	"fmt"
	"image"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/lamina/pkg/mesh"
	"github.com/chazu/lamina/pkg/printer"
	"github.com/chazu/lamina/pkg/transform"
)

var (
	// ErrProgram is returned by Init when the slice program cannot be built.
	ErrProgram = errors.New("slice: program build failed")
	// ErrNotInitialized is returned by Rasterize before a successful Init.
	ErrNotInitialized = errors.New("slice: rasterizer not initialized")
)

var white = [4]uint8{255, 255, 255, 255}

// SliceProgram keeps fragments at or below the slice plane. The clip position
// is the world XY with Y stretched by the raster aspect so one world unit
// spans the same number of pixels on both axes.
var SliceProgram = ProgramSource{
	Name: "slice",
	Vertex: func(u *Uniforms, p v3.Vec) (clip, world v3.Vec) {
		world = u.Model.MulPosition(p)
		return v3.Vec{X: world.X, Y: world.Y * u.Aspect, Z: world.Z}, world
	},
	Fragment: func(u *Uniforms, world v3.Vec) ([4]uint8, bool) {
		if world.Z > u.PlaneZ() {
			return [4]uint8{}, false
		}
		return white, true
	},
}

// Rasterizer renders slices into an off-screen framebuffer of the printer
// resolution. It borrows the device for the duration of each call.
type Rasterizer struct {
	dev  Device
	cfg  printer.Config
	prog Program
	fb   Framebuffer
}

// New returns a rasterizer for dev. Init must be called before use.
func New(dev Device, cfg printer.Config) *Rasterizer {
	return &Rasterizer{dev: dev, cfg: cfg}
}

// Config returns the printer configuration the rasterizer renders for.
func (r *Rasterizer) Config() printer.Config {
	return r.cfg
}

// Init builds the slice program and the off-screen target. A failure here
// means no slice can ever be produced.
func (r *Rasterizer) Init() error {
	if err := r.cfg.Validate(); err != nil {
		return fmt.Errorf("slice: init: %w", err)
	}
	prog, err := r.dev.NewProgram(SliceProgram)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrProgram, SliceProgram.Name, err)
	}
	fb, err := r.dev.NewFramebuffer(r.cfg.Resolution.X, r.cfg.Resolution.Y)
	if err != nil {
		prog.Release()
		return fmt.Errorf("slice: framebuffer %s: %w", r.cfg.Resolution, err)
	}
	r.Release()
	r.prog, r.fb = prog, fb
	return nil
}

// Release frees the device objects created by Init.
func (r *Rasterizer) Release() {
	if r.prog != nil {
		r.prog.Release()
		r.prog = nil
	}
	if r.fb != nil {
		r.fb.Release()
		r.fb = nil
	}
}

// Rasterize slices m as placed by f at height fraction frac. Fractions
// outside [0, 1] are accepted; above 1 nothing is inside and below 0
// nothing is drawn. The device state is the same on return as on entry.
func (r *Rasterizer) Rasterize(m *mesh.Mesh, f transform.Frame, frac float64) (*Raster, error) {
	if r.prog == nil {
		return nil, ErrNotInitialized
	}
	w, h := r.cfg.Resolution.X, r.cfg.Resolution.Y
	out := NewRaster(w, h)

	saved := r.dev.State()
	defer r.dev.Restore(saved)

	d := r.dev
	vp := image.Rect(0, 0, w, h)
	d.BindFramebuffer(r.fb)
	d.Viewport(vp)
	d.SetDepthTest(false)
	d.SetStencilTest(true)
	d.ColorMask(true)
	d.ClearColor(0, 0, 0, 0)
	d.ClearStencil(0)
	d.Clear(ColorBit | StencilBit)

	if m == nil || m.IsEmpty() {
		return out, nil
	}
	verts := m.Vertices[:3*m.TriangleCount()]

	d.UseProgram(r.prog)
	d.SetUniforms(Uniforms{
		Model:  f.Model,
		ZMin:   f.Bounds.ZMin,
		ZMax:   f.Bounds.ZMax,
		Frac:   frac,
		Aspect: r.cfg.AspectRatio(),
	})

	// Parity: back faces count up, then front faces count down. Two draws
	// keep the saturating counters from clamping at zero mid-count.
	d.ColorMask(false)
	d.StencilFunc(Always, 0, 0xff)
	d.StencilOpSeparate(Front, Keep, Keep, Keep)
	d.StencilOpSeparate(Back, Keep, Keep, Incr)
	d.DrawTriangles(verts)
	d.StencilOpSeparate(Front, Keep, Keep, Decr)
	d.StencilOpSeparate(Back, Keep, Keep, Keep)
	d.DrawTriangles(verts)

	d.ColorMask(true)
	d.Clear(ColorBit)

	// Extract: paint every pixel left with a non-zero counter.
	d.StencilFunc(NotEqual, 0, 0xff)
	d.StencilOpSeparate(FrontAndBack, Keep, Keep, Keep)
	d.DrawTriangles(verts)

	d.ReadPixels(vp, out.Pix)
	return out, nil
}
