// Package viewer is the slicing viewer core: it owns the loaded mesh, its
// hull candidates, the current transform frame, the controller state and
// the last slice, and keeps them consistent as commands arrive.
//
// A Viewer is not safe for concurrent use. It is driven by one goroutine,
// the same one that owns the rendering device.
package viewer

import (
	"errors"
	"fmt"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/lamina/pkg/control"
	"github.com/chazu/lamina/pkg/hull"
	"github.com/chazu/lamina/pkg/mesh"
	"github.com/chazu/lamina/pkg/printer"
	"github.com/chazu/lamina/pkg/slice"
	"github.com/chazu/lamina/pkg/transform"
)

// ErrNotInitialized is returned when slicing before Init succeeded.
var ErrNotInitialized = slice.ErrNotInitialized

// Scene is everything the preview needs to draw one frame.
type Scene struct {
	Loaded bool
	View   sdf.M44
	Model  sdf.M44
	Bounds transform.Bounds
	Frac   float64 // height of the slice indicator
	Aspect float64
	Slice  *slice.Raster
}

// BaseZ is the height of the build plate shading: the bottom of the mesh,
// or 0 when nothing is loaded.
func (s Scene) BaseZ() float64 {
	if !s.Loaded {
		return 0
	}
	return s.Bounds.ZMin
}

// PlaneZ is the world height of the slice indicator.
func (s Scene) PlaneZ() float64 {
	return s.Bounds.PlaneZ(s.Frac)
}

// Presenter draws the interactive preview. Present is called after every
// change that affects the picture.
type Presenter interface {
	Present(Scene)
}

// PresenterFunc adapts a function to a Presenter.
type PresenterFunc func(Scene)

// Present calls f(s).
func (f PresenterFunc) Present(s Scene) { f(s) }

type nopPresenter struct{}

func (nopPresenter) Present(Scene) {}

// Option configures a Viewer.
type Option func(*Viewer)

// WithPresenter sets the preview presenter.
func WithPresenter(p Presenter) Option {
	return func(v *Viewer) { v.pres = p }
}

// WithState starts from a controller state other than control.NewState.
func WithState(s control.State) Option {
	return func(v *Viewer) { v.state = s }
}

// Viewer is the core.
type Viewer struct {
	cfg   printer.Config
	rast  *slice.Rasterizer
	pres  Presenter
	ready bool

	state      control.State
	mesh       *mesh.Mesh
	candidates []v3.Vec
	frame      transform.Frame
	raster     *slice.Raster
}

// New returns a viewer slicing on dev at the resolution of cfg.
func New(dev slice.Device, cfg printer.Config, opts ...Option) *Viewer {
	v := &Viewer{
		cfg:   cfg,
		rast:  slice.New(dev, cfg),
		pres:  nopPresenter{},
		state: control.NewState(),
	}
	for _, o := range opts {
		o(v)
	}
	v.frame = transform.NewFrame(nil, v.state.Mesh, v.scale())
	return v
}

// Init builds the device resources. An error is fatal: no slice can be
// produced without them.
func (v *Viewer) Init() error {
	if err := v.rast.Init(); err != nil {
		return fmt.Errorf("viewer: init: %w", err)
	}
	v.ready = true
	v.raster = slice.NewRaster(v.cfg.Resolution.X, v.cfg.Resolution.Y)
	v.present()
	return nil
}

// Close releases the device resources.
func (v *Viewer) Close() {
	v.rast.Release()
	v.ready = false
}

// LoadMesh replaces the model. The mesh is reoriented in place if it is
// wound inside-out, the orientation is reset, and the model is fitted and
// sliced at the current height.
func (v *Viewer) LoadMesh(m *mesh.Mesh) error {
	if m == nil {
		return errors.New("viewer: load: nil mesh")
	}
	if !v.ready {
		return ErrNotInitialized
	}
	m.Orient()
	v.mesh = m
	v.candidates = hull.Points(m.Vertices, hull.Reduce(m.Vertices))
	v.state.Mesh = transform.Orientation{}
	v.frame = transform.NewFrame(v.candidates, v.state.Mesh, v.scale())
	if err := v.reslice(); err != nil {
		return err
	}
	v.present()
	return nil
}

// SliceAt moves the slice plane to frac and returns the section there.
// Without a model the raster is empty.
func (v *Viewer) SliceAt(frac float64) (*slice.Raster, error) {
	if err := v.Handle(control.SetHeight{Frac: frac}); err != nil {
		return nil, err
	}
	return v.raster, nil
}

// Handle applies one command and performs the recomputation it requires
// before returning.
func (v *Viewer) Handle(cmd control.Command) error {
	next, eff := v.state.Apply(cmd)
	if eff.NeedsSlice() && !v.ready {
		return ErrNotInitialized
	}
	v.state = next
	switch {
	case eff.Has(control.ScaleChanged):
		v.frame = v.frame.Refit(v.candidates, v.scale())
	case eff.Has(control.MeshChanged):
		v.frame = v.frame.Rotate(v.candidates, v.state.Mesh)
	}
	if eff.NeedsSlice() {
		if err := v.reslice(); err != nil {
			return err
		}
	}
	if eff != control.None {
		v.present()
	}
	return nil
}

// Drain handles every queued command in order.
func (v *Viewer) Drain(q *control.Queue) error {
	return q.Run(v.Handle)
}

func (v *Viewer) scale() float64 {
	return v.state.Scale * v.cfg.GLScale()
}

func (v *Viewer) reslice() error {
	r, err := v.rast.Rasterize(v.mesh, v.frame, v.state.Height)
	if err != nil {
		return fmt.Errorf("viewer: slice at %v: %w", v.state.Height, err)
	}
	v.raster = r
	return nil
}

func (v *Viewer) present() {
	v.pres.Present(v.Scene())
}

// Scene returns the current preview inputs.
func (v *Viewer) Scene() Scene {
	return Scene{
		Loaded: v.HasModel(),
		View:   v.View(),
		Model:  v.frame.Model,
		Bounds: v.frame.Bounds,
		Frac:   v.state.Height,
		Aspect: v.cfg.AspectRatio(),
		Slice:  v.raster,
	}
}

// HasModel reports whether a mesh is loaded.
func (v *Viewer) HasModel() bool { return v.mesh != nil }

// Bounds returns the world bounds of the oriented model.
func (v *Viewer) Bounds() transform.Bounds { return v.frame.Bounds }

// Frame returns the current transform snapshot.
func (v *Viewer) Frame() transform.Frame { return v.frame }

// State returns the controller state.
func (v *Viewer) State() control.State { return v.state }

// Camera returns the preview camera orientation.
func (v *Viewer) Camera() transform.Camera { return v.state.Camera }

// View returns the preview camera transform.
func (v *Viewer) View() sdf.M44 { return transform.ViewTransform(v.state.Camera) }

// Height returns the current slice height fraction.
func (v *Viewer) Height() float64 { return v.state.Height }

// Slice returns the most recent slice raster.
func (v *Viewer) Slice() *slice.Raster { return v.raster }

// Mesh returns the loaded mesh, or nil.
func (v *Viewer) Mesh() *mesh.Mesh { return v.mesh }

// Candidates returns the number of hull vertices used for bounds.
func (v *Viewer) Candidates() int { return len(v.candidates) }

// Config returns the printer configuration.
func (v *Viewer) Config() printer.Config { return v.cfg }
