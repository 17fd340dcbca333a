package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"log"
	"strings"
	"sync"

	"github.com/chazu/lamina/pkg/control"
	"github.com/chazu/lamina/pkg/engine"
	"github.com/chazu/lamina/pkg/kernel"
	"github.com/chazu/lamina/pkg/kernel/sdfx"
	"github.com/chazu/lamina/pkg/mesh"
	"github.com/chazu/lamina/pkg/printer"
	"github.com/chazu/lamina/pkg/slice"
	"github.com/chazu/lamina/pkg/slice/soft"
	"github.com/chazu/lamina/pkg/tessellate"
	"github.com/chazu/lamina/pkg/transform"
	"github.com/chazu/lamina/pkg/viewer"
)

// SceneEvent is the runtime event carrying a SceneData after every change.
const SceneEvent = "scene"

// App is the Wails backend. It exposes methods to the frontend via bindings.
// Bindings may be called from several goroutines; mu serializes access to
// the viewer, which is single-threaded.
type App struct {
	ctx    context.Context
	engine *engine.Engine
	kernel kernel.Kernel

	mu      sync.Mutex
	viewer  *viewer.Viewer
	initErr error
	status  string
	emit    func(name string, data ...interface{})
}

// MeshData is the JSON-serializable mesh format sent to the frontend.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Name     string    `json:"name"`
}

// EvalErrorData is a JSON-serializable eval error for the frontend.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// EvalResult is the full result returned to the frontend.
type EvalResult struct {
	Loaded   bool            `json:"loaded"`
	Commands int             `json:"commands"`
	Errors   []EvalErrorData `json:"errors"`
	Warnings []EvalErrorData `json:"warnings"`
}

// SliceData is one slice for the frontend.
type SliceData struct {
	Image   string  `json:"image"` // PNG data URL
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Covered int     `json:"covered"`
	Frac    float64 `json:"frac"`
	Error   string  `json:"error,omitempty"`
}

// SceneData is the preview state: column-major 4x4 matrices as the
// frontend's GL code expects them.
type SceneData struct {
	Loaded bool             `json:"loaded"`
	View   [16]float64      `json:"view"`
	Model  [16]float64      `json:"model"`
	Bounds transform.Bounds `json:"bounds"`
	BaseZ  float64          `json:"baseZ"`
	PlaneZ float64          `json:"planeZ"`
	Frac   float64          `json:"frac"`
	Aspect float64          `json:"aspect"`
}

// NewApp creates an App for the default printer with the sdfx kernel.
func NewApp() *App {
	return newApp(printer.Default())
}

func newApp(cfg printer.Config) *App {
	a := &App{
		engine: engine.NewEngine(),
		kernel: sdfx.New(),
	}
	dev := soft.New(cfg.Resolution.X, cfg.Resolution.Y)
	a.viewer = viewer.New(dev, cfg, viewer.WithPresenter(viewer.PresenterFunc(a.present)))
	if err := a.viewer.Init(); err != nil {
		log.Printf("Init error: %v", err)
		a.initErr = err
	}
	return a
}

// present forwards scenes to the frontend once the runtime is up.
func (a *App) present(s viewer.Scene) {
	if a.emit != nil {
		a.emit(SceneEvent, sceneData(s))
	}
}

func sceneData(s viewer.Scene) SceneData {
	return SceneData{
		Loaded: s.Loaded,
		View:   transform.ColumnMajor(s.View),
		Model:  transform.ColumnMajor(s.Model),
		Bounds: s.Bounds,
		BaseZ:  s.BaseZ(),
		PlaneZ: s.PlaneZ(),
		Frac:   s.Frac,
		Aspect: s.Aspect,
	}
}

// runtimeContext returns the context passed to startup, or Background
// before the runtime is up.
func (a *App) runtimeContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

func (a *App) ready() error {
	if a.initErr != nil {
		return fmt.Errorf("viewer unavailable: %w", a.initErr)
	}
	return nil
}

// LoadSTL loads an STL file and slices it at the current height.
func (a *App) LoadSTL(path string) error {
	m, err := mesh.ReadSTLFile(path)
	if err != nil {
		log.Printf("LoadSTL error: %v", err)
		return err
	}
	return a.load(m)
}

// LoadSTLData loads a base64 encoded STL file picked in the frontend.
func (a *App) LoadSTLData(name, data string) error {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		log.Printf("LoadSTLData error: %v", err)
		return fmt.Errorf("decode %s: %w", name, err)
	}
	m, err := mesh.ReadSTL(bytes.NewReader(raw))
	if err != nil {
		log.Printf("LoadSTLData error: %v", err)
		return err
	}
	if m.Name == "" {
		m.Name = name
	}
	return a.load(m)
}

func (a *App) load(m *mesh.Mesh) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.viewer.LoadMesh(m); err != nil {
		log.Printf("LoadMesh error: %v", err)
		return err
	}
	a.status = ""
	return nil
}

// Evaluate runs a lamina script: its model, if any, replaces the loaded
// mesh and its gesture commands are then applied in order.
func (a *App) Evaluate(source string) EvalResult {
	result := EvalResult{
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}

	s, evalErrs, err := a.engine.EvaluateContext(a.runtimeContext(), source)
	if err != nil {
		log.Printf("Evaluate fatal error: %v", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{
				Line:    e.Line,
				Col:     e.Col,
				Message: e.Message,
			})
		}
		return result
	}

	if s.Model != nil {
		v := tessellate.Validate(s.Model)
		for _, w := range v.Warnings {
			result.Warnings = append(result.Warnings, EvalErrorData{Message: w.Error()})
		}
		if !v.OK() {
			for _, e := range v.Errors {
				result.Errors = append(result.Errors, EvalErrorData{Message: e.Error()})
			}
			return result
		}

		m, err := tessellate.Tessellate(s.Model, a.kernel)
		if err != nil {
			log.Printf("Tessellate error: %v", err)
			result.Errors = append(result.Errors, EvalErrorData{
				Message: "tessellation failed: " + err.Error(),
			})
			return result
		}
		if err := a.load(m); err != nil {
			result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
			return result
		}
		result.Loaded = true
	}

	if len(s.Commands) > 0 {
		var q control.Queue
		q.Push(s.Commands...)
		a.mu.Lock()
		err := a.ready()
		if err == nil {
			err = a.viewer.Drain(&q)
		}
		a.mu.Unlock()
		if err != nil {
			log.Printf("Evaluate commands error: %v", err)
			result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		}
		result.Commands = len(s.Commands) - q.Len()
	}
	return result
}

// GetSliceAt moves the slice plane and returns the section as a PNG.
func (a *App) GetSliceAt(frac float64) SliceData {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := SliceData{Frac: frac}
	if err := a.ready(); err != nil {
		out.Error = err.Error()
		return out
	}
	r, err := a.viewer.SliceAt(frac)
	if err != nil {
		log.Printf("GetSliceAt error: %v", err)
		out.Error = err.Error()
		return out
	}
	url, err := dataURL(r)
	if err != nil {
		log.Printf("GetSliceAt encode error: %v", err)
		out.Error = err.Error()
		return out
	}
	out.Image = url
	out.Width, out.Height = r.Width, r.Height
	out.Covered = r.CoveredCount()
	return out
}

func dataURL(r *slice.Raster) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, r.Image()); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("data:image/png;base64,")
	sb.WriteString(base64.StdEncoding.EncodeToString(buf.Bytes()))
	return sb.String(), nil
}

// GetBounds returns the world bounds of the oriented model.
func (a *App) GetBounds() transform.Bounds {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewer.Bounds()
}

// HasModel reports whether a mesh is loaded.
func (a *App) HasModel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewer.HasModel()
}

// GetMesh returns the loaded mesh with flat normals for the preview.
func (a *App) GetMesh() MeshData {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := a.viewer.Mesh()
	if m == nil {
		return MeshData{Vertices: []float32{}, Normals: []float32{}}
	}
	normals := m.Normals()
	n := m.TriangleCount() * 3
	out := MeshData{
		Vertices: make([]float32, 0, n*3),
		Normals:  make([]float32, 0, n*3),
		Name:     m.Name,
	}
	for i := 0; i < n; i++ {
		v, nv := m.Vertices[i], normals[i]
		out.Vertices = append(out.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
		out.Normals = append(out.Normals, float32(nv.X), float32(nv.Y), float32(nv.Z))
	}
	return out
}

// GetScene returns the current preview state.
func (a *App) GetScene() SceneData {
	a.mu.Lock()
	defer a.mu.Unlock()
	return sceneData(a.viewer.Scene())
}

// GetStatus returns the last gesture error, or "" after a successful load.
func (a *App) GetStatus() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *App) handle(op string, cmd control.Command) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.viewer.Handle(cmd); err != nil {
		log.Printf("%s error: %v", op, err)
		a.status = err.Error()
		return err
	}
	return nil
}

// PointerDown starts a drag. A modified drag rotates the mesh.
func (a *App) PointerDown(x, y float64, modified bool) error {
	return a.handle("PointerDown", control.Press{X: x, Y: y, Modified: modified})
}

// PointerMove continues a drag.
func (a *App) PointerMove(x, y float64) error {
	return a.handle("PointerMove", control.Move{X: x, Y: y})
}

// PointerUp ends a drag.
func (a *App) PointerUp() error {
	return a.handle("PointerUp", control.Release{})
}

// Rotate turns the mesh by quarter turns about "x", "y" or "z".
func (a *App) Rotate(axis string, steps int) error {
	ax, err := control.ParseAxis(axis)
	if err != nil {
		return err
	}
	return a.handle("Rotate", control.Rotate{Axis: ax, Steps: steps})
}

// ResetRotation returns the mesh to its loaded orientation.
func (a *App) ResetRotation() error {
	return a.handle("ResetRotation", control.ResetRotation{})
}

// SetScale sets the model units per millimetre and refits.
func (a *App) SetScale(scale float64) error {
	if scale <= 0 {
		return errors.New("scale must be positive")
	}
	return a.handle("SetScale", control.Rescale{Scale: scale})
}

// shutdown releases the slicing device.
func (a *App) shutdown(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.viewer.Close()
}
