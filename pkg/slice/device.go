package slice

import (
	"image"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/lamina/pkg/transform"
)

// Device is the rendering device shared by the rasterizer and the
// interactive preview. It follows the GL state machine: every setter
// changes global state that persists until the next call, so callers
// that borrow the device snapshot it with State and put it back with
// Restore.
type Device interface {
	State() State
	Restore(State)

	NewProgram(src ProgramSource) (Program, error)
	NewFramebuffer(width, height int) (Framebuffer, error)

	// BindFramebuffer selects the draw target; nil is the display.
	BindFramebuffer(fb Framebuffer)
	Viewport(r image.Rectangle)
	SetDepthTest(enable bool)
	SetStencilTest(enable bool)
	ColorMask(write bool)
	ClearColor(r, g, b, a float32)
	ClearStencil(s uint8)
	Clear(bits ClearBits)

	UseProgram(p Program)
	SetUniforms(u Uniforms)
	StencilFunc(fn StencilFunc, ref, mask uint8)
	StencilOpSeparate(face Face, sfail, dpfail, dppass StencilOp)

	// DrawTriangles draws a triangle soup with the current program.
	DrawTriangles(verts []v3.Vec)
	// ReadPixels copies RGBA rows of the bound framebuffer into dst,
	// bottom row first.
	ReadPixels(r image.Rectangle, dst []byte)
}

// Program is a linked shading program owned by a Device.
type Program interface {
	Release()
}

// Framebuffer is an off-screen color and stencil target owned by a Device.
type Framebuffer interface {
	Size() image.Point
	Release()
}

// State is a snapshot of everything a Device call can change.
type State struct {
	Framebuffer  Framebuffer
	Program      Program
	Viewport     image.Rectangle
	DepthTest    bool
	StencilTest  bool
	ColorMask    bool
	ClearColor   [4]float32
	ClearStencil uint8
	Stencil      StencilState
	Uniforms     Uniforms
}

// StencilState is the stencil function and the per-face operations.
type StencilState struct {
	Func  StencilFunc
	Ref   uint8
	Mask  uint8
	Front StencilOps
	Back  StencilOps
}

// StencilOps are the operations applied when the stencil test fails,
// when the depth test fails, and when both pass.
type StencilOps struct {
	SFail, DPFail, DPPass StencilOp
}

// Face selects the triangles a stencil operation applies to. Front faces
// are counter-clockwise on screen.
type Face uint8

const (
	Front Face = iota
	Back
	FrontAndBack
)

// StencilOp updates a stencil counter.
type StencilOp uint8

const (
	Keep StencilOp = iota
	Zero
	Replace
	Incr // saturates at 255
	Decr // saturates at 0
	Invert
	IncrWrap
	DecrWrap
)

// Apply returns the counter after the operation.
func (op StencilOp) Apply(s, ref uint8) uint8 {
	switch op {
	case Zero:
		return 0
	case Replace:
		return ref
	case Incr:
		if s == 255 {
			return s
		}
		return s + 1
	case Decr:
		if s == 0 {
			return s
		}
		return s - 1
	case Invert:
		return ^s
	case IncrWrap:
		return s + 1
	case DecrWrap:
		return s - 1
	}
	return s
}

// StencilFunc compares the masked reference with the masked counter.
type StencilFunc uint8

const (
	Always StencilFunc = iota
	Never
	Equal
	NotEqual
	Less
	Greater
)

// Test reports whether a fragment over counter s passes.
func (fn StencilFunc) Test(s, ref, mask uint8) bool {
	r, v := ref&mask, s&mask
	switch fn {
	case Never:
		return false
	case Equal:
		return r == v
	case NotEqual:
		return r != v
	case Less:
		return r < v
	case Greater:
		return r > v
	}
	return true
}

// ClearBits selects the buffers cleared by Device.Clear.
type ClearBits uint8

const (
	ColorBit ClearBits = 1 << iota
	StencilBit
	DepthBit
)

// Uniforms are the per-draw inputs of a program.
type Uniforms struct {
	Model  sdf.M44
	ZMin   float64
	ZMax   float64
	Frac   float64
	Aspect float64
}

// PlaneZ is the world height the program slices at.
func (u *Uniforms) PlaneZ() float64 {
	return transform.Bounds{ZMin: u.ZMin, ZMax: u.ZMax}.PlaneZ(u.Frac)
}

// ProgramSource describes a program: a vertex stage mapping a model point
// to clip space and world space, and a fragment stage that shades or
// discards a fragment from its interpolated world position.
type ProgramSource struct {
	Name     string
	Vertex   func(u *Uniforms, p v3.Vec) (clip, world v3.Vec)
	Fragment func(u *Uniforms, world v3.Vec) (rgba [4]uint8, keep bool)
}
