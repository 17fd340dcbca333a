// Package soft is a software slice.Device. It rasterizes into RGBA8 color
// and 8-bit stencil buffers on the CPU, which makes the slicer usable
// headless and deterministic in tests.
//
// There is no depth buffer and no depth clipping: the depth test always
// passes. Coverage follows a top-left fill rule with every edge evaluated
// in a canonical vertex order, so two triangles sharing an edge never both
// cover, nor both miss, a pixel center on that edge.
package soft

import (
	"errors"
	"fmt"
	"image"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/lamina/pkg/slice"
)

// Compile-time interface check.
var _ slice.Device = (*Device)(nil)

type framebuffer struct {
	w, h    int
	color   []byte
	stencil []uint8
}

func newFramebuffer(w, h int) *framebuffer {
	return &framebuffer{w: w, h: h, color: make([]byte, w*h*4), stencil: make([]uint8, w*h)}
}

func (f *framebuffer) Size() image.Point { return image.Pt(f.w, f.h) }

func (f *framebuffer) Release() {
	f.color, f.stencil = nil, nil
	f.w, f.h = 0, 0
}

type program struct {
	src slice.ProgramSource
}

func (p *program) Release() {}

// Device is a CPU implementation of slice.Device.
type Device struct {
	screen *framebuffer
	st     slice.State
}

// New returns a device whose display is width x height pixels. The
// initial state is the preview baseline: display bound, full viewport,
// depth test on, stencil test off.
func New(width, height int) *Device {
	return &Device{
		screen: newFramebuffer(width, height),
		st:     Baseline(width, height),
	}
}

// Baseline is the state New starts from.
func Baseline(width, height int) slice.State {
	return slice.State{
		Viewport:  image.Rect(0, 0, width, height),
		DepthTest: true,
		ColorMask: true,
		Stencil: slice.StencilState{
			Func: slice.Always,
			Mask: 0xff,
		},
	}
}

// Screen returns the display color buffer, bottom row first.
func (d *Device) Screen() []byte {
	return d.screen.color
}

func (d *Device) State() slice.State  { return d.st }
func (d *Device) Restore(s slice.State) { d.st = s }

func (d *Device) NewProgram(src slice.ProgramSource) (slice.Program, error) {
	switch {
	case src.Vertex == nil:
		return nil, fmt.Errorf("soft: program %q: no vertex stage", src.Name)
	case src.Fragment == nil:
		return nil, fmt.Errorf("soft: program %q: no fragment stage", src.Name)
	}
	return &program{src: src}, nil
}

func (d *Device) NewFramebuffer(width, height int) (slice.Framebuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("soft: framebuffer size must be positive")
	}
	return newFramebuffer(width, height), nil
}

func (d *Device) BindFramebuffer(fb slice.Framebuffer) { d.st.Framebuffer = fb }
func (d *Device) Viewport(r image.Rectangle)           { d.st.Viewport = r }
func (d *Device) SetDepthTest(enable bool)             { d.st.DepthTest = enable }
func (d *Device) SetStencilTest(enable bool)           { d.st.StencilTest = enable }
func (d *Device) ColorMask(write bool)                 { d.st.ColorMask = write }
func (d *Device) ClearStencil(s uint8)                 { d.st.ClearStencil = s }
func (d *Device) UseProgram(p slice.Program)           { d.st.Program = p }
func (d *Device) SetUniforms(u slice.Uniforms)         { d.st.Uniforms = u }

func (d *Device) ClearColor(r, g, b, a float32) {
	d.st.ClearColor = [4]float32{r, g, b, a}
}

func (d *Device) StencilFunc(fn slice.StencilFunc, ref, mask uint8) {
	d.st.Stencil.Func, d.st.Stencil.Ref, d.st.Stencil.Mask = fn, ref, mask
}

func (d *Device) StencilOpSeparate(face slice.Face, sfail, dpfail, dppass slice.StencilOp) {
	ops := slice.StencilOps{SFail: sfail, DPFail: dpfail, DPPass: dppass}
	if face == slice.Front || face == slice.FrontAndBack {
		d.st.Stencil.Front = ops
	}
	if face == slice.Back || face == slice.FrontAndBack {
		d.st.Stencil.Back = ops
	}
}

// target returns the bound framebuffer.
func (d *Device) target() *framebuffer {
	if d.st.Framebuffer == nil {
		return d.screen
	}
	return d.st.Framebuffer.(*framebuffer)
}

func (d *Device) Clear(bits slice.ClearBits) {
	fb := d.target()
	if bits&slice.ColorBit != 0 && d.st.ColorMask {
		var c [4]byte
		for i, f := range d.st.ClearColor {
			c[i] = toByte(f)
		}
		for i := 0; i < len(fb.color); i += 4 {
			copy(fb.color[i:i+4], c[:])
		}
	}
	if bits&slice.StencilBit != 0 {
		for i := range fb.stencil {
			fb.stencil[i] = d.st.ClearStencil
		}
	}
}

func toByte(f float32) byte {
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return 255
	}
	return byte(f*255 + 0.5)
}

func (d *Device) ReadPixels(r image.Rectangle, dst []byte) {
	fb := d.target()
	r = r.Intersect(image.Rect(0, 0, fb.w, fb.h))
	row := r.Dx() * 4
	for y := r.Min.Y; y < r.Max.Y; y++ {
		src := fb.color[(y*fb.w+r.Min.X)*4:]
		copy(dst[(y-r.Min.Y)*row:], src[:row])
	}
}

// vertex is a transformed vertex: window position and world position.
type vertex struct {
	x, y  float64
	world v3.Vec
}

func (d *Device) DrawTriangles(verts []v3.Vec) {
	if d.st.Program == nil {
		return
	}
	src := d.st.Program.(*program).src
	fb := d.target()
	u := d.st.Uniforms
	vp := d.st.Viewport
	clipRect := vp.Intersect(image.Rect(0, 0, fb.w, fb.h))
	if clipRect.Empty() {
		return
	}

	toWindow := func(p v3.Vec) vertex {
		clip, world := src.Vertex(&u, p)
		return vertex{
			x:     float64(vp.Min.X) + (clip.X+1)*0.5*float64(vp.Dx()),
			y:     float64(vp.Min.Y) + (clip.Y+1)*0.5*float64(vp.Dy()),
			world: world,
		}
	}

	for i := 0; i+2 < len(verts); i += 3 {
		v0, v1, v2 := toWindow(verts[i]), toWindow(verts[i+1]), toWindow(verts[i+2])
		d.drawTriangle(fb, &src, &u, clipRect, v0, v1, v2)
	}
}

func (d *Device) drawTriangle(fb *framebuffer, src *slice.ProgramSource, u *slice.Uniforms, clipRect image.Rectangle, v0, v1, v2 vertex) {
	area := edge(v0, v1, v2.x, v2.y)
	if !(area > 0 || area < 0) {
		return // zero area or NaN
	}
	ops := d.st.Stencil.Front
	if area < 0 {
		ops = d.st.Stencil.Back
		v1, v2 = v2, v1
	}

	minX := math.Floor(math.Min(v0.x, math.Min(v1.x, v2.x)))
	maxX := math.Ceil(math.Max(v0.x, math.Max(v1.x, v2.x)))
	minY := math.Floor(math.Min(v0.y, math.Min(v1.y, v2.y)))
	maxY := math.Ceil(math.Max(v0.y, math.Max(v1.y, v2.y)))
	box := image.Rect(int(minX), int(minY), int(maxX), int(maxY)).Intersect(clipRect)

	tl0, tl1, tl2 := topLeft(v1, v2), topLeft(v2, v0), topLeft(v0, v1)
	dw1 := v1.world.Sub(v0.world)
	dw2 := v2.world.Sub(v0.world)
	st := d.st.Stencil

	for y := box.Min.Y; y < box.Max.Y; y++ {
		py := float64(y) + 0.5
		for x := box.Min.X; x < box.Max.X; x++ {
			px := float64(x) + 0.5
			e0 := edge(v1, v2, px, py)
			e1 := edge(v2, v0, px, py)
			e2 := edge(v0, v1, px, py)
			if !inside(e0, tl0) || !inside(e1, tl1) || !inside(e2, tl2) {
				continue
			}
			sum := e0 + e1 + e2
			if sum <= 0 {
				continue
			}
			b1, b2 := e1/sum, e2/sum
			world := v0.world.Add(dw1.MulScalar(b1)).Add(dw2.MulScalar(b2))

			rgba, keep := src.Fragment(u, world)
			if !keep {
				continue
			}
			i := y*fb.w + x
			if d.st.StencilTest {
				s := fb.stencil[i]
				if !st.Func.Test(s, st.Ref, st.Mask) {
					fb.stencil[i] = ops.SFail.Apply(s, st.Ref)
					continue
				}
				fb.stencil[i] = ops.DPPass.Apply(s, st.Ref)
			}
			if d.st.ColorMask {
				copy(fb.color[i*4:i*4+4], rgba[:])
			}
		}
	}
}

// edge is the doubled signed area of (a, b, p): positive when p is left of
// a->b. The two vertices are always taken in the same order, so edge(a, b)
// is exactly -edge(b, a) at every point.
func edge(a, b vertex, px, py float64) float64 {
	if b.x < a.x || (b.x == a.x && b.y < a.y) {
		return -orient(b, a, px, py)
	}
	return orient(a, b, px, py)
}

func orient(a, b vertex, px, py float64) float64 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// topLeft reports whether a->b, an edge of a counter-clockwise triangle in
// y-up window coordinates, is a top or left edge.
func topLeft(a, b vertex) bool {
	dx, dy := b.x-a.x, b.y-a.y
	return dy < 0 || (dy == 0 && dx < 0)
}

func inside(e float64, tl bool) bool {
	return e > 0 || (e == 0 && tl)
}
