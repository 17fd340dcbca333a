package soft

import (
	"image"
	"math"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/lamina/pkg/slice"
)

// passThrough draws model XY as clip XY and keeps every fragment.
var passThrough = slice.ProgramSource{
	Name: "pass",
	Vertex: func(u *slice.Uniforms, p v3.Vec) (clip, world v3.Vec) {
		return p, p
	},
	Fragment: func(u *slice.Uniforms, world v3.Vec) ([4]uint8, bool) {
		return [4]uint8{255, 255, 255, 255}, true
	},
}

// counting sets up an 8x8 offscreen target that increments the stencil
// for every covered fragment of either facing.
func counting(t *testing.T) (*Device, *framebuffer) {
	t.Helper()
	d := New(16, 16)
	p, err := d.NewProgram(passThrough)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := d.NewFramebuffer(8, 8)
	if err != nil {
		t.Fatal(err)
	}
	d.BindFramebuffer(fb)
	d.Viewport(image.Rect(0, 0, 8, 8))
	d.SetStencilTest(true)
	d.StencilFunc(slice.Always, 0, 0xff)
	d.StencilOpSeparate(slice.FrontAndBack, slice.Keep, slice.Keep, slice.Incr)
	d.UseProgram(p)
	return d, fb.(*framebuffer)
}

func stencilHistogram(fb *framebuffer) map[uint8]int {
	h := map[uint8]int{}
	for _, s := range fb.stencil {
		h[s]++
	}
	return h
}

func TestSharedEdgeCoveredOnce(t *testing.T) {
	tests := []struct {
		name  string
		verts []v3.Vec
	}{
		{
			// Diagonal passes exactly through pixel centers.
			name: "square split on diagonal",
			verts: []v3.Vec{
				{X: -0.5, Y: -0.5}, {X: 0.5, Y: -0.5}, {X: 0.5, Y: 0.5},
				{X: -0.5, Y: -0.5}, {X: 0.5, Y: 0.5}, {X: -0.5, Y: 0.5},
			},
		},
		{
			name: "square split on anti-diagonal mixed winding",
			verts: []v3.Vec{
				{X: -0.5, Y: -0.5}, {X: 0.5, Y: -0.5}, {X: -0.5, Y: 0.5},
				{X: 0.5, Y: -0.5}, {X: -0.5, Y: 0.5}, {X: 0.5, Y: 0.5},
			},
		},
		{
			name: "fan around a pixel center",
			verts: func() []v3.Vec {
				c := v3.Vec{X: 0.125, Y: -0.125} // window (4.5, 3.5)
				ring := []v3.Vec{
					{X: -0.5, Y: -0.5}, {X: 0.5, Y: -0.5}, {X: 0.5, Y: 0.5}, {X: -0.5, Y: 0.5},
				}
				var out []v3.Vec
				for i := range ring {
					out = append(out, c, ring[i], ring[(i+1)%len(ring)])
				}
				return out
			}(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, fb := counting(t)
			d.DrawTriangles(tt.verts)
			h := stencilHistogram(fb)
			if h[1] != 16 {
				t.Errorf("pixels covered once = %d, want 16 (histogram %v)", h[1], h)
			}
			if len(h) != 2 {
				t.Errorf("stencil values %v, want only 0 and 1", h)
			}
		})
	}
}

func TestFacingSelectsStencilOps(t *testing.T) {
	ccw := []v3.Vec{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}}
	cw := []v3.Vec{{X: -1, Y: -1}, {X: 1, Y: 1}, {X: 1, Y: -1}}

	tests := []struct {
		name  string
		verts []v3.Vec
		want  uint8
	}{
		{"counter-clockwise is front", ccw, 7},
		{"clockwise is back", cw, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, fb := counting(t)
			d.StencilOpSeparate(slice.Front, slice.Keep, slice.Keep, slice.Replace)
			d.StencilOpSeparate(slice.Back, slice.Keep, slice.Keep, slice.Invert)
			d.StencilFunc(slice.Always, 7, 0xff)
			for i := range fb.stencil {
				fb.stencil[i] = 0xf6
			}
			d.DrawTriangles(tt.verts)
			// Pixel (6, 1) is inside both triangles' lower-right half.
			if got := fb.stencil[1*8+6]; got != tt.want {
				t.Errorf("stencil = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestStencilFuncGatesColor(t *testing.T) {
	d, fb := counting(t)
	for i := range fb.stencil {
		if i%2 == 0 {
			fb.stencil[i] = 1
		}
	}
	d.StencilFunc(slice.NotEqual, 0, 0xff)
	d.StencilOpSeparate(slice.FrontAndBack, slice.Keep, slice.Keep, slice.Keep)
	d.DrawTriangles([]v3.Vec{
		{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1},
		{X: -1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1},
	})
	for i, s := range fb.stencil {
		painted := fb.color[i*4+3] != 0
		if painted != (s != 0) {
			t.Fatalf("pixel %d: painted=%v with stencil %d", i, painted, s)
		}
	}
}

func TestDegenerateTrianglesDrawNothing(t *testing.T) {
	d, fb := counting(t)
	d.DrawTriangles([]v3.Vec{
		{X: -1, Y: -1}, {X: 1, Y: 1}, {X: 0, Y: 0}, // collinear
		{X: 0.5, Y: 0.5}, {X: 0.5, Y: 0.5}, {X: 0.5, Y: 0.5},
		{X: math.NaN(), Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1},
		{X: 1, Y: 1}, // trailing partial triangle
	})
	if h := stencilHistogram(fb); h[0] != 64 {
		t.Errorf("histogram = %v, want all zero", h)
	}
}

func TestDiscardedFragmentsKeepStencil(t *testing.T) {
	d := New(4, 4)
	p, err := d.NewProgram(slice.ProgramSource{
		Name:   "discard",
		Vertex: passThrough.Vertex,
		Fragment: func(*slice.Uniforms, v3.Vec) ([4]uint8, bool) {
			return [4]uint8{}, false
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	d.UseProgram(p)
	d.SetStencilTest(true)
	d.StencilOpSeparate(slice.FrontAndBack, slice.Incr, slice.Incr, slice.Incr)
	d.DrawTriangles([]v3.Vec{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}})
	for _, s := range d.screen.stencil {
		if s != 0 {
			t.Fatal("discarded fragment updated the stencil")
		}
	}
}

func TestClearHonoursColorMask(t *testing.T) {
	d := New(2, 2)
	d.ClearColor(1, 0, 0.5, 1)
	d.ClearStencil(3)
	d.ColorMask(false)
	d.Clear(slice.ColorBit | slice.StencilBit)
	for _, b := range d.Screen() {
		if b != 0 {
			t.Fatal("masked clear wrote color")
		}
	}
	for _, s := range d.screen.stencil {
		if s != 3 {
			t.Fatalf("stencil = %d, want 3", s)
		}
	}

	d.ColorMask(true)
	d.Clear(slice.ColorBit)
	want := []byte{255, 0, 128, 255}
	for i := 0; i < 4; i++ {
		if got := d.Screen()[i]; got != want[i] {
			t.Errorf("channel %d = %d, want %d", i, got, want[i])
		}
	}
}

func TestReadPixelsSubRect(t *testing.T) {
	d := New(4, 3)
	for i := range d.screen.color {
		d.screen.color[i] = byte(i / 4)
	}
	dst := make([]byte, 2*2*4)
	d.ReadPixels(image.Rect(1, 1, 3, 3), dst)
	want := []byte{5, 6, 9, 10}
	for i, w := range want {
		if got := dst[i*4]; got != w {
			t.Errorf("pixel %d = %d, want %d", i, got, w)
		}
	}
}

func TestStateRoundTrip(t *testing.T) {
	d := New(8, 8)
	before := d.State()
	if before != Baseline(8, 8) {
		t.Fatalf("initial state %+v is not the baseline", before)
	}
	fb, _ := d.NewFramebuffer(2, 2)
	d.BindFramebuffer(fb)
	d.SetDepthTest(false)
	d.SetStencilTest(true)
	d.Viewport(image.Rect(0, 0, 2, 2))
	d.StencilOpSeparate(slice.Back, slice.Keep, slice.Keep, slice.Incr)
	if d.State() == before {
		t.Fatal("setters did not change state")
	}
	d.Restore(before)
	if d.State() != before {
		t.Errorf("state after Restore = %+v, want %+v", d.State(), before)
	}
}

func TestNewProgramErrors(t *testing.T) {
	d := New(1, 1)
	if _, err := d.NewProgram(slice.ProgramSource{Name: "no-vertex", Fragment: passThrough.Fragment}); err == nil {
		t.Error("NewProgram without vertex stage should fail")
	}
	if _, err := d.NewProgram(slice.ProgramSource{Name: "no-fragment", Vertex: passThrough.Vertex}); err == nil {
		t.Error("NewProgram without fragment stage should fail")
	}
	if _, err := d.NewFramebuffer(0, 4); err == nil {
		t.Error("NewFramebuffer(0, 4) should fail")
	}
}
