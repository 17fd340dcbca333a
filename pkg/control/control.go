// Package control is the orientation controller: a pure transition
// function from a controller state and a command value to the next state
// and the work the caller owes because of it.
//
// Mesh orientation and camera orientation are independent. Any change of
// the mesh orientation reports MeshChanged, which obliges the caller to
// recompute bounds and re-slice before reading either; camera changes
// report CameraChanged only and never invalidate bounds.
package control

import (
	"fmt"
	"math"

	"github.com/chazu/lamina/pkg/transform"
)

// PixelsPerRadian converts pointer travel to rotation while dragging.
const PixelsPerRadian = 100.0

// Step is the rotation of one discrete rotate command.
const Step = math.Pi / 2

// Mode is the pointer state.
type Mode uint8

const (
	Idle Mode = iota
	Dragging
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Point is a pointer position in pixels.
type Point struct {
	X, Y float64
}

// State is the complete controller state. It is a value: Apply returns a
// new State and never changes its receiver.
type State struct {
	Mode     Mode
	Pointer  Point // last pointer position seen while dragging
	Modified bool  // drag rotates the mesh instead of the camera
	Mesh     transform.Orientation
	Camera   transform.Camera
	Scale    float64 // model units per millimetre
	Height   float64 // slice height fraction
}

// NewState returns the state before any input: idle, unrotated mesh,
// default camera, unit scale and the slice at mid height.
func NewState() State {
	return State{
		Camera: transform.DefaultCamera(),
		Scale:  1,
		Height: 0.5,
	}
}

// Effect tells the caller what to recompute after a transition.
type Effect uint8

const (
	// MeshChanged: orientation changed; recompute bounds and re-slice.
	MeshChanged Effect = 1 << iota
	// CameraChanged: redraw the preview only.
	CameraChanged
	// ScaleChanged: refit the model, recompute bounds and re-slice.
	ScaleChanged
	// HeightChanged: re-slice at the new height.
	HeightChanged
)

// None is the effect of a transition that changed nothing observable.
const None Effect = 0

// Has reports whether all flags of f are set in e.
func (e Effect) Has(f Effect) bool {
	return e&f == f && f != 0
}

// NeedsSlice reports whether the current slice raster is stale.
func (e Effect) NeedsSlice() bool {
	return e&(MeshChanged|ScaleChanged|HeightChanged) != 0
}

func (e Effect) String() string {
	if e == None {
		return "none"
	}
	names := []string{"mesh", "camera", "scale", "height"}
	s := ""
	for i, n := range names {
		if e&(1<<i) != 0 {
			if s != "" {
				s += "|"
			}
			s += n
		}
	}
	return s
}

// Apply runs one transition.
func (s State) Apply(cmd Command) (State, Effect) {
	switch c := cmd.(type) {
	case Press:
		s.Mode = Dragging
		s.Pointer = Point{c.X, c.Y}
		s.Modified = c.Modified
		return s, None

	case Move:
		if s.Mode != Dragging {
			return s, None
		}
		dx := (s.Pointer.X - c.X) / PixelsPerRadian
		dy := (s.Pointer.Y - c.Y) / PixelsPerRadian
		s.Pointer = Point{c.X, c.Y}
		if dx == 0 && dy == 0 {
			return s, None
		}
		if s.Modified {
			s.Mesh.Roll += dx
			s.Mesh.Pitch += dy
			return s, MeshChanged
		}
		s.Camera.Roll -= dx
		s.Camera.Pitch += dy
		return s, CameraChanged

	case Release:
		s.Mode = Idle
		s.Modified = false
		return s, None

	case Rotate:
		if c.Steps == 0 {
			return s, None
		}
		a := float64(c.Steps) * Step
		switch c.Axis {
		case X:
			s.Mesh.Pitch += a
		case Y:
			s.Mesh.Yaw += a
		case Z:
			s.Mesh.Roll += a
		default:
			return s, None
		}
		return s, MeshChanged

	case ResetRotation:
		s.Mesh = transform.Orientation{}
		return s, MeshChanged

	case Rescale:
		if c.Scale <= 0 || c.Scale == s.Scale {
			return s, None
		}
		s.Scale = c.Scale
		return s, ScaleChanged

	case SetHeight:
		s.Height = c.Frac
		return s, HeightChanged
	}
	return s, None
}
