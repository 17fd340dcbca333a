package transform

import (
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Frame is an immutable snapshot of everything derived from the mesh
// orientation and scale. Operations return a new Frame; Model and Bounds
// always agree with Orientation and Fit.
type Frame struct {
	Orientation Orientation `json:"orientation"`
	Scale       float64     `json:"scale"`
	Fit         sdf.M44     `json:"-"`
	Model       sdf.M44     `json:"-"`
	Bounds      Bounds      `json:"bounds"`
}

// NewFrame fits the candidate points at the given scale and computes the
// bounds for orientation o.
func NewFrame(points []v3.Vec, o Orientation, scale float64) Frame {
	return build(points, o, scale, AutoFit(points, scale))
}

// Rotate returns the frame for a new orientation, keeping the fit.
func (f Frame) Rotate(points []v3.Vec, o Orientation) Frame {
	return build(points, o, f.Scale, f.Fit)
}

// Refit returns the frame for a new scale, keeping the orientation.
func (f Frame) Refit(points []v3.Vec, scale float64) Frame {
	return NewFrame(points, f.Orientation, scale)
}

func build(points []v3.Vec, o Orientation, scale float64, fit sdf.M44) Frame {
	model := ModelTransform(o, fit)
	return Frame{
		Orientation: o,
		Scale:       scale,
		Fit:         fit,
		Model:       model,
		Bounds:      ComputeBounds(points, model),
	}
}
