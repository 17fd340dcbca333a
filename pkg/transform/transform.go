// Package transform builds the model and view matrices of the viewer and
// the world-space bounds that parametrize slice heights.
//
// World space is millimetres times printer.Config.GLScale, centered on the
// origin: the printer bed spans [-1, 1] along X.
package transform

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Orientation is the user-controlled rotation of the mesh, in radians.
type Orientation struct {
	Roll  float64 `json:"roll"`  // about Z
	Pitch float64 `json:"pitch"` // about X
	Yaw   float64 `json:"yaw"`   // about Y
}

// Camera is the preview-only rotation, in radians. It never affects bounds
// or slicing.
type Camera struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
}

// DefaultCamera looks at the bed from 45 degrees up and 45 degrees around.
func DefaultCamera() Camera {
	return Camera{Roll: math.Pi / 4, Pitch: math.Pi / 4}
}

// Bounds is an axis-aligned box in world space.
type Bounds struct {
	XMin float64 `json:"xmin"`
	XMax float64 `json:"xmax"`
	YMin float64 `json:"ymin"`
	YMax float64 `json:"ymax"`
	ZMin float64 `json:"zmin"`
	ZMax float64 `json:"zmax"`
}

// PlaneZ maps a height fraction to a world Z: 0 is ZMin and 1 is ZMax.
// A flat box maps every fraction to its single plane.
func (b Bounds) PlaneZ(frac float64) float64 {
	return b.ZMin + frac*(b.ZMax-b.ZMin)
}

// Center returns the middle of the box.
func (b Bounds) Center() v3.Vec {
	return v3.Vec{X: (b.XMin + b.XMax) / 2, Y: (b.YMin + b.YMax) / 2, Z: (b.ZMin + b.ZMax) / 2}
}

// Size returns the extent of the box along each axis.
func (b Bounds) Size() v3.Vec {
	return v3.Vec{X: b.XMax - b.XMin, Y: b.YMax - b.YMin, Z: b.ZMax - b.ZMin}
}

// Box3 converts to the sdfx box type.
func (b Bounds) Box3() sdf.Box3 {
	return sdf.Box3{
		Min: v3.Vec{X: b.XMin, Y: b.YMin, Z: b.ZMin},
		Max: v3.Vec{X: b.XMax, Y: b.YMax, Z: b.ZMax},
	}
}

// Equals reports whether every face of the two boxes is within tol.
func (b Bounds) Equals(o Bounds, tol float64) bool {
	bb, ob := b.Box3(), o.Box3()
	return bb.Min.Equals(ob.Min, tol) && bb.Max.Equals(ob.Max, tol)
}

// ModelTransform composes the orientation with the auto-fit transform:
// roll about Z, then pitch about X, then yaw about Y, applied after fit.
func ModelTransform(o Orientation, fit sdf.M44) sdf.M44 {
	r := sdf.RotateZ(o.Roll).Mul(sdf.RotateX(o.Pitch)).Mul(sdf.RotateY(o.Yaw))
	return r.Mul(fit)
}

// ViewTransform builds the preview camera: flatten Z by half, pitch about
// X, roll about Z, then scale into clip space with Z flipped. The order
// fixes the rotation pivot on the bed.
func ViewTransform(c Camera) sdf.M44 {
	m := sdf.Scale3d(v3.Vec{X: 1, Y: 1, Z: 0.5})
	m = m.Mul(sdf.RotateX(c.Pitch))
	m = m.Mul(sdf.RotateZ(c.Roll))
	return m.Mul(sdf.Scale3d(v3.Vec{X: 0.5, Y: 0.5, Z: -0.5}))
}

// ComputeBounds transforms every point by m and returns the enclosing box.
// An empty point set has zero bounds.
func ComputeBounds(points []v3.Vec, m sdf.M44) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}
	p := m.MulPosition(points[0])
	b := Bounds{XMin: p.X, XMax: p.X, YMin: p.Y, YMax: p.Y, ZMin: p.Z, ZMax: p.Z}
	for _, q := range points[1:] {
		p = m.MulPosition(q)
		b.XMin = math.Min(b.XMin, p.X)
		b.XMax = math.Max(b.XMax, p.X)
		b.YMin = math.Min(b.YMin, p.Y)
		b.YMax = math.Max(b.YMax, p.Y)
		b.ZMin = math.Min(b.ZMin, p.Z)
		b.ZMax = math.Max(b.ZMax, p.Z)
	}
	return b
}

// AutoFit centers the raw points on the origin and scales them uniformly
// by scale (model units to world units). The returned matrix is applied
// before the orientation.
func AutoFit(points []v3.Vec, scale float64) sdf.M44 {
	raw := ComputeBounds(points, sdf.Identity3d())
	center := raw.Center()
	s := sdf.Scale3d(v3.Vec{X: scale, Y: scale, Z: scale})
	return s.Mul(sdf.Translate3d(center.MulScalar(-1)))
}

// ColumnMajor returns the elements of the affine transform m in the
// column-major order GL uniforms use. The bottom row is always 0 0 0 1.
func ColumnMajor(m sdf.M44) [16]float64 {
	o := m.MulPosition(v3.Vec{})
	cols := [3]v3.Vec{
		m.MulPosition(v3.Vec{X: 1}).Sub(o),
		m.MulPosition(v3.Vec{Y: 1}).Sub(o),
		m.MulPosition(v3.Vec{Z: 1}).Sub(o),
	}
	var out [16]float64
	for i, c := range cols {
		out[4*i], out[4*i+1], out[4*i+2] = c.X, c.Y, c.Z
	}
	out[12], out[13], out[14], out[15] = o.X, o.Y, o.Z, 1
	return out
}
