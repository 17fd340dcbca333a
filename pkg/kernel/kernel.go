// Package kernel defines the solid modelling interface used to build
// meshes from primitives when no STL file is at hand. Dimensions are in
// millimetres and angles in degrees.
package kernel

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/lamina/pkg/mesh"
)

// Solid is an opaque handle to a kernel solid.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max v3.Vec)
}

// Kernel builds solids and tessellates them. Primitives are centered on
// the origin.
type Kernel interface {
	// Primitives
	Box(x, y, z float64) (Solid, error)
	Sphere(radius float64) (Solid, error)
	Cylinder(height, radius float64) (Solid, error)

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Transform(s Solid, m sdf.M44) Solid
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees

	// ToMesh tessellates a solid into an outward-wound triangle soup.
	ToMesh(s Solid) (*mesh.Mesh, error)
}

// Rotation returns the matrix Kernel.Rotate applies: X first, then Y,
// then Z, angles in degrees.
func Rotation(x, y, z float64) sdf.M44 {
	return sdf.RotateZ(radians(z)).Mul(sdf.RotateY(radians(y))).Mul(sdf.RotateX(radians(x)))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
