// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library.
package sdfx

import (
	"fmt"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/lamina/pkg/kernel"
	"github.com/chazu/lamina/pkg/mesh"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

// DefaultCells is the marching cubes resolution along the longest side.
const DefaultCells = 200

// sdfxSolid wraps an sdf.SDF3 to implement kernel.Solid.
type sdfxSolid struct {
	s sdf.SDF3
}

// BoundingBox returns the axis-aligned bounding box.
func (s *sdfxSolid) BoundingBox() (min, max v3.Vec) {
	bb := s.s.BoundingBox()
	return bb.Min, bb.Max
}

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct {
	cells int
}

// Option configures a SdfxKernel.
type Option func(*SdfxKernel)

// WithCells sets the marching cubes resolution.
func WithCells(n int) Option {
	return func(k *SdfxKernel) {
		if n > 0 {
			k.cells = n
		}
	}
}

// New returns a new SdfxKernel.
func New(opts ...Option) *SdfxKernel {
	k := &SdfxKernel{cells: DefaultCells}
	for _, o := range opts {
		o(k)
	}
	return k
}

// unwrap extracts the underlying sdf.SDF3 from a kernel.Solid.
func unwrap(s kernel.Solid) sdf.SDF3 {
	return s.(*sdfxSolid).s
}

// wrap creates a kernel.Solid from an sdf.SDF3.
func wrap(s sdf.SDF3) kernel.Solid {
	return &sdfxSolid{s: s}
}

// Box creates a box of the given size centered on the origin.
func (k *SdfxKernel) Box(x, y, z float64) (kernel.Solid, error) {
	if x <= 0 || y <= 0 || z <= 0 {
		return nil, fmt.Errorf("sdfx: box %gx%gx%g: size must be positive", x, y, z)
	}
	s, err := sdf.Box3D(v3.Vec{X: x, Y: y, Z: z}, 0)
	if err != nil {
		return nil, fmt.Errorf("sdfx: box %gx%gx%g: %w", x, y, z, err)
	}
	return wrap(s), nil
}

// Sphere creates a sphere centered on the origin.
func (k *SdfxKernel) Sphere(radius float64) (kernel.Solid, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("sdfx: sphere r=%g: radius must be positive", radius)
	}
	s, err := sdf.Sphere3D(radius)
	if err != nil {
		return nil, fmt.Errorf("sdfx: sphere r=%g: %w", radius, err)
	}
	return wrap(s), nil
}

// Cylinder creates a cylinder along Z centered on the origin.
func (k *SdfxKernel) Cylinder(height, radius float64) (kernel.Solid, error) {
	if height <= 0 || radius <= 0 {
		return nil, fmt.Errorf("sdfx: cylinder h=%g r=%g: size must be positive", height, radius)
	}
	s, err := sdf.Cylinder3D(height, radius, 0)
	if err != nil {
		return nil, fmt.Errorf("sdfx: cylinder h=%g r=%g: %w", height, radius, err)
	}
	return wrap(s), nil
}

// Union returns the union of two solids.
func (k *SdfxKernel) Union(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Union3D(unwrap(a), unwrap(b)))
}

// Difference returns the difference a - b.
func (k *SdfxKernel) Difference(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Difference3D(unwrap(a), unwrap(b)))
}

// Intersection returns the intersection of two solids.
func (k *SdfxKernel) Intersection(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Intersect3D(unwrap(a), unwrap(b)))
}

// Transform applies m to a solid.
func (k *SdfxKernel) Transform(s kernel.Solid, m sdf.M44) kernel.Solid {
	return wrap(sdf.Transform3D(unwrap(s), m))
}

// Translate moves a solid by (x, y, z).
func (k *SdfxKernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	return k.Transform(s, sdf.Translate3d(v3.Vec{X: x, Y: y, Z: z}))
}

// Rotate rotates a solid by Euler angles (degrees) around X, Y, Z axes.
func (k *SdfxKernel) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	return k.Transform(s, kernel.Rotation(x, y, z))
}

// ToMesh converts a solid to a triangle soup using marching cubes.
func (k *SdfxKernel) ToMesh(s kernel.Solid) (*mesh.Mesh, error) {
	renderer := render.NewMarchingCubesUniform(k.cells)
	triangles := render.ToTriangles(unwrap(s), renderer)
	if len(triangles) == 0 {
		return nil, fmt.Errorf("sdfx: tessellation produced no triangles")
	}

	verts := make([]v3.Vec, 0, len(triangles)*3)
	for _, tri := range triangles {
		// Marching cubes emits slivers where a surface grazes a cell corner.
		a, b, c := tri[0], tri[1], tri[2]
		if b.Sub(a).Cross(c.Sub(a)).Length() == 0 {
			continue
		}
		verts = append(verts, a, b, c)
	}

	m := mesh.New("sdfx", verts)
	m.Orient()
	return m, nil
}
