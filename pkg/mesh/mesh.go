// Package mesh holds the triangle soup the viewer slices.
//
// A Mesh is a flat list of vertices where every consecutive triple forms one
// triangle. Vertices are not deduplicated. The slicer relies on consistent
// outward winding (counter-clockwise when seen from outside the solid);
// Orient fixes meshes that are wound inside-out as a whole, but a mesh with
// mixed per-triangle winding cannot be detected here and will slice wrongly.
package mesh

import (
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Mesh is a triangle soup.
type Mesh struct {
	Vertices []v3.Vec `json:"vertices"` // triangle i = Vertices[3i:3i+3]
	Name     string   `json:"name"`     // source file or primitive name
}

// New returns a mesh over the given vertices. The slice is not copied.
func New(name string, vertices []v3.Vec) *Mesh {
	return &Mesh{Vertices: vertices, Name: name}
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// TriangleCount returns the number of complete triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Vertices) / 3
}

// IsEmpty returns true if the mesh has no complete triangle.
func (m *Mesh) IsEmpty() bool {
	return m.TriangleCount() == 0
}

// Triangle returns the vertices of triangle i.
func (m *Mesh) Triangle(i int) (a, b, c v3.Vec) {
	return m.Vertices[3*i], m.Vertices[3*i+1], m.Vertices[3*i+2]
}

// Normals returns one flat unit normal per vertex, repeated for the three
// vertices of each triangle. Degenerate triangles get a zero normal.
func (m *Mesh) Normals() []v3.Vec {
	normals := make([]v3.Vec, m.TriangleCount()*3)
	for i := 0; i < m.TriangleCount(); i++ {
		a, b, c := m.Triangle(i)
		n := b.Sub(a).Cross(c.Sub(a))
		if l := n.Length(); l > 0 {
			n = n.MulScalar(1 / l)
		}
		normals[3*i], normals[3*i+1], normals[3*i+2] = n, n, n
	}
	return normals
}

// SignedVolume returns the volume enclosed by the mesh. It is positive for a
// closed mesh with outward winding and negative when wound inside-out.
func (m *Mesh) SignedVolume() float64 {
	var vol float64
	for i := 0; i < m.TriangleCount(); i++ {
		a, b, c := m.Triangle(i)
		vol += a.Dot(b.Cross(c))
	}
	return vol / 6
}

// Orient flips every triangle when the mesh is wound inside-out and reports
// whether it did. Open or zero-volume meshes are left alone.
func (m *Mesh) Orient() bool {
	if m.SignedVolume() >= 0 {
		return false
	}
	for i := 0; i < m.TriangleCount(); i++ {
		m.Vertices[3*i+1], m.Vertices[3*i+2] = m.Vertices[3*i+2], m.Vertices[3*i+1]
	}
	return true
}

// Cuboid returns a closed, outward-wound box of the given size centered at
// the origin: 8 corners, 12 triangles.
func Cuboid(size v3.Vec) *Mesh {
	h := size.MulScalar(0.5)
	p := func(sx, sy, sz float64) v3.Vec {
		return v3.Vec{X: sx * h.X, Y: sy * h.Y, Z: sz * h.Z}
	}
	verts := []v3.Vec{
		// bottom (-z)
		p(-1, -1, -1), p(-1, 1, -1), p(1, 1, -1),
		p(-1, -1, -1), p(1, 1, -1), p(1, -1, -1),
		// top (+z)
		p(-1, -1, 1), p(1, -1, 1), p(1, 1, 1),
		p(-1, -1, 1), p(1, 1, 1), p(-1, 1, 1),
		// front (-y)
		p(-1, -1, -1), p(1, -1, -1), p(1, -1, 1),
		p(-1, -1, -1), p(1, -1, 1), p(-1, -1, 1),
		// back (+y)
		p(-1, 1, -1), p(-1, 1, 1), p(1, 1, 1),
		p(-1, 1, -1), p(1, 1, 1), p(1, 1, -1),
		// left (-x)
		p(-1, -1, -1), p(-1, -1, 1), p(-1, 1, 1),
		p(-1, -1, -1), p(-1, 1, 1), p(-1, 1, -1),
		// right (+x)
		p(1, -1, -1), p(1, 1, -1), p(1, 1, 1),
		p(1, -1, -1), p(1, 1, 1), p(1, -1, 1),
	}
	return New("cuboid", verts)
}
