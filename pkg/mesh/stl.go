package mesh

import (
	"bytes"
	"fmt"
	"io"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/hschendel/stl"
)

// ReadSTL decodes an ASCII or binary STL stream into a triangle soup.
// The result is re-oriented if it is wound inside-out. The decoder needs to
// seek, so the stream is buffered first; pipes such as stdin work.
func ReadSTL(r io.Reader) (*Mesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("mesh: read stl: %w", err)
	}
	solid, err := stl.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mesh: read stl: %w", err)
	}
	m := fromSolid(solid)
	m.Orient()
	return m, nil
}

// ReadSTLFile loads the STL file at path.
func ReadSTLFile(path string) (*Mesh, error) {
	solid, err := stl.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mesh: read stl %s: %w", path, err)
	}
	m := fromSolid(solid)
	if m.Name == "" {
		m.Name = path
	}
	m.Orient()
	return m, nil
}

// WriteSTL encodes the mesh as a binary STL stream with flat normals.
func (m *Mesh) WriteSTL(w io.Writer) error {
	normals := m.Normals()
	solid := &stl.Solid{
		Name:      m.Name,
		Triangles: make([]stl.Triangle, m.TriangleCount()),
	}
	for i := range solid.Triangles {
		a, b, c := m.Triangle(i)
		solid.Triangles[i] = stl.Triangle{
			Normal:   toSTL(normals[3*i]),
			Vertices: [3]stl.Vec3{toSTL(a), toSTL(b), toSTL(c)},
		}
	}
	if err := solid.WriteAll(w); err != nil {
		return fmt.Errorf("mesh: write stl: %w", err)
	}
	return nil
}

func fromSolid(solid *stl.Solid) *Mesh {
	verts := make([]v3.Vec, 0, len(solid.Triangles)*3)
	for _, t := range solid.Triangles {
		for _, v := range t.Vertices {
			verts = append(verts, v3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])})
		}
	}
	return New(solid.Name, verts)
}

func toSTL(v v3.Vec) stl.Vec3 {
	return stl.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}
