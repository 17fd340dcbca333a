// Package hull reduces a triangle soup to the vertices of its convex hull.
//
// The viewer recomputes axis-aligned bounds on every orientation change.
// The extrema of a point cloud always lie on its convex hull, so bounding
// the hull vertices gives the same box as bounding every vertex, at a
// fraction of the cost for dense meshes.
package hull

import (
	"math"
	"sort"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// roundoff is the float64 unit roundoff. Distances below a few roundoffs
// of the coordinate magnitude are noise.
const roundoff = 0x1p-52

type face struct {
	v       [3]int // indices into the distinct point list
	n       v3.Vec // unit outward normal
	d       float64
	alive   bool
	outside []int // points above this face, not yet on the hull
}

type edge [2]int

// Reduce returns the sorted indices (into points) of the convex hull
// vertices. Duplicate positions are reported once, by their first index.
// The points holding the minimum and maximum of each axis are always
// included, so axis-aligned bounds of the result are exact.
//
// Clouds without volume (fewer than four distinct points, collinear or
// coplanar) have no 3D hull; Reduce then returns one index per distinct
// point instead of failing.
func Reduce(points []v3.Vec) []int {
	distinct, first := dedupe(points)
	if len(distinct) < 4 {
		return sorted(first)
	}

	h := &builder{
		pts:   distinct,
		eps:   tolerance(distinct),
		used:  make([]bool, len(distinct)),
		edges: make(map[edge]int),
	}
	if !h.seed() {
		return sorted(first)
	}
	h.build()

	keep := extremes(distinct)
	for _, f := range h.faces {
		if !f.alive {
			continue
		}
		for _, vi := range f.v {
			keep[vi] = true
		}
	}
	out := make([]int, 0, len(keep))
	for vi := range keep {
		out = append(out, first[vi])
	}
	sort.Ints(out)
	return out
}

// Points returns the positions selected by idx.
func Points(points []v3.Vec, idx []int) []v3.Vec {
	out := make([]v3.Vec, len(idx))
	for i, j := range idx {
		out[i] = points[j]
	}
	return out
}

func dedupe(points []v3.Vec) (distinct []v3.Vec, first []int) {
	index := make(map[v3.Vec]bool, len(points))
	for i, p := range points {
		if index[p] {
			continue
		}
		index[p] = true
		distinct = append(distinct, p)
		first = append(first, i)
	}
	return distinct, first
}

// tolerance is the distance below which a point counts as on a plane. It
// follows the coordinate magnitude per axis, not the cloud diagonal, so a
// thin slab keeps its resolution on the thin axis.
func tolerance(pts []v3.Vec) float64 {
	var mx, my, mz float64
	for _, p := range pts {
		mx = math.Max(mx, math.Abs(p.X))
		my = math.Max(my, math.Abs(p.Y))
		mz = math.Max(mz, math.Abs(p.Z))
	}
	return 3 * roundoff * (mx + my + mz)
}

// extremes returns the first point holding each per-axis minimum and maximum.
func extremes(pts []v3.Vec) map[int]bool {
	var lo, hi [3]int
	coord := func(p v3.Vec, k int) float64 {
		switch k {
		case 0:
			return p.X
		case 1:
			return p.Y
		}
		return p.Z
	}
	for i, p := range pts {
		for k := 0; k < 3; k++ {
			if coord(p, k) < coord(pts[lo[k]], k) {
				lo[k] = i
			}
			if coord(p, k) > coord(pts[hi[k]], k) {
				hi[k] = i
			}
		}
	}
	keep := make(map[int]bool)
	for k := 0; k < 3; k++ {
		keep[lo[k]] = true
		keep[hi[k]] = true
	}
	return keep
}

func sorted(idx []int) []int {
	out := append([]int(nil), idx...)
	sort.Ints(out)
	return out
}

// builder runs quickhull: every live face owns the points above it, and
// each step lifts the farthest such point onto the hull.
type builder struct {
	pts   []v3.Vec
	eps   float64
	faces []face
	edges map[edge]int // directed edge to the live face winding through it
	used  []bool
}

// seed builds the initial tetrahedron from four well-separated points and
// hands every other point to a face above which it lies. It returns false
// when the cloud is flat.
func (h *builder) seed() bool {
	p := h.pts
	i0 := 0
	i1 := h.farthest(func(q v3.Vec) float64 { return q.Sub(p[i0]).Length() })
	if p[i1].Sub(p[i0]).Length() <= h.eps {
		return false
	}
	axis := p[i1].Sub(p[i0])
	i2 := h.farthest(func(q v3.Vec) float64 { return axis.Cross(q.Sub(p[i0])).Length() / axis.Length() })
	n := axis.Cross(p[i2].Sub(p[i0]))
	if n.Length() <= h.eps*axis.Length() {
		return false
	}
	n = n.MulScalar(1 / n.Length())
	i3 := h.farthest(func(q v3.Vec) float64 { return math.Abs(n.Dot(q.Sub(p[i0]))) })
	if math.Abs(n.Dot(p[i3].Sub(p[i0]))) <= h.eps {
		return false
	}

	tet := [4]int{i0, i1, i2, i3}
	var faces []int
	for k := 0; k < 4; k++ {
		a, b, c := tet[k], tet[(k+1)%4], tet[(k+2)%4]
		opposite := tet[(k+3)%4]
		if f := h.newFace(a, b, c); h.dist(f, p[opposite]) > 0 {
			b, c = c, b
		}
		faces = append(faces, h.addFace(a, b, c))
	}
	for _, i := range tet {
		h.used[i] = true
	}
	rest := make([]int, 0, len(p))
	for i := range p {
		rest = append(rest, i)
	}
	h.assign(rest, faces)
	return true
}

func (h *builder) farthest(metric func(v3.Vec) float64) int {
	best, bestD := 0, -1.0
	for i, q := range h.pts {
		if d := metric(q); d > bestD {
			best, bestD = i, d
		}
	}
	return best
}

func (h *builder) newFace(a, b, c int) face {
	p := h.pts
	n := p[b].Sub(p[a]).Cross(p[c].Sub(p[a]))
	if l := n.Length(); l > 0 {
		n = n.MulScalar(1 / l)
	}
	return face{v: [3]int{a, b, c}, n: n, d: n.Dot(p[a]), alive: true}
}

func (h *builder) addFace(a, b, c int) int {
	fi := len(h.faces)
	h.faces = append(h.faces, h.newFace(a, b, c))
	h.edges[edge{a, b}] = fi
	h.edges[edge{b, c}] = fi
	h.edges[edge{c, a}] = fi
	return fi
}

func (h *builder) dist(f face, q v3.Vec) float64 {
	return f.n.Dot(q) - f.d
}

// assign gives each unused point in pts to the first face in faces it lies
// above. Points above none of them are inside the hull and are dropped.
func (h *builder) assign(pts, faces []int) {
	for _, i := range pts {
		if h.used[i] {
			continue
		}
		q := h.pts[i]
		for _, fi := range faces {
			if h.dist(h.faces[fi], q) > h.eps {
				h.faces[fi].outside = append(h.faces[fi].outside, i)
				break
			}
		}
	}
}

// build expands faces in creation order. Only new faces receive points,
// so one pass over the growing face list empties every outside set.
func (h *builder) build() {
	for fi := 0; fi < len(h.faces); fi++ {
		if h.faces[fi].alive && len(h.faces[fi].outside) > 0 {
			h.expand(fi)
		}
	}
}

// expand lifts the farthest point above face fi onto the hull: the faces
// that see it are replaced by a fan from their horizon to the point.
func (h *builder) expand(fi int) {
	eye, best := -1, h.eps
	for _, i := range h.faces[fi].outside {
		if d := h.dist(h.faces[fi], h.pts[i]); d > best {
			eye, best = i, d
		}
	}
	if eye < 0 {
		h.faces[fi].outside = nil
		return
	}
	q := h.pts[eye]

	visible := []int{fi}
	seen := map[int]bool{fi: true}
	var horizon []edge
	for k := 0; k < len(visible); k++ {
		f := h.faces[visible[k]]
		for j := 0; j < 3; j++ {
			e := edge{f.v[j], f.v[(j+1)%3]}
			ni, ok := h.edges[edge{e[1], e[0]}]
			if !ok || seen[ni] {
				continue
			}
			if h.dist(h.faces[ni], q) > h.eps {
				seen[ni] = true
				visible = append(visible, ni)
			} else {
				horizon = append(horizon, e)
			}
		}
	}

	var orphans []int
	for _, vi := range visible {
		f := &h.faces[vi]
		orphans = append(orphans, f.outside...)
		f.outside = nil
		f.alive = false
		for j := 0; j < 3; j++ {
			delete(h.edges, edge{f.v[j], f.v[(j+1)%3]})
		}
	}
	fan := make([]int, 0, len(horizon))
	for _, e := range horizon {
		fan = append(fan, h.addFace(e[0], e[1], eye))
	}
	h.used[eye] = true
	h.assign(orphans, fan)
}
