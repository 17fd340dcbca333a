// Package tessellate walks a model tree of primitives, placements and
// boolean operations and produces one triangle mesh using a geometry
// kernel.
package tessellate

import (
	"errors"
	"fmt"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/lamina/pkg/kernel"
	"github.com/chazu/lamina/pkg/mesh"
)

// Kind is the type of a model tree node.
type Kind uint8

const (
	Box Kind = iota
	Sphere
	Cylinder
	Place
	Union
	Difference
	Intersection
)

var kindNames = [...]string{"box", "sphere", "cylinder", "place", "union", "difference", "intersection"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Node is one node of a model tree. Which fields are read depends on Kind:
// Size for boxes, Radius for spheres and cylinders, Height for cylinders,
// At and Rotate (degrees) for placements. Place, Union, Difference and
// Intersection read Children; Difference subtracts every child after the
// first from the first.
type Node struct {
	Kind     Kind    `json:"kind"`
	Name     string  `json:"name,omitempty"`
	Size     v3.Vec  `json:"size"`
	Radius   float64 `json:"radius,omitempty"`
	Height   float64 `json:"height,omitempty"`
	At       v3.Vec  `json:"at"`
	Rotate   v3.Vec  `json:"rotate"`
	Children []*Node `json:"children,omitempty"`
}

// Primitives returns the number of primitive leaves under n.
func (n *Node) Primitives() int {
	if n == nil {
		return 0
	}
	switch n.Kind {
	case Box, Sphere, Cylinder:
		return 1
	}
	total := 0
	for _, c := range n.Children {
		total += c.Primitives()
	}
	return total
}

// ErrEmpty is returned for a tree with no primitives.
var ErrEmpty = errors.New("tessellate: model has no primitives")

// transformStack accumulates placements during traversal.
type transformStack struct {
	frames []sdf.M44
}

func newTransformStack() *transformStack {
	return &transformStack{}
}

func (ts *transformStack) push(m sdf.M44) {
	ts.frames = append(ts.frames, m)
}

func (ts *transformStack) pop() {
	if len(ts.frames) > 0 {
		ts.frames = ts.frames[:len(ts.frames)-1]
	}
}

// accumulated returns the composition of every placement on the stack,
// outermost first.
func (ts *transformStack) accumulated() sdf.M44 {
	m := sdf.Identity3d()
	for _, f := range ts.frames {
		m = m.Mul(f)
	}
	return m
}

func (ts *transformStack) empty() bool {
	return len(ts.frames) == 0
}

// Tessellate builds the solid described by root and converts it to a
// mesh named after the root. The tree is never mutated.
func Tessellate(root *Node, k kernel.Kernel) (*mesh.Mesh, error) {
	if root.Primitives() == 0 {
		return nil, ErrEmpty
	}
	solid, err := walkNode(k, root, newTransformStack())
	if err != nil {
		return nil, fmt.Errorf("tessellate: %w", err)
	}
	m, err := k.ToMesh(solid)
	if err != nil {
		return nil, fmt.Errorf("tessellate: ToMesh failed for %s: %w", label(root), err)
	}
	m.Name = label(root)
	return m, nil
}

func label(n *Node) string {
	if n.Name != "" {
		return n.Name
	}
	return n.Kind.String()
}

// walkNode recursively builds the solid for a node.
func walkNode(k kernel.Kernel, n *Node, ts *transformStack) (kernel.Solid, error) {
	switch n.Kind {
	case Box, Sphere, Cylinder:
		return handlePrimitive(k, n, ts)

	case Place:
		return handlePlace(k, n, ts)

	case Union, Difference, Intersection:
		return handleBoolean(k, n, ts)

	default:
		return nil, fmt.Errorf("unknown node kind: %v", n.Kind)
	}
}

// handlePrimitive creates the solid for a leaf and applies the
// accumulated placement.
func handlePrimitive(k kernel.Kernel, n *Node, ts *transformStack) (kernel.Solid, error) {
	var (
		solid kernel.Solid
		err   error
	)
	switch n.Kind {
	case Box:
		solid, err = k.Box(n.Size.X, n.Size.Y, n.Size.Z)
	case Sphere:
		solid, err = k.Sphere(n.Radius)
	case Cylinder:
		solid, err = k.Cylinder(n.Height, n.Radius)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label(n), err)
	}
	if !ts.empty() {
		solid = k.Transform(solid, ts.accumulated())
	}
	return solid, nil
}

// handlePlace pushes the placement, builds the union of the children, then
// pops.
func handlePlace(k kernel.Kernel, n *Node, ts *transformStack) (kernel.Solid, error) {
	m := sdf.Translate3d(n.At).Mul(kernel.Rotation(n.Rotate.X, n.Rotate.Y, n.Rotate.Z))
	ts.push(m)
	defer ts.pop()
	return combine(k, n, ts, k.Union)
}

// handleBoolean combines the children left to right.
func handleBoolean(k kernel.Kernel, n *Node, ts *transformStack) (kernel.Solid, error) {
	op := k.Union
	switch n.Kind {
	case Difference:
		op = k.Difference
	case Intersection:
		op = k.Intersection
	}
	return combine(k, n, ts, op)
}

func combine(k kernel.Kernel, n *Node, ts *transformStack, op func(a, b kernel.Solid) kernel.Solid) (kernel.Solid, error) {
	var acc kernel.Solid
	for i, child := range n.Children {
		if child.Primitives() == 0 {
			continue
		}
		s, err := walkNode(k, child, ts)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			if i != 0 && n.Kind == Difference {
				return nil, fmt.Errorf("%s: first operand is empty", label(n))
			}
			acc = s
			continue
		}
		acc = op(acc, s)
	}
	if acc == nil {
		return nil, fmt.Errorf("%s: no operands", label(n))
	}
	return acc, nil
}
