package tessellate

import (
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Severity indicates whether a validation finding blocks tessellation or
// is merely informational.
type Severity int

const (
	SeverityError   Severity = iota // blocks tessellation
	SeverityWarning                 // informational
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Finding describes a single validation finding.
type Finding struct {
	Path     string // node path from the root, e.g. "union/place[1]/box"
	Message  string
	Severity Severity
}

func (f Finding) Error() string {
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Path, f.Message)
}

// Result separates blocking errors from advisory warnings.
type Result struct {
	Errors   []Finding
	Warnings []Finding
}

// OK reports whether the tree can be tessellated.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// Validate checks a model tree without touching a kernel: cycles,
// non-positive or non-finite dimensions and empty operand lists are
// errors; operations that do nothing are warnings. It never mutates the
// tree.
func Validate(root *Node) Result {
	var r Result
	if root == nil {
		r.Errors = append(r.Errors, Finding{Path: "model", Message: "no model", Severity: SeverityError})
		return r
	}

	// Nodes may be shared (a part placed twice) but never contain
	// themselves. gray marks nodes on the current path.
	const (
		white = iota
		gray
		black
	)
	color := make(map[*Node]int)

	add := func(path, msg string, sev Severity) {
		f := Finding{Path: path, Message: msg, Severity: sev}
		if sev == SeverityError {
			r.Errors = append(r.Errors, f)
		} else {
			r.Warnings = append(r.Warnings, f)
		}
	}

	var visit func(n *Node, path string)
	visit = func(n *Node, path string) {
		if n == nil {
			add(path, "nil node", SeverityError)
			return
		}
		switch color[n] {
		case gray:
			add(path, "node contains itself", SeverityError)
			return
		case black:
			return
		}
		color[n] = gray
		defer func() { color[n] = black }()

		switch n.Kind {
		case Box:
			if !positive(n.Size.X, n.Size.Y, n.Size.Z) {
				add(path, fmt.Sprintf("box size %v must be positive", n.Size), SeverityError)
			}
		case Sphere:
			if !positive(n.Radius) {
				add(path, fmt.Sprintf("sphere radius %v must be positive", n.Radius), SeverityError)
			}
		case Cylinder:
			if !positive(n.Height, n.Radius) {
				add(path, fmt.Sprintf("cylinder height %v radius %v must be positive", n.Height, n.Radius), SeverityError)
			}
		case Place:
			if !finite(n.At) || !finite(n.Rotate) {
				add(path, "placement is not finite", SeverityError)
			} else if n.At == (v3.Vec{}) && n.Rotate == (v3.Vec{}) {
				add(path, "placement has no effect", SeverityWarning)
			}
		case Union, Difference, Intersection:
			if len(n.Children) == 1 {
				add(path, fmt.Sprintf("%s of one operand has no effect", n.Kind), SeverityWarning)
			}
		default:
			add(path, fmt.Sprintf("unknown node kind %s", n.Kind), SeverityError)
			return
		}

		switch n.Kind {
		case Place, Union, Difference, Intersection:
			if len(n.Children) == 0 {
				add(path, fmt.Sprintf("%s has no operands", n.Kind), SeverityError)
			}
		}
		for i, c := range n.Children {
			visit(c, fmt.Sprintf("%s/%s", path, childLabel(c, i)))
		}
	}
	visit(root, label(root))
	return r
}

func childLabel(n *Node, i int) string {
	if n == nil {
		return fmt.Sprintf("[%d]", i)
	}
	if n.Name != "" {
		return n.Name
	}
	return fmt.Sprintf("%s[%d]", n.Kind, i)
}

func positive(vals ...float64) bool {
	for _, v := range vals {
		if !(v > 0) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func finite(v v3.Vec) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
