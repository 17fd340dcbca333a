package engine

import (
	"fmt"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/lamina/pkg/control"
	"github.com/chazu/lamina/pkg/tessellate"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms lamina Lisp source code before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: mesh-drag -> mesh_drag
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				result = append(result, '"')
				result = append(result, kwPrefix...)
				result = append(result, b[i+1:j]...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Only when the hyphen sits between identifier characters; a
		// minus operator is left alone.
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpNode wraps a model tree node so it can be passed between builtins.
type sexpNode struct {
	node *tessellate.Node
}

func (n *sexpNode) SexpString(ps *zygo.PrintState) string {
	if n.node.Name != "" {
		return fmt.Sprintf("(%s %q)", n.node.Kind, n.node.Name)
	}
	return fmt.Sprintf("(%s)", n.node.Kind)
}
func (n *sexpNode) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a v3.Vec.
type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value: treat as flag with nil.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// number returns the keyword argument key if present, else the positional
// argument at pos. ok is false when neither was given.
func (a kwArgs) number(key string, pos int) (f float64, ok bool, err error) {
	if v, found := a.kw[key]; found {
		f, err = toFloat64(v)
		return f, true, err
	}
	if pos >= 0 && pos < len(a.positional) {
		f, err = toFloat64(a.positional[pos])
		return f, true, err
	}
	return 0, false, nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toInt extracts a whole number.
func toInt(s zygo.Sexp) (int, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return int(v.Val), nil
	case *zygo.SexpFloat:
		if v.Val == float64(int(v.Val)) {
			return int(v.Val), nil
		}
	}
	return 0, fmt.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_z) and plain strings ("z").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

// toAxis converts a keyword or string to a rotation axis.
func toAxis(s zygo.Sexp) (control.Axis, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, fmt.Errorf("expected axis keyword (:x, :y, :z): %w", err)
	}
	return control.ParseAxis(name)
}

// toNode extracts a model node.
func toNode(s zygo.Sexp) (*tessellate.Node, error) {
	if n, ok := s.(*sexpNode); ok {
		return n.node, nil
	}
	return nil, fmt.Errorf("expected model node, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts a v3.Vec from a sexpVec3.
func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return v3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// toNodes collects model nodes from args, flattening lists and arrays.
func toNodes(args []zygo.Sexp) ([]*tessellate.Node, error) {
	var nodes []*tessellate.Node
	for i, a := range args {
		if n, ok := a.(*sexpNode); ok {
			nodes = append(nodes, n.node)
			continue
		}
		items, err := sexpListToSlice(a)
		if err != nil {
			return nil, fmt.Errorf("operand %d: expected model node, got %T (%s)", i, a, a.SexpString(nil))
		}
		sub, err := toNodes(items)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, sub...)
	}
	return nodes, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs all lamina builtins into a zygomys environment.
// Model builtins build a tree in s.Parts and s.Model; gesture builtins
// append to s.Commands.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, s *Script) {
	registerModelBuiltins(env, s)
	registerGestureBuiltins(env, s)
}

func registerModelBuiltins(env *zygo.Zlisp, s *Script) {

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var c [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %c: %w", "xyz"[i], err)
			}
			c[i] = f
		}
		return &sexpVec3{vec: v3.Vec{X: c[0], Y: c[1], Z: c[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (box 10 20 30), (box 10) or (box :size (vec3 10 20 30))
	// -----------------------------------------------------------------------
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		n := &tessellate.Node{Kind: tessellate.Box}

		if v, ok := pa.kw["size"]; ok {
			vec, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("box: size: %w", err)
			}
			n.Size = vec
			return &sexpNode{node: n}, nil
		}

		switch len(pa.positional) {
		case 1:
			f, err := toFloat64(pa.positional[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("box: size: %w", err)
			}
			n.Size = v3.Vec{X: f, Y: f, Z: f}
		case 3:
			var c [3]float64
			for i, a := range pa.positional {
				f, err := toFloat64(a)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("box: %c: %w", "xyz"[i], err)
				}
				c[i] = f
			}
			n.Size = v3.Vec{X: c[0], Y: c[1], Z: c[2]}
		default:
			return zygo.SexpNull, fmt.Errorf("box requires :size or 1 or 3 dimensions, got %d", len(pa.positional))
		}
		return &sexpNode{node: n}, nil
	})

	// -----------------------------------------------------------------------
	// (sphere 5) or (sphere :radius 5)
	// -----------------------------------------------------------------------
	env.AddFunction("sphere", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		r, ok, err := pa.number("radius", 0)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sphere: radius: %w", err)
		}
		if !ok {
			return zygo.SexpNull, fmt.Errorf("sphere requires a radius")
		}
		return &sexpNode{node: &tessellate.Node{Kind: tessellate.Sphere, Radius: r}}, nil
	})

	// -----------------------------------------------------------------------
	// (cylinder :height 10 :radius 3) or (cylinder 10 3)
	// -----------------------------------------------------------------------
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		h, ok, err := pa.number("height", 0)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: height: %w", err)
		}
		if !ok {
			return zygo.SexpNull, fmt.Errorf("cylinder requires a height")
		}
		r, ok, err := pa.number("radius", 1)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: radius: %w", err)
		}
		if !ok {
			return zygo.SexpNull, fmt.Errorf("cylinder requires a radius")
		}
		return &sexpNode{node: &tessellate.Node{Kind: tessellate.Cylinder, Height: h, Radius: r}}, nil
	})

	// -----------------------------------------------------------------------
	// (place (part "leg") :at (vec3 0 0 19) :rotate (vec3 0 0 90))
	// -----------------------------------------------------------------------
	env.AddFunction("place", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("place requires a model node as first argument")
		}
		children, err := toNodes(pa.positional)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("place: %w", err)
		}

		n := &tessellate.Node{Kind: tessellate.Place, Children: children}
		if v, ok := pa.kw["at"]; ok {
			if n.At, err = toVec3(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("place: at: %w", err)
			}
		}
		if v, ok := pa.kw["rotate"]; ok {
			if n.Rotate, err = toVec3(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("place: rotate: %w", err)
			}
		}
		return &sexpNode{node: n}, nil
	})

	// -----------------------------------------------------------------------
	// (union a b ...), (difference a b ...), (intersection a b ...)
	// -----------------------------------------------------------------------
	booleans := map[string]tessellate.Kind{
		"union":        tessellate.Union,
		"difference":   tessellate.Difference,
		"intersection": tessellate.Intersection,
	}
	for fn, kind := range booleans {
		fn, kind := fn, kind
		env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			children, err := toNodes(args)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
			}
			if len(children) == 0 {
				return zygo.SexpNull, fmt.Errorf("%s requires at least one operand", fn)
			}
			return &sexpNode{node: &tessellate.Node{Kind: kind, Children: children}}, nil
		})
	}

	// -----------------------------------------------------------------------
	// (defpart "name" (box ...))
	// -----------------------------------------------------------------------
	env.AddFunction("defpart", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 2 {
			return zygo.SexpNull, fmt.Errorf("defpart requires a name and a body expression")
		}
		partName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defpart: name: %w", err)
		}
		n, err := toNode(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defpart: %w", err)
		}
		if _, dup := s.Parts[partName]; dup {
			return zygo.SexpNull, fmt.Errorf("defpart: part %q already defined", partName)
		}
		n.Name = partName
		s.Parts[partName] = n
		return &sexpNode{node: n}, nil
	})

	// -----------------------------------------------------------------------
	// (part "name")
	// -----------------------------------------------------------------------
	env.AddFunction("part", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 1 {
			return zygo.SexpNull, fmt.Errorf("part requires a name argument")
		}
		partName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("part: name: %w", err)
		}
		n, ok := s.Parts[partName]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("part: no part named %q", partName)
		}
		return &sexpNode{node: n}, nil
	})

	// -----------------------------------------------------------------------
	// (model (union ...)) selects the tree to tessellate and load.
	// -----------------------------------------------------------------------
	env.AddFunction("model", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("model requires exactly 1 argument, got %d", len(args))
		}
		n, err := toNode(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("model: %w", err)
		}
		s.Model = n
		return args[0], nil
	})
}

// registerGestureBuiltins installs the builtins that script viewer input.
// Each appends commands and returns nil.
func registerGestureBuiltins(env *zygo.Zlisp, s *Script) {
	emit := func(cmds ...control.Command) (zygo.Sexp, error) {
		s.Commands = append(s.Commands, cmds...)
		return zygo.SexpNull, nil
	}

	// points reads want numbers from positional args.
	points := func(fn string, args []zygo.Sexp, want int) ([]float64, error) {
		if len(args) != want {
			return nil, fmt.Errorf("%s requires exactly %d arguments, got %d", fn, want, len(args))
		}
		out := make([]float64, want)
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", fn, i, err)
			}
			out[i] = f
		}
		return out, nil
	}

	// (press x y), (press-modified x y)
	for fn, modified := range map[string]bool{"press": false, "press_modified": true} {
		fn, modified := fn, modified
		env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			p, err := points(fn, args, 2)
			if err != nil {
				return zygo.SexpNull, err
			}
			return emit(control.Press{X: p[0], Y: p[1], Modified: modified})
		})
	}

	// (move x y)
	env.AddFunction("move", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		p, err := points("move", args, 2)
		if err != nil {
			return zygo.SexpNull, err
		}
		return emit(control.Move{X: p[0], Y: p[1]})
	})

	// (release)
	env.AddFunction("release", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return emit(control.Release{})
	})

	// (drag x0 y0 x1 y1), (mesh-drag x0 y0 x1 y1)
	for fn, modified := range map[string]bool{"drag": false, "mesh_drag": true} {
		fn, modified := fn, modified
		env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			p, err := points(fn, args, 4)
			if err != nil {
				return zygo.SexpNull, err
			}
			return emit(
				control.Press{X: p[0], Y: p[1], Modified: modified},
				control.Move{X: p[2], Y: p[3]},
				control.Release{},
			)
		})
	}

	// (rot-x-plus) ... (rot-z-minus)
	for _, axis := range []control.Axis{control.X, control.Y, control.Z} {
		for suffix, steps := range map[string]int{"plus": 1, "minus": -1} {
			cmd := control.Rotate{Axis: axis, Steps: steps}
			env.AddFunction(fmt.Sprintf("rot_%s_%s", axis, suffix), func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
				return emit(cmd)
			})
		}
	}

	// (rotate :x 1 :z -2), (rotate :y) or (rotate "x" 2)
	env.AddFunction("rotate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) > 0 {
			if len(pa.positional) != 2 || len(pa.kw) > 0 {
				return zygo.SexpNull, fmt.Errorf("rotate requires an axis and a step count")
			}
			axis, err := toAxis(pa.positional[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("rotate: %w", err)
			}
			steps, err := toInt(pa.positional[1])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("rotate: steps: %w", err)
			}
			return emit(control.Rotate{Axis: axis, Steps: steps})
		}

		for k := range pa.kw {
			if _, err := control.ParseAxis(k); err != nil {
				return zygo.SexpNull, fmt.Errorf("rotate: %w", err)
			}
		}
		var cmds []control.Command
		for _, axis := range []control.Axis{control.X, control.Y, control.Z} {
			v, ok := pa.kw[axis.String()]
			if !ok {
				continue
			}
			steps := 1
			if v != zygo.SexpNull {
				n, err := toInt(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("rotate: %s: %w", axis, err)
				}
				steps = n
			}
			cmds = append(cmds, control.Rotate{Axis: axis, Steps: steps})
		}
		return emit(cmds...)
	})

	// (reset-rotation)
	env.AddFunction("reset_rotation", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return emit(control.ResetRotation{})
	})

	// (rescale 0.5)
	env.AddFunction("rescale", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		p, err := points("rescale", args, 1)
		if err != nil {
			return zygo.SexpNull, err
		}
		if p[0] <= 0 {
			return zygo.SexpNull, fmt.Errorf("rescale: scale must be positive, got %g", p[0])
		}
		return emit(control.Rescale{Scale: p[0]})
	})

	// (slice-at 0.25)
	env.AddFunction("slice_at", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		p, err := points("slice-at", args, 1)
		if err != nil {
			return zygo.SexpNull, err
		}
		return emit(control.SetHeight{Frac: p[0]})
	})
}
