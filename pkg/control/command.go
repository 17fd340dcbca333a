package control

import "fmt"

// Command is a discrete user input. Gestures are turned into commands at
// the input layer and processed in order by State.Apply.
type Command interface {
	command()
}

// Press starts a drag at (X, Y). A modified drag rotates the mesh.
type Press struct {
	X, Y     float64
	Modified bool
}

// Move is a pointer move. It only has an effect while dragging.
type Move struct {
	X, Y float64
}

// Release ends a drag.
type Release struct{}

// Axis names a mesh rotation axis.
type Axis uint8

const (
	X Axis = iota // pitch
	Y             // yaw
	Z             // roll
)

func (a Axis) String() string {
	switch a {
	case X:
		return "x"
	case Y:
		return "y"
	case Z:
		return "z"
	}
	return fmt.Sprintf("Axis(%d)", uint8(a))
}

// ParseAxis accepts "x", "y" or "z".
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x", "X":
		return X, nil
	case "y", "Y":
		return Y, nil
	case "z", "Z":
		return Z, nil
	}
	return 0, fmt.Errorf("control: unknown axis %q", s)
}

// Rotate turns the mesh by Steps quarter turns about Axis. Negative steps
// turn the other way.
type Rotate struct {
	Axis  Axis
	Steps int
}

// ResetRotation returns the mesh to its loaded orientation.
type ResetRotation struct{}

// Rescale changes the model units per millimetre.
type Rescale struct {
	Scale float64
}

// SetHeight moves the slice plane to a height fraction.
type SetHeight struct {
	Frac float64
}

func (Press) command()         {}
func (Move) command()          {}
func (Release) command()       {}
func (Rotate) command()        {}
func (ResetRotation) command() {}
func (Rescale) command()       {}
func (SetHeight) command()     {}

// Queue is a FIFO of commands. Input handlers push; the owner of the
// viewer pops and applies them on its own schedule.
type Queue struct {
	cmds []Command
}

// Push appends commands.
func (q *Queue) Push(cmds ...Command) {
	q.cmds = append(q.cmds, cmds...)
}

// Pop removes and returns the oldest command.
func (q *Queue) Pop() (Command, bool) {
	if len(q.cmds) == 0 {
		return nil, false
	}
	c := q.cmds[0]
	q.cmds[0] = nil
	q.cmds = q.cmds[1:]
	return c, true
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	return len(q.cmds)
}

// Run pops every queued command, including ones pushed while running, and
// passes each to fn. It stops at the first error, leaving the rest queued.
func (q *Queue) Run(fn func(Command) error) error {
	for {
		c, ok := q.Pop()
		if !ok {
			return nil
		}
		if err := fn(c); err != nil {
			return err
		}
	}
}

// Replay applies cmds to s in order and returns the final state and the
// union of all effects.
func Replay(s State, cmds ...Command) (State, Effect) {
	var all Effect
	for _, c := range cmds {
		var e Effect
		s, e = s.Apply(c)
		all |= e
	}
	return s, all
}
