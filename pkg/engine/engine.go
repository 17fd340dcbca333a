// Package engine provides the Lisp evaluation engine for lamina scripts.
// It wraps zygomys in a sandboxed environment and produces a Script from
// user source code: an optional model tree to tessellate and a sequence of
// viewer commands to replay against it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/lamina/pkg/control"
	"github.com/chazu/lamina/pkg/tessellate"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Script is the output of one evaluation.
type Script struct {
	// Model is the argument of the last (model ...) form, or nil.
	Model *tessellate.Node
	// Parts holds every (defpart ...) by name.
	Parts map[string]*tessellate.Node
	// Commands are the viewer commands in evaluation order.
	Commands []control.Command
}

func newScript() *Script {
	return &Script{Parts: make(map[string]*tessellate.Node)}
}

// Engine wraps the zygomys interpreter.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism.
type Engine struct {
	mu         sync.Mutex
	generation uint64
}

// NewEngine creates a new Engine instance.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate runs source with the default EvalTimeout.
func (e *Engine) Evaluate(source string) (*Script, []EvalError, error) {
	return e.EvaluateContext(context.Background(), source)
}

// EvaluateContext takes Lisp source code and produces a new Script.
// Each call creates a fresh zygomys sandbox for deterministic evaluation.
// The evaluation is abandoned when ctx ends or after EvalTimeout.
//
// Return semantics:
//   - On success: returns script + nil errors + nil error
//   - On parse/eval failure: returns nil script + eval errors + nil error
//   - On fatal failure (timeout, panic, superseded): returns nil + nil + error
func (e *Engine) EvaluateContext(ctx context.Context, source string) (*Script, []EvalError, error) {
	gen := e.next()
	ctx, cancel := context.WithTimeout(ctx, EvalTimeout)
	defer cancel()

	ch := make(chan evalResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if r == errInterrupted {
					ch <- evalResult{err: ctx.Err()}
					return
				}
				ch <- evalResult{err: fmt.Errorf("engine: panic during evaluation: %v", r)}
			}
		}()
		s, evalErrs, err := e.evaluate(ctx, source)
		ch <- evalResult{script: s, errors: evalErrs, err: err}
	}()

	return e.wait(ctx, ch, gen)
}

// errInterrupted unwinds a script whose context has ended.
var errInterrupted = errors.New("engine: evaluation interrupted")

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
// The interpreter has no cancellation of its own; a pre-call hook unwinds
// it at the first function call after ctx ends.
func (e *Engine) evaluate(ctx context.Context, source string) (*Script, []EvalError, error) {
	s := newScript()

	// Empty source is a valid program that produces an empty script.
	if strings.TrimSpace(source) == "" {
		return s, nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	env.AddPreHook(func(*zygo.Zlisp, string, []zygo.Sexp) {
		if ctx.Err() != nil {
			panic(errInterrupted)
		}
	})
	registerBuiltins(env, s)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}

	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}

	return s, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{
				Line:    line,
				Message: strings.TrimSpace(m[2]),
			}}
		}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
