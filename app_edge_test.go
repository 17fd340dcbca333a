package main

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/chazu/lamina/pkg/control"
)

// ---------------------------------------------------------------------------
// 1. Empty editor: empty string and comments -> no model, no errors.
// ---------------------------------------------------------------------------

func TestE2ECommentsAndWhitespace(t *testing.T) {
	for _, source := range []string{"   \n\t  \n", ";; just a comment", "; one\n;; two\n\n"} {
		app := newTestApp(t)
		result := app.Evaluate(source)
		requireNoErrors(t, result)
		if result.Loaded || result.Commands != 0 {
			t.Errorf("source %q: loaded=%v commands=%d", source, result.Loaded, result.Commands)
		}
	}
}

// ---------------------------------------------------------------------------
// 2. Syntax error on a later line: eval error carries a message.
// ---------------------------------------------------------------------------

func TestE2ESyntaxErrorWithLineInfo(t *testing.T) {
	app := newTestApp(t)

	source := "(+ 1 2)\n(model (box 1 2 3)"
	result := app.Evaluate(source)

	if len(result.Errors) == 0 {
		t.Fatal("expected at least one eval error for unmatched parens")
	}
	e := result.Errors[0]
	if e.Message == "" {
		t.Error("syntax error should have a non-empty message")
	}
	t.Logf("syntax error: line=%d, col=%d, message=%q", e.Line, e.Col, e.Message)
}

// ---------------------------------------------------------------------------
// 3. Undefined part reference: runtime error, nothing loaded.
// ---------------------------------------------------------------------------

func TestE2EUndefinedPartReference(t *testing.T) {
	app := newTestApp(t)
	result := app.Evaluate(`(model (place (part "missing") :at (vec3 0 0 0)))`)

	if len(result.Errors) == 0 {
		t.Fatal("expected an error for undefined part")
	}
	if !strings.Contains(result.Errors[0].Message, "missing") {
		t.Errorf("error should name the part, got %q", result.Errors[0].Message)
	}
	if app.HasModel() {
		t.Error("no model should be loaded")
	}
}

// ---------------------------------------------------------------------------
// 4. Invalid dimensions are caught by validation before tessellation.
// ---------------------------------------------------------------------------

func TestE2EInvalidDimensions(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"zero box", `(model (box 0 10 10))`, "box size"},
		{"negative box", `(model (box 10 -5 10))`, "box size"},
		{"zero sphere", `(model (sphere 0))`, "sphere radius"},
		{"negative cylinder", `(model (cylinder :height -1 :radius 2))`, "cylinder"},
		{"nested bad part", `(model (union (box 5) (place (sphere -2) :at (vec3 9 0 0))))`, "union/place[1]/sphere[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			result := app.Evaluate(tt.source)
			if len(result.Errors) == 0 {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(result.Errors[0].Message, tt.want) {
				t.Errorf("error = %q, want containing %q", result.Errors[0].Message, tt.want)
			}
			if result.Loaded || app.HasModel() {
				t.Error("invalid model must not load")
			}
		})
	}
}

func TestE2EValidationWarnings(t *testing.T) {
	app := newTestApp(t)
	result := app.Evaluate(`(model (union (place (box 8) :at (vec3 0 0 0))))`)
	requireNoErrors(t, result)
	if !result.Loaded {
		t.Fatal("warnings must not block loading")
	}
	if len(result.Warnings) != 2 {
		t.Errorf("expected 2 warnings, got %v", result.Warnings)
	}
}

// ---------------------------------------------------------------------------
// 5. Rapid evaluation (debounce simulation): no panics, last good model wins.
//    Run with `go test -race` to detect data races.
// ---------------------------------------------------------------------------

func TestE2ERapidEvaluationAlternating(t *testing.T) {
	// Calls are sequential: zygomys has internal global state that is not
	// safe for concurrent sandbox creation.
	app := newTestApp(t)

	sources := []string{
		`(model (box 10))`,
		`(model (box`,
		``,
		`(part "missing")`,
		`(model (sphere 6))`,
		`(+ 1 2)`,
		`;; just a comment`,
		`(undefined-func 1 2 3)`,
		`(model (cylinder 10 4))`,
	}

	for i, source := range sources {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("iteration %d panicked on source %q: %v", i, source, r)
				}
			}()
			_ = app.Evaluate(source)
		}()
	}

	// The cylinder is 10 mm tall on a 64 mm bed.
	b := app.GetBounds()
	if h := b.ZMax - b.ZMin; math.Abs(h-10.0/32) > 0.05 {
		t.Errorf("height after last model = %v, want about %v", h, 10.0/32)
	}
}

// ---------------------------------------------------------------------------
// 6. Gestures without a model: accepted, slices stay empty.
// ---------------------------------------------------------------------------

func TestE2EGesturesBeforeModel(t *testing.T) {
	app := newTestApp(t)
	result := app.Evaluate(`
(rot-x-plus)
(drag 0 0 20 20)
(slice-at 0.3)
`)
	requireNoErrors(t, result)
	if result.Commands != 5 {
		t.Errorf("expected 5 commands, got %d", result.Commands)
	}
	s := app.GetSliceAt(0.3)
	if s.Error != "" || s.Covered != 0 {
		t.Errorf("slice without model: covered=%d error=%q", s.Covered, s.Error)
	}
}

// ---------------------------------------------------------------------------
// 7. Pointer bindings follow the controller rules.
// ---------------------------------------------------------------------------

func TestPointerDragRotatesCamera(t *testing.T) {
	app := newTestApp(t)
	var scenes []SceneData
	app.emit = func(name string, data ...interface{}) {
		if name == SceneEvent {
			scenes = append(scenes, data[0].(SceneData))
		}
	}

	cam := app.viewer.Camera()
	if err := app.PointerDown(100, 100, false); err != nil {
		t.Fatal(err)
	}
	if err := app.PointerMove(150, 100); err != nil {
		t.Fatal(err)
	}
	if err := app.PointerUp(); err != nil {
		t.Fatal(err)
	}
	if got := app.viewer.Camera().Roll; math.Abs(got-(cam.Roll+0.5)) > 1e-12 {
		t.Errorf("camera roll = %v, want %v", got, cam.Roll+0.5)
	}
	if len(scenes) != 1 {
		t.Fatalf("expected 1 scene for the move, got %d", len(scenes))
	}
	if scenes[0].View == app.GetScene().Model {
		t.Error("view and model matrices should differ")
	}
}

func TestPointerModifiedDragRotatesMesh(t *testing.T) {
	app := newTestApp(t)
	if err := app.LoadSTL(writeCube(t, 20)); err != nil {
		t.Fatal(err)
	}
	before := app.GetBounds()
	if err := app.PointerDown(0, 0, true); err != nil {
		t.Fatal(err)
	}
	if err := app.PointerMove(-78.5398, 0); err != nil { // about pi/4
		t.Fatal(err)
	}
	after := app.GetBounds()
	if after.XMax <= before.XMax {
		t.Errorf("rolling the cube should widen it: %v -> %v", before.XMax, after.XMax)
	}
}

// ---------------------------------------------------------------------------
// 8. Rotation, scale and reset bindings.
// ---------------------------------------------------------------------------

func TestRotateAndReset(t *testing.T) {
	app := newTestApp(t)
	if err := app.LoadSTL(writeCube(t, 20)); err != nil {
		t.Fatal(err)
	}
	if err := app.Rotate("y", 1); err != nil {
		t.Fatal(err)
	}
	if app.viewer.State().Mesh.Yaw != control.Step {
		t.Errorf("yaw = %v, want %v", app.viewer.State().Mesh.Yaw, control.Step)
	}
	if err := app.Rotate("w", 1); err == nil {
		t.Error("expected error for unknown axis")
	}
	if err := app.ResetRotation(); err != nil {
		t.Fatal(err)
	}
	if app.viewer.State().Mesh.Yaw != 0 {
		t.Error("reset did not clear the orientation")
	}
}

func TestSetScale(t *testing.T) {
	app := newTestApp(t)
	if err := app.LoadSTL(writeCube(t, 32)); err != nil {
		t.Fatal(err)
	}
	if err := app.SetScale(0.5); err != nil {
		t.Fatal(err)
	}
	if s := app.GetSliceAt(0.5); s.Covered != 16*16 {
		t.Errorf("covered at half scale = %d, want %d", s.Covered, 16*16)
	}
	for _, bad := range []float64{0, -1} {
		if err := app.SetScale(bad); err == nil {
			t.Errorf("SetScale(%v) should fail", bad)
		}
	}
}

func TestGetSceneMatrices(t *testing.T) {
	app := newTestApp(t)
	s := app.GetScene()
	if s.Loaded {
		t.Error("nothing loaded yet")
	}
	if s.BaseZ != 0 {
		t.Errorf("base z without model = %v, want 0", s.BaseZ)
	}
	if s.View[15] != 1 || s.Model[15] != 1 {
		t.Error("bottom-right element of an affine matrix must be 1")
	}
	if s.Aspect != 1 || s.Frac != 0.5 {
		t.Errorf("aspect, frac = %v, %v", s.Aspect, s.Frac)
	}
}

func TestStatusClearedOnLoad(t *testing.T) {
	app := newTestApp(t)
	app.status = "stale"
	if err := app.LoadSTL(writeCube(t, 8)); err != nil {
		t.Fatal(err)
	}
	if got := app.GetStatus(); got != "" {
		t.Errorf("status after load = %q, want empty", got)
	}
}

func TestRuntimeContextUnderLock(t *testing.T) {
	app := newTestApp(t)
	if app.runtimeContext() == nil {
		t.Fatal("context before startup must not be nil")
	}

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "wails")
	done := make(chan struct{})
	go func() {
		defer close(done)
		app.mu.Lock()
		app.ctx = ctx
		app.mu.Unlock()
	}()
	for i := 0; i < 100; i++ {
		_ = app.runtimeContext()
	}
	<-done
	if got := app.runtimeContext().Value(key{}); got != "wails" {
		t.Errorf("context value = %v, want the startup context", got)
	}
}
