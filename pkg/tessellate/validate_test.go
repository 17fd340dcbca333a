package tessellate_test

import (
	"math"
	"strings"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/lamina/pkg/tessellate"
)

func TestValidateClean(t *testing.T) {
	leg := box(1, 1, 10)
	leg.Name = "leg"
	root := &tessellate.Node{Kind: tessellate.Union, Children: []*tessellate.Node{
		place(v3.Vec{X: -5}, v3.Vec{}, leg),
		place(v3.Vec{X: 5}, v3.Vec{}, leg), // shared, not a cycle
		{Kind: tessellate.Sphere, Radius: 2},
	}}
	r := tessellate.Validate(root)
	if !r.OK() {
		t.Fatalf("expected no errors, got %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", r.Warnings)
	}
}

func TestValidateErrors(t *testing.T) {
	self := &tessellate.Node{Kind: tessellate.Union}
	self.Children = []*tessellate.Node{box(1, 1, 1), self}

	tests := []struct {
		name string
		root *tessellate.Node
		want string
	}{
		{"nil root", nil, "no model"},
		{"zero box", box(0, 1, 1), "box size"},
		{"negative sphere", &tessellate.Node{Kind: tessellate.Sphere, Radius: -1}, "sphere radius"},
		{"nan cylinder", &tessellate.Node{Kind: tessellate.Cylinder, Height: math.NaN(), Radius: 1}, "cylinder"},
		{"infinite box", box(math.Inf(1), 1, 1), "box size"},
		{"empty union", &tessellate.Node{Kind: tessellate.Union}, "no operands"},
		{"empty place", place(v3.Vec{X: 1}, v3.Vec{}), "no operands"},
		{"nan placement", place(v3.Vec{X: math.NaN()}, v3.Vec{}, box(1, 1, 1)), "not finite"},
		{"nil child", &tessellate.Node{Kind: tessellate.Union, Children: []*tessellate.Node{nil, box(1, 1, 1)}}, "nil node"},
		{"unknown kind", &tessellate.Node{Kind: tessellate.Kind(42)}, "unknown node kind"},
		{"cycle", self, "contains itself"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tessellate.Validate(tt.root)
			if r.OK() {
				t.Fatal("expected errors")
			}
			found := false
			for _, e := range r.Errors {
				if strings.Contains(e.Message, tt.want) {
					found = true
				}
				if e.Severity != tessellate.SeverityError {
					t.Errorf("error finding with severity %s", e.Severity)
				}
			}
			if !found {
				t.Errorf("errors %v do not mention %q", r.Errors, tt.want)
			}
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	root := &tessellate.Node{Kind: tessellate.Difference, Children: []*tessellate.Node{
		place(v3.Vec{}, v3.Vec{}, box(1, 1, 1)),
	}}
	r := tessellate.Validate(root)
	if !r.OK() {
		t.Fatalf("warnings must not block: %v", r.Errors)
	}
	if len(r.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", r.Warnings)
	}
	if r.Warnings[0].Path != "difference" {
		t.Errorf("first warning path = %q", r.Warnings[0].Path)
	}
	if r.Warnings[1].Path != "difference/place[0]" {
		t.Errorf("second warning path = %q", r.Warnings[1].Path)
	}
	if !strings.HasPrefix(r.Warnings[0].Error(), "[warning] difference:") {
		t.Errorf("Error() = %q", r.Warnings[0].Error())
	}
}
