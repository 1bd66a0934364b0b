package present

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNegotiatorPropose(t *testing.T) {
	tests := []struct {
		name          string
		width, height int32
		want          [2]int
		changed       bool
	}{
		{"no preference", 0, 0, [2]int{640, 480}, false},
		{"height only", 0, 720, [2]int{640, 720}, true},
		{"width only", 800, 0, [2]int{800, 480}, true},
		{"negative ignored", -5, -5, [2]int{640, 480}, false},
		{"same size", 640, 480, [2]int{640, 480}, false},
		{"both", 1024, 768, [2]int{1024, 768}, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			n := NewNegotiator(Config{Width: 640, Height: 480})
			changed := n.Propose(test.width, test.height)
			width, height := n.Size()
			if got := [2]int{width, height}; got != test.want {
				t.Errorf("size = %v, want %v", got, test.want)
			}
			if changed != test.changed {
				t.Errorf("changed = %v, want %v", changed, test.changed)
			}
		})
	}
}

func TestNegotiatorPlanRealloc(t *testing.T) {
	n := NewNegotiator(Config{Width: 100, Height: 100})

	first := n.Plan()
	if !first.Realloc {
		t.Error("first plan must allocate")
	}
	n.Apply(first)

	if n.Plan().Realloc {
		t.Error("unchanged size must not reallocate")
	}

	n.Propose(0, 50)
	want := ResizePlan{Width: 100, Height: 50, BufferWidth: 100, BufferHeight: 50, Realloc: true}
	if diff := cmp.Diff(want, n.Plan()); diff != "" {
		t.Errorf("plan (-want +got):\n%s", diff)
	}
}

func TestNegotiatorPlanClamped(t *testing.T) {
	n := NewNegotiator(Config{
		Width:     500,
		Height:    500,
		Variant:   VariantFixed,
		MaxWidth:  1000,
		MaxHeight: 1000,
	})
	n.Apply(n.Plan())

	n.Propose(1920, 1080)
	want := ResizePlan{
		Width:        1920,
		Height:       1080,
		BufferWidth:  1000,
		BufferHeight: 1000,
		Scaled:       true,
	}
	got := n.Plan()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("plan (-want +got):\n%s", diff)
	}
	if !n.LogicalChanged(got) {
		t.Error("logical size changed")
	}
}

func TestNegotiatorClose(t *testing.T) {
	n := NewNegotiator(Config{})
	if !n.Running() {
		t.Fatal("new negotiator should be running")
	}
	n.Close()
	if n.Running() {
		t.Error("closed negotiator should not be running")
	}
}
