package tutor

import (
	"context"
	"fmt"
	"testing"

	"github.com/livetemplate/mathwalk"
	"pgregory.net/rapid"
)

func TestNavigationProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "steps")
		steps := make([]mathwalk.Step, n)
		for i := range steps {
			steps[i] = mathwalk.Step{
				Title:       fmt.Sprintf("Step %d", i),
				Explanation: fmt.Sprintf("<p>%d</p>", i),
				Code:        fmt.Sprintf("print(%d)\n", i),
			}
		}
		reg, err := mathwalk.NewRegistry(steps)
		if err != nil {
			t.Fatal(err)
		}

		view := &recordingView{}
		c, err := New(context.Background(), Options{Registry: reg, View: view, Factory: starlarkFactory})
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
		c.GoTo(0)

		ops := rapid.SliceOf(rapid.IntRange(-3, n+2)).Draw(t, "ops")
		for _, op := range ops {
			switch op {
			case -3:
				c.Next()
			case -2:
				c.Previous()
			default:
				c.GoTo(op)
			}

			cur := c.State().Current
			if cur < 0 || cur >= n {
				t.Fatalf("current %d out of range [0, %d)", cur, n)
			}
			step := view.lastStep()
			want := reg.Get(cur)
			if step.Index != cur || step.Title != want.Title || step.Explanation != want.Explanation {
				t.Fatalf("rendered step %d (%q), current is %d (%q)", step.Index, step.Title, cur, want.Title)
			}
			if code := view.lastCode(); code.Index != cur || code.Code != want.Code {
				t.Fatalf("rendered code for step %d, current is %d", code.Index, cur)
			}
			if step.PrevEnabled != (cur > 0) || step.NextEnabled != (cur < n-1) {
				t.Fatalf("step %d of %d: prev=%v next=%v", cur, n, step.PrevEnabled, step.NextEnabled)
			}
			active := 0
			for _, item := range step.Items {
				if item.Active {
					active++
					if item.Index != cur {
						t.Fatalf("active item %d, current %d", item.Index, cur)
					}
				}
			}
			if active != 1 {
				t.Fatalf("%d active items", active)
			}
		}
	})
}
