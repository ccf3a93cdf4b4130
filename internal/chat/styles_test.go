package chat

import "testing"

func TestStylePicker_Empty(t *testing.T) {
	t.Parallel()
	sp := newStylePicker(nil)
	for range 3 {
		if got := sp.pick(); got != "" {
			t.Fatalf("pick on empty picker = %q, want empty", got)
		}
	}
}

func TestStylePicker_Single(t *testing.T) {
	t.Parallel()
	sp := newStylePicker([]string{"only"})
	for range 3 {
		if got := sp.pick(); got != "only" {
			t.Fatalf("pick = %q, want only", got)
		}
	}
}

func TestStylePicker_NeverRepeats(t *testing.T) {
	t.Parallel()
	sp := newStylePicker([]string{"a", "b", "c", "d"})

	prev := sp.pick()
	for i := 0; i < 200; i++ {
		cur := sp.pick()
		if cur == prev {
			t.Fatalf("pick %d repeated %q", i, cur)
		}
		prev = cur
	}
}

func TestStylePicker_SkipMapsOverLast(t *testing.T) {
	t.Parallel()
	// With last = 1, draws over the reduced range must map to every other
	// index exactly once: 0→0, 1→2, 2→3.
	sp := newStylePicker([]string{"a", "b", "c", "d"})
	sp.last = 1

	for draw, want := range map[int]string{0: "a", 1: "c", 2: "d"} {
		sp.last = 1
		sp.intN = func(int) int { return draw }
		if got := sp.pick(); got != want {
			t.Errorf("draw %d picked %q, want %q", draw, got, want)
		}
	}
}
