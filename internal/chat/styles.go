package chat

import "math/rand/v2"

// stylePicker draws a random style modifier from a fixed list without ever
// returning the same entry twice in a row. The only state kept is the index
// of the previous pick. Not safe for concurrent use; the engine guards it
// with its style mutex.
type stylePicker struct {
	styles []string
	last   int

	// intN is replaced in tests for deterministic picks.
	intN func(n int) int
}

func newStylePicker(styles []string) *stylePicker {
	return &stylePicker{
		styles: styles,
		last:   -1,
		intN:   rand.IntN,
	}
}

// pick returns the next style modifier, or "" when no styles are
// configured.
func (sp *stylePicker) pick() string {
	switch len(sp.styles) {
	case 0:
		return ""
	case 1:
		sp.last = 0
		return sp.styles[0]
	}

	if sp.last < 0 {
		sp.last = sp.intN(len(sp.styles))
		return sp.styles[sp.last]
	}

	// Draw from the remaining entries so the previous pick cannot repeat.
	i := sp.intN(len(sp.styles) - 1)
	if i >= sp.last {
		i++
	}
	sp.last = i
	return sp.styles[i]
}
