package hittingset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// removable reports whether removing version x from selected still covers
// every list that selected covers. Used to assert minimality against the
// engine's own output.
func removable(x string, selected []string, lists [][]string) bool {
	covers := func(set []string, list []string) bool {
		for _, s := range set {
			for _, v := range list {
				if s == v {
					return true
				}
			}
		}
		return false
	}

	var without []string
	for _, s := range selected {
		if s != x {
			without = append(without, s)
		}
	}

	for _, list := range lists {
		if len(list) == 0 {
			continue
		}
		if covers(selected, list) && !covers(without, list) {
			return false
		}
	}
	return true
}

func recencyAlphabetical(versions ...string) map[string]float64 {
	scores := make(map[string]float64)
	for _, v := range versions {
		scores[v] = float64(v[0])
	}
	return scores
}

func TestSolveDisjointSetsPicksOnePerSet(t *testing.T) {
	lists := [][]string{
		{"A", "B", "C"},
		{"D", "E", "F", "G"},
		{"H", "I", "J", "K"},
		{"L", "M", "N", "O"},
		{"P"},
	}
	recency := recencyAlphabetical("A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M", "N", "O", "P")

	res := Solve(lists, recency)

	require.Len(t, res.Selected, 5)
	assert.Equal(t, 5, res.Covered)
	assert.Empty(t, res.Uncovered)

	// Disjoint lists force one pick per list; the tie-break selects the
	// highest-recency version within each.
	assert.ElementsMatch(t, []string{"C", "G", "K", "O", "P"}, res.Selected)
}

func TestSolveCoversEveryCoverableList(t *testing.T) {
	lists := [][]string{
		{"1.0", "1.1"},
		{"1.1", "2.0"},
		{"3.0"},
		{}, // no known affected version: reported, not covered
	}
	recency := map[string]float64{"1.0": 0, "1.1": 1, "2.0": 2, "3.0": 3}

	res := Solve(lists, recency)

	assert.Equal(t, 3, res.Covered)
	assert.Equal(t, []int{3}, res.Uncovered)
	for i, list := range lists {
		if len(list) == 0 {
			continue
		}
		covered := false
		for _, s := range res.Selected {
			for _, v := range list {
				if s == v {
					covered = true
				}
			}
		}
		assert.True(t, covered, "list %d not covered", i)
	}
}

func TestSolveMinimality(t *testing.T) {
	// Adversarial pattern: x covers the first two lists and wins the first
	// greedy round on recency, but the singleton lists then force a and b
	// into the cover, which makes x redundant. The prune pass must drop it.
	lists := [][]string{
		{"x", "a"},
		{"x", "b"},
		{"a"},
		{"b"},
	}
	recency := map[string]float64{"a": 1, "b": 2, "x": 3}

	res := Solve(lists, recency)

	assert.ElementsMatch(t, []string{"a", "b"}, res.Selected)
	assert.NotContains(t, res.Selected, "x")
	assert.Equal(t, 4, res.Covered)
	assert.Empty(t, res.Uncovered)
	for _, v := range res.Selected {
		assert.False(t, removable(v, res.Selected, lists),
			"selected version %q is redundant", v)
	}
}

func TestSolveDeterministic(t *testing.T) {
	lists := [][]string{
		{"2.0", "1.0"},
		{"1.0", "3.0"},
		{"3.0", "2.0"},
	}
	recency := map[string]float64{"1.0": 1, "2.0": 2, "3.0": 3}

	first := Solve(lists, recency)
	for i := 0; i < 20; i++ {
		again := Solve(lists, recency)
		require.Equal(t, first.Selected, again.Selected)
		require.Equal(t, first.Uncovered, again.Uncovered)
	}
}

func TestSolveTieBreakPrefersRecencyThenLexical(t *testing.T) {
	// Both versions cover exactly one list; the newer one must win.
	res := Solve([][]string{{"1.0", "2.0"}}, map[string]float64{"1.0": 0, "2.0": 1})
	require.Equal(t, []string{"2.0"}, res.Selected)

	// Equal recency: lexicographically smaller wins.
	res = Solve([][]string{{"beta", "alpha"}}, map[string]float64{"alpha": 1, "beta": 1})
	require.Equal(t, []string{"alpha"}, res.Selected)
}

func TestSolveEmptyInput(t *testing.T) {
	res := Solve(nil, nil)
	assert.Empty(t, res.Selected)
	assert.Empty(t, res.Uncovered)
	assert.Zero(t, res.Covered)
}

func TestSolveNoCoverableVersionStops(t *testing.T) {
	// Every list is empty: the solver must report them and terminate.
	res := Solve([][]string{{}, {}}, nil)
	assert.Empty(t, res.Selected)
	assert.Equal(t, []int{0, 1}, res.Uncovered)
}
