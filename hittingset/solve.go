// Package hittingset computes, per package, the smallest set of versions
// that still exercises every known vulnerability. The solver is a greedy
// weighted set cover with deterministic tie-breaking and a prune pass; exact
// minimality is NP-hard and not attempted.
package hittingset

import "sort"

// Result holds one solve: the chosen versions in selection order and the
// coverage-list indices that no known version could cover.
type Result struct {
	Selected []string
	Covered  int
	// Uncovered lists the indices of coverage lists left uncovered, either
	// because the list was empty or because no candidate version appears in
	// it. They are reported, never silently dropped.
	Uncovered []int
}

// Solve picks a covering subset of versions for one package. coverageLists
// holds one affected-version list per vulnerability; recency scores break
// coverage-count ties (higher wins), then the lexicographically smaller
// version string wins. The function is pure: identical inputs produce
// identical output slices regardless of map iteration order.
func Solve(coverageLists [][]string, recency map[string]float64) Result {
	// Invert to version -> set of list indices, deduplicating repeats.
	versionCovers := make(map[string]map[int]bool)
	remaining := make(map[int]bool)
	var uncovered []int

	for i, list := range coverageLists {
		if len(list) == 0 {
			// Vulnerabilities with no known affected versions are excluded
			// from the cover target up front.
			uncovered = append(uncovered, i)
			continue
		}
		remaining[i] = true
		for _, v := range list {
			if versionCovers[v] == nil {
				versionCovers[v] = make(map[int]bool)
			}
			versionCovers[v][i] = true
		}
	}

	// A stable candidate ordering makes the argmax deterministic.
	candidates := make([]string, 0, len(versionCovers))
	for v := range versionCovers {
		candidates = append(candidates, v)
	}
	sort.Strings(candidates)

	var selected []string
	picked := make(map[string]bool)

	for len(remaining) > 0 {
		best := ""
		bestCount := 0
		for _, v := range candidates {
			if picked[v] {
				continue
			}
			count := 0
			for idx := range versionCovers[v] {
				if remaining[idx] {
					count++
				}
			}
			if count == 0 {
				continue
			}
			if betterPick(v, count, best, bestCount, recency) {
				best = v
				bestCount = count
			}
		}

		if bestCount == 0 {
			// No remaining vulnerability can be covered by any known
			// version; stop rather than loop forever.
			break
		}

		selected = append(selected, best)
		picked[best] = true
		for idx := range versionCovers[best] {
			delete(remaining, idx)
		}
	}

	for idx := range remaining {
		uncovered = append(uncovered, idx)
	}
	sort.Ints(uncovered)

	selected = prune(selected, versionCovers)

	covered := make(map[int]bool)
	for _, v := range selected {
		for idx := range versionCovers[v] {
			covered[idx] = true
		}
	}

	return Result{
		Selected:  selected,
		Covered:   len(covered),
		Uncovered: uncovered,
	}
}

// betterPick reports whether candidate v with the given coverage count beats
// the current best. Ties break by higher recency, then smaller string.
func betterPick(v string, count int, best string, bestCount int, recency map[string]float64) bool {
	if count != bestCount {
		return count > bestCount
	}
	if recency[v] != recency[best] {
		return recency[v] > recency[best]
	}
	return v < best
}

// prune drops any selected version whose covered lists are all covered by
// the other selections. Greedy can over-select under adversarial tie
// patterns, so minimality is enforced here instead of assumed. Selection
// order is preserved.
func prune(selected []string, versionCovers map[string]map[int]bool) []string {
	if len(selected) <= 1 {
		return selected
	}

	kept := append([]string(nil), selected...)

	for i := 0; i < len(kept); i++ {
		redundant := true
		for idx := range versionCovers[kept[i]] {
			coveredByOther := false
			for j, other := range kept {
				if j == i {
					continue
				}
				if versionCovers[other][idx] {
					coveredByOther = true
					break
				}
			}
			if !coveredByOther {
				redundant = false
				break
			}
		}
		if redundant {
			kept = append(kept[:i], kept[i+1:]...)
			i--
		}
	}

	return kept
}
