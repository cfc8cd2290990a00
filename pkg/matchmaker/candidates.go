package matchmaker

import "sort"

// candidate is a raw team split expressed as arena indices.
type candidate struct {
	teamA []int
	teamB []int
}

// arena is the indexed, canonically ordered view of a snapshot's groups.
type arena struct {
	groups []Group
	sizes  []int
}

// newArena drops empty, oversized and duplicate groups and orders the rest by ID.
func newArena(groups []Group, maxSize int) arena {
	seen := make(map[string]bool, len(groups))
	kept := make([]Group, 0, len(groups))
	for _, g := range groups {
		if g.Size() == 0 || g.Size() > maxSize || seen[g.ID] {
			continue
		}
		seen[g.ID] = true
		kept = append(kept, g)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })

	sizes := make([]int, len(kept))
	for i, g := range kept {
		sizes[i] = g.Size()
	}
	return arena{groups: kept, sizes: sizes}
}

// generateCandidates calls visit for every split of whole groups into teams of the mode's sizes.
// For symmetric modes team A always holds the lowest index of the pair, so mirrors appear once.
func generateCandidates(a arena, mode Mode, visit func(candidate)) {
	if mode.TeamAPlayers <= 0 || mode.TeamBPlayers <= 0 {
		return
	}
	used := make([]bool, len(a.sizes))
	symmetric := mode.Symmetric()

	forEachSubsetSum(a.sizes, used, 0, mode.TeamAPlayers, func(teamA []int) {
		for _, i := range teamA {
			used[i] = true
		}
		first := 0
		if symmetric {
			first = teamA[0] + 1
		}
		forEachSubsetSum(a.sizes, used, first, mode.TeamBPlayers, func(teamB []int) {
			visit(candidate{
				teamA: append([]int(nil), teamA...),
				teamB: append([]int(nil), teamB...),
			})
		})
		for _, i := range teamA {
			used[i] = false
		}
	})
}

// forEachSubsetSum visits every ascending index combination starting at first, skipping used
// indices, whose sizes add up to target. The slice passed to visit is reused between calls.
func forEachSubsetSum(sizes []int, used []bool, first, target int, visit func([]int)) {
	if target <= 0 {
		return
	}
	stack := make([]int, 0, target)
	sum, next := 0, first
	for {
		if next < len(sizes) {
			i := next
			next++
			if used[i] || sum+sizes[i] > target {
				continue
			}
			if sum+sizes[i] == target {
				visit(append(stack, i))
				continue
			}
			stack = append(stack, i)
			sum += sizes[i]
			continue
		}
		if len(stack) == 0 {
			return
		}
		last := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		sum -= sizes[last]
		next = last + 1
	}
}
