package matchmaker

// SelectNonOverlapping walks a ranked list and keeps each match whose groups are all still free.
// Scores depend only on a match's own groups, so this equals re-ranking after every acceptance.
func SelectNonOverlapping(ranked []Match) []Match {
	taken := make(map[string]bool)
	var selected []Match
	for _, m := range ranked {
		ids := m.GroupIDs()
		free := true
		for _, id := range ids {
			if taken[id] {
				free = false
				break
			}
		}
		if !free {
			continue
		}
		for _, id := range ids {
			taken[id] = true
		}
		selected = append(selected, m)
	}
	return selected
}
