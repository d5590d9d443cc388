package catalog

// Group partitions entries by identifier. Any group with more than one member
// is a duplicate.
func Group[P Program](entries []P) map[string][]P {
	groups := make(map[string][]P, len(entries))
	for _, e := range entries {
		id := e.Identifier()
		groups[id] = append(groups[id], e)
	}
	return groups
}

// Dedup keeps the first entry seen for every identifier, preserving input
// order, and returns the entries it dropped
func Dedup[P Program](entries []P) (kept, dropped []P) {
	seen := make(map[string]struct{}, len(entries))
	kept = make([]P, 0, len(entries))
	for _, e := range entries {
		id := e.Identifier()
		if _, ok := seen[id]; ok {
			dropped = append(dropped, e)
			continue
		}
		seen[id] = struct{}{}
		kept = append(kept, e)
	}
	return kept, dropped
}

// Duplicates returns the identifiers that occur more than once
func Duplicates[P Program](entries []P) []string {
	var ids []string
	counted := make(map[string]int, len(entries))
	for _, e := range entries {
		id := e.Identifier()
		counted[id]++
		if counted[id] == 2 {
			ids = append(ids, id)
		}
	}
	return ids
}
