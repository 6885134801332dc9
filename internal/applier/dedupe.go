package applier

import "github.com/mrlokans/possync/internal/registry"

// dedupe keeps one row per key. The row with the greatest version or stamp
// wins, a tie goes to the row that came later in the feed, and a missing
// stamp counts as a tie. Output follows the first appearance of each key.
func dedupe[T any](rows []mapped[T], strategy registry.UpdateStrategy) []mapped[T] {
	index := make(map[string]int, len(rows))
	out := make([]mapped[T], 0, len(rows))

	for _, row := range rows {
		pos, seen := index[row.key]
		if !seen {
			index[row.key] = len(out)
			out = append(out, row)
			continue
		}
		if notOlder(row, out[pos], strategy) {
			out[pos] = row
		}
	}
	return out
}

func notOlder[T any](candidate, current mapped[T], strategy registry.UpdateStrategy) bool {
	if strategy == registry.StrategyVersion {
		return candidate.version >= current.version
	}
	if candidate.stamp == nil || current.stamp == nil {
		return true
	}
	return !candidate.stamp.Before(*current.stamp)
}
