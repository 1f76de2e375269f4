package retrieval

import (
	"sort"

	"github.com/sandevgo/threadbot/internal/core"
)

// mergeRows folds multiple result lists into one, deduplicating by id
// and keeping the best score seen for each row, then caps the output.
// Semantic and keyword legs for the same table pass through here.
func mergeRows(limit int, groups ...[]core.ScoredRow) []core.ScoredRow {
	best := make(map[string]core.ScoredRow)
	for _, group := range groups {
		for _, row := range group {
			if prev, ok := best[row.ID]; !ok || row.Score > prev.Score {
				best[row.ID] = row
			}
		}
	}

	merged := make([]core.ScoredRow, 0, len(best))
	for _, row := range best {
		merged = append(merged, row)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ID < merged[j].ID
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
