package sqlitestore

import (
	"sort"

	"hexidle/internal/game"
)

func sortRanked(rows []game.RankedPlayer) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PrestigeLevel != rows[j].PrestigeLevel {
			return rows[i].PrestigeLevel > rows[j].PrestigeLevel
		}
		if c := rows[i].Gold.Cmp(rows[j].Gold); c != 0 {
			return c > 0
		}
		return rows[i].Username < rows[j].Username
	})
}
