package metrics

import "sort"

// StatusRow is one row of the status-code distribution.
type StatusRow struct {
	Code  int
	Count int64
}

// StatusDistribution flattens a snapshot's status-code tally into rows
// sorted by ascending code for stable report output.
func StatusDistribution(codes map[int]int64) []StatusRow {
	if len(codes) == 0 {
		return nil
	}
	rows := make([]StatusRow, 0, len(codes))
	for code, count := range codes {
		rows = append(rows, StatusRow{Code: code, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
	return rows
}
