package executor

import (
	"fmt"
	"sort"

	"github.com/cyw0ng95/infraql/internal/lang"
	"github.com/cyw0ng95/infraql/internal/model"
)

// applyProjection rewrites rows to the explicit projection list, applying
// aliases as output keys, and rebuilds column metadata accordingly (spec
// §4.6 step 7). declared carries the source's declared columns for type
// resolution; unresolvable columns default to string.
func applyProjection(rows []model.Row, columns []lang.Column, declared map[string]model.ColumnInfo) ([]model.Row, []model.ColumnInfo) {
	star := len(columns) == 1 && columns[0].IsStar()
	if star {
		return rows, inferColumns(rows, declared)
	}

	outCols := make([]model.ColumnInfo, len(columns))
	for i, c := range columns {
		info, ok := declared[fieldName(c.Name)]
		if !ok {
			info = model.ColumnInfo{Name: c.OutputName(), Type: model.ColString}
		}
		info.Name = c.OutputName()
		if c.IsAggregate() {
			info.Type = model.ColNumber
		}
		outCols[i] = info
	}

	out := make([]model.Row, len(rows))
	for i, row := range rows {
		projected := make(model.Row, len(columns))
		for _, c := range columns {
			if c.IsAggregate() {
				// Aggregation already produced OutputName()-keyed rows.
				projected[c.OutputName()] = row[c.OutputName()]
				continue
			}
			projected[c.OutputName()] = row[fieldName(c.Name)]
		}
		out[i] = projected
	}
	return out, outCols
}

// inferColumns builds star-projection column metadata. When rows carry keys
// beyond the declared set (a join merged in another table's columns),
// metadata is derived from the rows themselves so it matches what a caller
// will actually find in each row; declared is still consulted for type
// resolution wherever a name matches.
func inferColumns(rows []model.Row, declared map[string]model.ColumnInfo) []model.ColumnInfo {
	seen := map[string]bool{}
	var names []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	if len(names) == 0 {
		out := make([]model.ColumnInfo, 0, len(declared))
		for _, info := range declared {
			out = append(out, info)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out
	}
	sort.Strings(names)
	out := make([]model.ColumnInfo, len(names))
	for i, n := range names {
		if info, ok := declared[n]; ok {
			out[i] = info
			continue
		}
		out[i] = model.ColumnInfo{Name: n, Type: model.ColString}
	}
	return out
}

// applyOrdering performs a stable multi-key sort. Sorting terms from last to
// first and relying on sort's stability makes the first term the effective
// primary key (spec §4.6 step 8).
func applyOrdering(rows []model.Row, orderBy []lang.OrderTerm) []model.Row {
	if len(orderBy) == 0 {
		return rows
	}
	out := make([]model.Row, len(rows))
	copy(out, rows)
	for i := len(orderBy) - 1; i >= 0; i-- {
		term := orderBy[i]
		sort.SliceStable(out, func(a, b int) bool {
			cmp := compareValues(out[a][fieldName(term.Field)], out[b][fieldName(term.Field)])
			if term.Direction == lang.OrderDesc {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	return out
}

// applyPagination applies offset then limit (spec §4.6 step 9).
func applyPagination(rows []model.Row, offset, limit *int) []model.Row {
	start := 0
	if offset != nil && *offset > 0 {
		start = *offset
	}
	if start >= len(rows) {
		return []model.Row{}
	}
	end := len(rows)
	if limit != nil && start+*limit < end {
		end = start + *limit
	}
	return rows[start:end]
}

const defaultTruncationWarning = "result truncated to the default cap; narrow with WHERE or add LIMIT/OFFSET"

// applyTruncation implements spec §4.6 step 10: when no LIMIT was given and
// the row count exceeds cap, clip and stamp a warning.
func applyTruncation(rows []model.Row, hasLimit bool, cap int) ([]model.Row, bool, string) {
	if hasLimit || len(rows) <= cap {
		return rows, false, ""
	}
	return rows[:cap], true, fmt.Sprintf("%s (cap=%d)", defaultTruncationWarning, cap)
}
