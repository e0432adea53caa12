package executor

import (
	"strings"

	"github.com/cyw0ng95/infraql/internal/lang"
	"github.com/cyw0ng95/infraql/internal/model"
)

// applyJoin implements spec §4.6 step 5's nested-loop join. Merged rows
// carry both qualified (table.column) and unqualified keys; on an
// unqualified collision the left-hand side wins.
func applyJoin(leftRows []model.Row, leftTable string, join lang.Join, rightRows []model.Row, leftColumns, rightColumns []string) []model.Row {
	switch join.Kind {
	case lang.JoinLeft:
		return leftOuterJoin(leftRows, leftTable, join, rightRows, rightColumns)
	case lang.JoinRight:
		return rightOuterJoin(leftRows, leftTable, join, rightRows, leftColumns)
	default:
		return innerJoin(leftRows, leftTable, join, rightRows)
	}
}

func innerJoin(leftRows []model.Row, leftTable string, join lang.Join, rightRows []model.Row) []model.Row {
	var out []model.Row
	for _, l := range leftRows {
		for _, r := range rightRows {
			if evalJoinCondition(l, r, join.On) {
				out = append(out, mergeRows(l, leftTable, r, join.Table))
			}
		}
	}
	return out
}

func leftOuterJoin(leftRows []model.Row, leftTable string, join lang.Join, rightRows []model.Row, rightColumns []string) []model.Row {
	var out []model.Row
	for _, l := range leftRows {
		matched := false
		for _, r := range rightRows {
			if evalJoinCondition(l, r, join.On) {
				out = append(out, mergeRows(l, leftTable, r, join.Table))
				matched = true
			}
		}
		if !matched {
			out = append(out, mergeRows(l, leftTable, nullRow(rightColumns), join.Table))
		}
	}
	return out
}

func rightOuterJoin(leftRows []model.Row, leftTable string, join lang.Join, rightRows []model.Row, leftColumns []string) []model.Row {
	var out []model.Row
	for _, r := range rightRows {
		matched := false
		for _, l := range leftRows {
			if evalJoinCondition(l, r, join.On) {
				out = append(out, mergeRows(l, leftTable, r, join.Table))
				matched = true
			}
		}
		if !matched {
			out = append(out, mergeRows(nullRow(leftColumns), leftTable, r, join.Table))
		}
	}
	return out
}

func nullRow(columns []string) model.Row {
	row := make(model.Row, len(columns))
	for _, c := range columns {
		row[c] = nil
	}
	return row
}

func evalJoinCondition(left, right model.Row, on lang.JoinCondition) bool {
	leftVal := left[fieldName(on.LeftField)]
	rightVal := right[fieldName(on.RightField)]
	if leftVal == nil || rightVal == nil {
		return false
	}
	switch on.Op {
	case "=":
		return compareValues(leftVal, rightVal) == 0
	case "!=":
		return compareValues(leftVal, rightVal) != 0
	case ">":
		return compareValues(leftVal, rightVal) > 0
	case "<":
		return compareValues(leftVal, rightVal) < 0
	case ">=":
		return compareValues(leftVal, rightVal) >= 0
	case "<=":
		return compareValues(leftVal, rightVal) <= 0
	default:
		return false
	}
}

// mergeRows combines a left and right row per spec §4.6 step 5's row-merge
// convention. Keys already qualified (from an earlier join in a chain) are
// carried through unchanged rather than re-qualified, so a third table
// joined onto an already-merged pair does not compound its prefixes.
func mergeRows(left model.Row, leftTable string, right model.Row, rightTable string) model.Row {
	out := make(model.Row, len(left)+len(right))
	for k, v := range left {
		out[k] = v
		if !strings.Contains(k, ".") {
			out[leftTable+"."+k] = v
		}
	}
	for k, v := range right {
		if _, exists := out[k]; !exists {
			out[k] = v
		}
		out[rightTable+"."+k] = v
	}
	return out
}

func columnNames(cols []model.ColumnInfo) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
