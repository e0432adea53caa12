package executor

import (
	"strings"

	"github.com/cyw0ng95/infraql/internal/lang"
	"github.com/cyw0ng95/infraql/internal/model"
)

// aggregator mirrors sqlvibe's QE.Aggregator (Step/Result), generalized from
// a single scalar column to an infraql Row field.
type aggregator interface {
	step(value interface{})
	result() interface{}
}

type countAgg struct {
	count   int
	forStar bool
}

func (a *countAgg) step(value interface{}) {
	if a.forStar || value != nil {
		a.count++
	}
}
func (a *countAgg) result() interface{} { return int64(a.count) }

type sumAgg struct{ sum float64 }

func (a *sumAgg) step(value interface{}) {
	if isNumeric(value) {
		a.sum += toFloat(value)
	}
}
func (a *sumAgg) result() interface{} { return a.sum }

type avgAgg struct {
	sum   float64
	count int
}

func (a *avgAgg) step(value interface{}) {
	if isNumeric(value) {
		a.sum += toFloat(value)
		a.count++
	}
}
func (a *avgAgg) result() interface{} {
	if a.count == 0 {
		return nil
	}
	return a.sum / float64(a.count)
}

type minMaxAgg struct {
	value interface{}
	want  int // -1 for MIN, 1 for MAX
}

func (a *minMaxAgg) step(value interface{}) {
	if value == nil {
		return
	}
	if a.value == nil || compareValues(value, a.value) == a.want {
		a.value = value
	}
}
func (a *minMaxAgg) result() interface{} { return a.value }

func newAggregator(kind lang.AggregateKind, forStar bool) aggregator {
	switch kind {
	case lang.AggCount:
		return &countAgg{forStar: forStar}
	case lang.AggSum:
		return &sumAgg{}
	case lang.AggAvg:
		return &avgAgg{}
	case lang.AggMin:
		return &minMaxAgg{want: -1}
	case lang.AggMax:
		return &minMaxAgg{want: 1}
	default:
		return nil
	}
}

// applyAggregation implements spec §4.6 step 6: group rows by the composite
// key of GroupBy field values (joined with "|", null -> "NULL"), or treat
// the whole input as one group when GroupBy is absent. Non-aggregated,
// non-grouped projection columns use the first row of the group, preserving
// the source's permissive (non-SQL-standard) behaviour documented in §9.
func applyAggregation(rows []model.Row, sel *lang.SelectStatement) []model.Row {
	groups := groupRows(rows, sel.GroupBy)

	out := make([]model.Row, 0, len(groups))
	for _, g := range groups {
		out = append(out, aggregateGroup(g, sel.Columns))
	}

	if sel.Having != nil && !sel.Having.IsEmpty() {
		filtered := out[:0]
		for _, row := range out {
			if matchesPredicate(row, sel.Having) {
				filtered = append(filtered, row)
			}
		}
		out = filtered
	}
	return out
}

func groupRows(rows []model.Row, groupBy []string) [][]model.Row {
	if len(groupBy) == 0 {
		return [][]model.Row{rows}
	}
	order := make([]string, 0)
	byKey := make(map[string][]model.Row)
	for _, row := range rows {
		key := groupKey(row, groupBy)
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], row)
	}
	out := make([][]model.Row, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

func groupKey(row model.Row, groupBy []string) string {
	parts := make([]string, len(groupBy))
	for i, field := range groupBy {
		parts[i] = toDisplayString(row[fieldName(field)])
	}
	return strings.Join(parts, "|")
}

func aggregateGroup(group []model.Row, columns []lang.Column) model.Row {
	out := model.Row{}
	for _, col := range columns {
		if col.IsAggregate() {
			forStar := col.Name == "*"
			agg := newAggregator(col.Aggregate, forStar)
			for _, row := range group {
				var v interface{}
				if !forStar {
					v = row[fieldName(col.Name)]
				}
				agg.step(v)
			}
			out[col.OutputName()] = agg.result()
			continue
		}
		var first interface{}
		if len(group) > 0 {
			first = group[0][fieldName(col.Name)]
		}
		out[col.OutputName()] = first
	}
	return out
}
