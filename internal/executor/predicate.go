package executor

import (
	"strconv"
	"strings"

	"github.com/cyw0ng95/infraql/internal/lang"
	"github.com/cyw0ng95/infraql/internal/model"
)

// lowerFilters builds the pushdown filter list from a WHERE predicate (spec
// §4.6 step 2). Every condition is included verbatim; there is nothing to
// exclude at WHERE time since aggregate aliases only exist by the time
// HAVING runs. The executor re-applies the full predicate after fetch
// regardless (Testable Property 3), so an incomplete or ignored pushdown is
// always safe.
func lowerFilters(pred *lang.Predicate) []model.Filter {
	if pred.IsEmpty() {
		return nil
	}
	filters := make([]model.Filter, 0, len(pred.Conditions))
	for _, c := range pred.Conditions {
		f := model.Filter{Field: c.Field, Op: c.Op, SecondValue: c.SecondValue}
		if c.Op == "IN" {
			f.Value = c.Values
		} else {
			f.Value = c.Value
		}
		filters = append(filters, f)
	}
	return filters
}

// matchesPredicate re-applies a WHERE/HAVING predicate to row. Conditions
// combine with the predicate's single Combinator, per the "last combinator
// wins" behaviour preserved from the source (§9).
func matchesPredicate(row model.Row, pred *lang.Predicate) bool {
	if pred.IsEmpty() {
		return true
	}
	if pred.Combinator == lang.CombOr {
		for _, c := range pred.Conditions {
			if evalCondition(row[fieldName(c.Field)], c) {
				return true
			}
		}
		return false
	}
	for _, c := range pred.Conditions {
		if !evalCondition(row[fieldName(c.Field)], c) {
			return false
		}
	}
	return true
}

// fieldName strips a "table." qualifier, leaving the bare column name a Row
// key is stored under.
func fieldName(qname string) string {
	if i := strings.LastIndexByte(qname, '.'); i >= 0 {
		return qname[i+1:]
	}
	return qname
}

// evalCondition applies one WHERE/HAVING leaf. Null never compares equal to
// anything; every comparison against a null value is false (spec §4.6).
func evalCondition(rowVal interface{}, c lang.Condition) bool {
	if rowVal == nil {
		return false
	}
	switch c.Op {
	case "=":
		return compareValues(rowVal, c.Value) == 0
	case "!=":
		return compareValues(rowVal, c.Value) != 0
	case ">":
		return compareValues(rowVal, c.Value) > 0
	case "<":
		return compareValues(rowVal, c.Value) < 0
	case ">=":
		return compareValues(rowVal, c.Value) >= 0
	case "<=":
		return compareValues(rowVal, c.Value) <= 0
	case "LIKE":
		pattern, ok := c.Value.(string)
		if !ok {
			return false
		}
		return strings.Contains(strings.ToUpper(stringForm(rowVal)), strings.ToUpper(pattern))
	case "IN":
		for _, v := range c.Values {
			if v != nil && compareValues(rowVal, v) == 0 {
				return true
			}
		}
		return false
	case "BETWEEN":
		return compareValues(rowVal, c.Value) >= 0 && compareValues(rowVal, c.SecondValue) <= 0
	default:
		return false
	}
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int, int64, float64:
		return true
	}
	return false
}

func toFloat(v interface{}) float64 {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float64:
		return val
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}

func stringForm(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return toDisplayString(val)
	}
}

// compareValues orders a against b: numeric ordering when both sides are
// numeric, lexicographic on the string form otherwise (spec §4.6).
func compareValues(a, b interface{}) int {
	if isNumeric(a) && isNumeric(b) {
		af, bf := toFloat(a), toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := stringForm(a), stringForm(b)
	return strings.Compare(as, bs)
}
