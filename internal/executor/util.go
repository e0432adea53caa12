package executor

import "fmt"

// toDisplayString renders a scalar for string-form comparisons and grouping
// keys. nil becomes "NULL" per spec §4.6's grouping-key convention.
func toDisplayString(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
