package dataset

import (
	"fmt"
	"time"

	"github.com/dhelos/saleshook/internal/flatten"
)

// Strategy selects how two comparison values are ordered.
type Strategy string

const (
	// StrategyLexical orders values by plain string comparison. This is only
	// correct for values whose string order matches their semantic order,
	// such as zero-padded ISO-8601 timestamps. Unpadded dates like
	// "2024-2-1" sort after "2024-10-1" and will be treated as newer.
	StrategyLexical Strategy = "lexical"

	// StrategyChronological parses both values as timestamps and orders them
	// in time. Values that cannot be parsed fall back to lexical ordering.
	StrategyChronological Strategy = "chronological"
)

// ComparePolicy configures the duplicate decision.
type ComparePolicy struct {
	// Column is the primary comparison column, typically a timestamp.
	Column string

	// Fallback is a secondary identifier column, typically an order or
	// transaction id, consulted when the primary column is unusable.
	Fallback string

	// Strategy orders the comparison values. Defaults to StrategyLexical.
	Strategy Strategy
}

// timestampLayouts are tried in order by the chronological strategy.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// IsNew reports whether the candidate record is new relative to the dataset.
//
// An empty dataset always accepts the candidate. When the primary comparison
// column is usable in both the candidate and the dataset, the candidate is
// new iff its value orders strictly after the column's last stored value.
// Otherwise the fallback column is consulted: the candidate is new iff its
// fallback value appears nowhere in that column. When neither column is
// usable the decision fails open and the candidate is accepted, risking a
// duplicate rather than silently dropping data.
func (d *Dataset) IsNew(candidate flatten.Record, policy ComparePolicy) bool {
	if d.Empty() {
		return true
	}

	if v, ok := usable(candidate, policy.Column, d); ok {
		last, found := d.lastValue(policy.Column)
		if !found {
			return true
		}
		return newer(v, last, policy.Strategy)
	}

	if v, ok := usable(candidate, policy.Fallback, d); ok {
		want := fmt.Sprint(v)
		for _, row := range d.rows {
			if cell := row.Value(policy.Fallback); cell != nil && fmt.Sprint(cell) == want {
				return false
			}
		}
		return true
	}

	return true
}

// usable reports whether column carries a comparable value in both the
// candidate and the dataset.
func usable(candidate flatten.Record, column string, d *Dataset) (any, bool) {
	if column == "" || !candidate.Has(column) || !d.hasColumn(column) {
		return nil, false
	}
	v := candidate.Value(column)
	if falsy(v) {
		return nil, false
	}
	return v, true
}

func falsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case int:
		return t == 0
	case int64:
		return t == 0
	default:
		return false
	}
}

func newer(candidate, last any, strategy Strategy) bool {
	cs, ls := fmt.Sprint(candidate), fmt.Sprint(last)

	if strategy == StrategyChronological {
		ct, cok := parseTimestamp(cs)
		lt, lok := parseTimestamp(ls)
		if cok && lok {
			return ct.After(lt)
		}
	}

	return cs > ls
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
