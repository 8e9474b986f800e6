package render

import (
	"fmt"
	"slices"

	"github.com/matheus3301/chatdump/internal/model"
)

// Period is a split granularity.
type Period string

const (
	ByMonth Period = "month"
	ByYear  Period = "year"
)

// ParsePeriod validates a split flag value. Empty means no split.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", ByMonth, ByYear:
		return Period(s), nil
	}
	return "", fmt.Errorf("invalid split period %q: want month or year", s)
}

// Partition groups msgs by month ("2006-01") or year ("2006") of their
// timestamp, in UTC. Messages without a timestamp are left out.
func Partition(msgs []model.Message, p Period) map[string][]model.Message {
	layout := "2006"
	if p == ByMonth {
		layout = "2006-01"
	}
	out := make(map[string][]model.Message)
	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			continue
		}
		key := m.Timestamp.UTC().Format(layout)
		out[key] = append(out[key], m)
	}
	return out
}

// Keys returns the partition keys in ascending order.
func Keys(parts map[string][]model.Message) []string {
	keys := make([]string, 0, len(parts))
	for k := range parts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
