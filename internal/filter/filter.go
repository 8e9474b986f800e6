// Package filter decides which fetched messages make it into the output.
package filter

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// DefaultSampleLimit is how many matches are kept per keyword.
const DefaultSampleLimit = 5

// Spec is the immutable filter configuration of a run. Zero fields are
// disabled; configured kinds are combined with AND.
type Spec struct {
	MinDate     time.Time
	MaxDate     time.Time
	Senders     []int64
	Keywords    []string
	SubchatRoot int64
	// LastDays marks MinDate as a rolling window resolved against today.
	// The fingerprint records the day count so the run resumes on a later
	// day.
	LastDays int
}

// Validate checks the spec for contradictions.
func (s Spec) Validate() error {
	if !s.MinDate.IsZero() && !s.MaxDate.IsZero() && s.MinDate.After(s.MaxDate) {
		return fmt.Errorf("min date %s is after max date %s",
			s.MinDate.Format(time.DateOnly), s.MaxDate.Format(time.DateOnly))
	}
	if s.LastDays < 0 {
		return fmt.Errorf("invalid last days %d", s.LastDays)
	}
	if s.SubchatRoot < 0 {
		return fmt.Errorf("invalid subchat root %d", s.SubchatRoot)
	}
	return nil
}

// Empty reports whether no filter kind is configured.
func (s Spec) Empty() bool {
	return s.MinDate.IsZero() && s.MaxDate.IsZero() &&
		len(s.Senders) == 0 && len(normalizeKeywords(s.Keywords)) == 0 && s.SubchatRoot == 0
}

type canonicalSpec struct {
	MinDate     string   `json:"min_date"`
	MaxDate     string   `json:"max_date"`
	Senders     []int64  `json:"senders"`
	Keywords    []string `json:"keywords"`
	SubchatRoot int64    `json:"subchat_root"`
}

// Fingerprint is a stable hash of the spec. Sender and keyword order do
// not matter.
func (s Spec) Fingerprint() string {
	c := canonicalSpec{
		Senders:     dedupSorted(s.Senders),
		Keywords:    normalizeKeywords(s.Keywords),
		SubchatRoot: s.SubchatRoot,
	}
	switch {
	case s.LastDays > 0 && s.MaxDate.IsZero():
		c.MinDate = "last_days=" + strconv.Itoa(s.LastDays)
	case !s.MinDate.IsZero():
		c.MinDate = s.MinDate.UTC().Format(time.RFC3339Nano)
	}
	if !s.MaxDate.IsZero() {
		c.MaxDate = s.MaxDate.UTC().Format(time.RFC3339Nano)
	}
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// InWindow reports whether ts falls inside the inclusive date window.
func (s Spec) InWindow(ts time.Time) bool {
	if !s.MinDate.IsZero() && ts.Before(s.MinDate) {
		return false
	}
	if !s.MaxDate.IsZero() && ts.After(s.MaxDate) {
		return false
	}
	return true
}

// ParseSender accepts "12345" or "user12345".
func ParseSender(s string) (int64, error) {
	s = strings.TrimSpace(s)
	digits := strings.TrimPrefix(strings.ToLower(s), "user")
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid sender %q: want a numeric id or user<id>", s)
	}
	return id, nil
}

func dedupSorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func normalizeKeywords(kws []string) []string {
	fold := cases.Fold()
	out := make([]string, 0, len(kws))
	for _, kw := range kws {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		out = append(out, fold.String(kw))
	}
	slices.Sort(out)
	return slices.Compact(out)
}
