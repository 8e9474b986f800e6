package filter

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/matheus3301/chatdump/internal/model"
)

const sampleTextLimit = 200

// KeywordMatch is one sample message that matched a keyword.
type KeywordMatch struct {
	ID   int64     `json:"id"`
	Date time.Time `json:"date"`
	Text string    `json:"text"`
}

// KeywordStat summarizes matches for one keyword.
type KeywordStat struct {
	Keyword string         `json:"keyword"`
	Count   int            `json:"count"`
	Samples []KeywordMatch `json:"samples,omitempty"`
}

type keyword struct {
	folded string
	stat   *KeywordStat
}

// Pipeline applies a Spec to batches of messages. Stages run in order:
// date, sender, subchat membership, keyword. Not safe for concurrent use.
type Pipeline struct {
	spec        Spec
	senders     map[int64]struct{}
	members     map[int64]struct{}
	keywords    []keyword
	caser       cases.Caser
	sampleLimit int
	dropped     int
}

// NewPipeline builds the stages configured in spec.
func NewPipeline(spec Spec) *Pipeline {
	p := &Pipeline{
		spec:        spec,
		caser:       cases.Fold(),
		sampleLimit: DefaultSampleLimit,
	}
	if len(spec.Senders) > 0 {
		p.senders = make(map[int64]struct{}, len(spec.Senders))
		for _, id := range spec.Senders {
			p.senders[id] = struct{}{}
		}
	}
	seen := map[string]bool{}
	for _, kw := range spec.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		folded := p.caser.String(kw)
		if seen[folded] {
			continue
		}
		seen[folded] = true
		p.keywords = append(p.keywords, keyword{
			folded: folded,
			stat:   &KeywordStat{Keyword: kw},
		})
	}
	return p
}

// WithMembers sets the subchat membership set. Without it a spec that names
// a subchat root lets every message through the membership stage; the
// caller resolves membership once the corpus is complete.
func (p *Pipeline) WithMembers(ids map[int64]struct{}) *Pipeline {
	p.members = ids
	return p
}

// WithSampleLimit overrides how many sample matches are kept per keyword.
func (p *Pipeline) WithSampleLimit(n int) *Pipeline {
	if n >= 0 {
		p.sampleLimit = n
	}
	return p
}

// Apply returns the messages of batch that pass every stage, in order.
func (p *Pipeline) Apply(batch []model.Message) []model.Message {
	out := make([]model.Message, 0, len(batch))
	for _, m := range batch {
		if p.keep(m) {
			out = append(out, m)
		} else {
			p.dropped++
		}
	}
	return out
}

func (p *Pipeline) keep(m model.Message) bool {
	if !p.spec.InWindow(m.Timestamp) {
		return false
	}
	if p.senders != nil {
		if _, ok := p.senders[m.SenderID]; !ok {
			return false
		}
	}
	if p.members != nil {
		if _, ok := p.members[m.ID]; !ok {
			return false
		}
	}
	if len(p.keywords) == 0 {
		return true
	}
	return p.matchKeywords(m)
}

// matchKeywords records stats for every keyword found in m, so a message
// containing two keywords counts toward both.
func (p *Pipeline) matchKeywords(m model.Message) bool {
	text := p.caser.String(m.Text)
	matched := false
	for _, kw := range p.keywords {
		if !strings.Contains(text, kw.folded) {
			continue
		}
		matched = true
		kw.stat.Count++
		if len(kw.stat.Samples) < p.sampleLimit {
			kw.stat.Samples = append(kw.stat.Samples, KeywordMatch{
				ID:   m.ID,
				Date: m.Timestamp,
				Text: truncate(m.Text, sampleTextLimit),
			})
		}
	}
	return matched
}

// Stats returns per-keyword statistics in configuration order.
func (p *Pipeline) Stats() []KeywordStat {
	out := make([]KeywordStat, 0, len(p.keywords))
	for _, kw := range p.keywords {
		out = append(out, *kw.stat)
	}
	return out
}

// Dropped returns how many messages were rejected so far.
func (p *Pipeline) Dropped() int {
	return p.dropped
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
