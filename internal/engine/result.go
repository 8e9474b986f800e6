package engine

import (
	"time"

	"github.com/matheus3301/chatdump/internal/filter"
	"github.com/matheus3301/chatdump/internal/media"
	"github.com/matheus3301/chatdump/internal/model"
	"github.com/matheus3301/chatdump/internal/progress"
	"github.com/matheus3301/chatdump/internal/render"
	"github.com/matheus3301/chatdump/internal/resume"
	"github.com/matheus3301/chatdump/internal/status"
)

const summaryDateLayout = "2006-01-02 15:04:05"

// Result is the summary of one chat, printed by --results-json.
type Result struct {
	RunID       string        `json:"run_id,omitempty"`
	ChatID      string        `json:"chat_id"`
	Status      status.State  `json:"status"`
	ResumedFrom resume.Source `json:"resumed_from,omitempty"`

	Messages    int    `json:"messages"`
	NewMessages int    `json:"new_messages"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	Exhausted   bool   `json:"exhausted"`
	Stopped     bool   `json:"stopped,omitempty"`

	ResultJSON        string   `json:"result_json,omitempty"`
	ResultTxt         string   `json:"result_txt,omitempty"`
	ResultSplits      []string `json:"result_splits,omitempty"`
	ResultSubchat     string   `json:"result_subchat,omitempty"`
	ResultAttachments string   `json:"result_attachments,omitempty"`

	Progress progress.Snapshot `json:"progress"`
	Media    *MediaSummary     `json:"media,omitempty"`
	Keywords []KeywordReport   `json:"keywords"`
	Error    string            `json:"error,omitempty"`
}

// MediaSummary counts attachment outcomes.
type MediaSummary struct {
	Downloaded int   `json:"downloaded"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	Cancelled  int   `json:"cancelled"`
	Bytes      int64 `json:"bytes"`
}

// KeywordReport is the per-keyword section of the summary.
type KeywordReport struct {
	Text     string          `json:"text"`
	Count    int             `json:"count"`
	Messages []KeywordSample `json:"messages"`
}

// KeywordSample is one matching message with a link to it.
type KeywordSample struct {
	ID       int64  `json:"id"`
	SenderID int64  `json:"sender_id,omitempty"`
	Date     string `json:"date,omitempty"`
	Text     string `json:"text"`
	URL      string `json:"url,omitempty"`
}

func keywordReports(chat string, stats []filter.KeywordStat, msgs []model.Message) []KeywordReport {
	senders := make(map[int64]int64, len(msgs))
	for _, m := range msgs {
		senders[m.ID] = m.SenderID
	}
	out := make([]KeywordReport, 0, len(stats))
	for _, st := range stats {
		rep := KeywordReport{Text: st.Keyword, Count: st.Count, Messages: []KeywordSample{}}
		for _, s := range st.Samples {
			rep.Messages = append(rep.Messages, KeywordSample{
				ID:       s.ID,
				SenderID: senders[s.ID],
				Date:     formatDate(s.Date),
				Text:     s.Text,
				URL:      render.MessageURL(chat, s.ID),
			})
		}
		out = append(out, rep)
	}
	return out
}

func mediaSummary(r media.Results) *MediaSummary {
	return &MediaSummary{
		Downloaded: r.Downloaded,
		Skipped:    r.Skipped,
		Failed:     r.Failed(),
		Cancelled:  r.Cancelled,
		Bytes:      r.Bytes,
	}
}

// dateRange returns the earliest and latest timestamps in msgs.
func dateRange(msgs []model.Message) (first, last string) {
	var lo, hi time.Time
	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			continue
		}
		if lo.IsZero() || m.Timestamp.Before(lo) {
			lo = m.Timestamp
		}
		if m.Timestamp.After(hi) {
			hi = m.Timestamp
		}
	}
	return formatDate(lo), formatDate(hi)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(summaryDateLayout)
}
