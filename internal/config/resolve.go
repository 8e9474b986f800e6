package config

import (
	"strings"
	"time"

	"github.com/matheus3301/chatdump/internal/engine"
	"github.com/matheus3301/chatdump/internal/fetch"
	"github.com/matheus3301/chatdump/internal/filter"
	"github.com/matheus3301/chatdump/internal/model"
	"github.com/matheus3301/chatdump/internal/render"
	"github.com/matheus3301/chatdump/internal/retry"
	"github.com/matheus3301/chatdump/internal/thread"
	"github.com/matheus3301/chatdump/internal/writer"
)

// Flags are the per-invocation values given on the command line.
type Flags struct {
	// Chats is a comma separated list of chat identifiers.
	Chats       string
	Output      string
	OutputDir   string
	Limit       int
	SinceID     int64
	Users       string
	From        string
	Until       string
	LastDays    int
	Keywords    string
	Subchat     string
	SubchatName string
	Split       string
	Sort        string
	Overwrite   bool
	Media       bool
	BatchSize   int
	Concurrency int
	Backward    bool
}

// Resolve merges settings and flags into one engine.Options per chat.
// now anchors --last-days when --from is not given.
func (s Settings) Resolve(f Flags, now time.Time) ([]engine.Options, error) {
	if f.BatchSize != 0 {
		s.BatchSize = f.BatchSize
	}
	if f.Concurrency != 0 {
		s.Concurrency = f.Concurrency
	}
	if f.Backward {
		s.Direction = model.Backward
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	chats := SplitList(f.Chats)
	if len(chats) == 0 {
		return nil, invalid("chat", "at least one chat is required")
	}
	if f.Output != "" && len(chats) > 1 {
		return nil, invalid("output", "cannot name one output file for %d chats", len(chats))
	}
	if f.Limit < 0 {
		return nil, invalid("limit", "must not be negative, got %d", f.Limit)
	}

	spec, err := f.FilterSpec(now)
	if err != nil {
		return nil, err
	}
	desc, err := parseSort(f.Sort)
	if err != nil {
		return nil, err
	}
	period, err := render.ParsePeriod(f.Split)
	if err != nil {
		return nil, invalid("split", "%v", err)
	}

	outDir := f.OutputDir
	if outDir == "" {
		outDir = s.OutputDir
	}
	base := engine.Options{
		OutputDir:   outDir,
		Output:      f.Output,
		Filter:      spec,
		SubchatName: f.SubchatName,
		SinceID:     f.SinceID,
		Limit:       f.Limit,
		BatchSize:   s.BatchSize,
		Direction:   s.Direction,
		Desc:        desc,
		Overwrite:   f.Overwrite,
		Split:       period,
		Media:       f.Media,
		Concurrency: s.Concurrency,
		Fetch: fetch.Options{
			RequestDelay: s.RequestDelay.Duration,
			Retry: retry.Policy{
				MaxRetries: s.MaxRetries,
				BaseDelay:  s.RetryDelay.Duration,
				MaxDelay:   s.MaxRetryDelay.Duration,
			},
		},
		Writer: writer.Options{FlushEvery: s.FlushEvery},
	}

	runs := make([]engine.Options, 0, len(chats))
	for _, chat := range chats {
		o := base
		o.Chat = chat
		runs = append(runs, o)
	}
	return runs, nil
}

// ConvertOptions resolves the flags that apply to converting an existing
// archive. Download-only flags are ignored.
func (f Flags) ConvertOptions(input string, now time.Time) (engine.ConvertOptions, error) {
	if strings.TrimSpace(input) == "" {
		return engine.ConvertOptions{}, invalid("input", "an archive path is required")
	}
	spec, err := f.FilterSpec(now)
	if err != nil {
		return engine.ConvertOptions{}, err
	}
	desc, err := parseSort(f.Sort)
	if err != nil {
		return engine.ConvertOptions{}, err
	}
	period, err := render.ParsePeriod(f.Split)
	if err != nil {
		return engine.ConvertOptions{}, invalid("split", "%v", err)
	}
	return engine.ConvertOptions{
		Input:       input,
		Output:      f.Output,
		Chat:        f.Chats,
		Filter:      spec,
		SubchatName: f.SubchatName,
		Desc:        desc,
		Split:       period,
	}, nil
}

// FilterSpec builds the filter configuration from the flags.
func (f Flags) FilterSpec(now time.Time) (filter.Spec, error) {
	var spec filter.Spec

	minDate, maxDate, err := DateWindow(f.From, f.Until, f.LastDays, now)
	if err != nil {
		return spec, err
	}
	spec.MinDate, spec.MaxDate = minDate, maxDate
	if f.LastDays > 0 && f.From == "" {
		spec.LastDays = f.LastDays
	}

	for _, u := range SplitList(f.Users) {
		id, err := filter.ParseSender(u)
		if err != nil {
			return spec, invalid("user", "%v", err)
		}
		spec.Senders = append(spec.Senders, id)
	}
	spec.Keywords = SplitList(f.Keywords)

	if f.Subchat != "" {
		root, err := thread.ParseRoot(f.Subchat)
		if err != nil {
			return spec, invalid("subchat", "%v", err)
		}
		spec.SubchatRoot = root
	}
	if err := spec.Validate(); err != nil {
		return spec, invalid("dates", "%v", err)
	}
	return spec, nil
}

// DateWindow turns the date flags into inclusive bounds. --from is the
// newest day kept and --until the oldest, matching how history is read
// back from the present. --last-days N keeps N whole days ending at --from
// (or today) and overrides --until.
func DateWindow(from, until string, lastDays int, now time.Time) (minDate, maxDate time.Time, err error) {
	if lastDays < 0 {
		return minDate, maxDate, invalid("last-days", "must not be negative, got %d", lastDays)
	}
	loc := now.Location()

	var fromDay time.Time
	if from != "" {
		fromDay, err = time.ParseInLocation(time.DateOnly, from, loc)
		if err != nil {
			return minDate, maxDate, invalid("from", "want YYYY-MM-DD, got %q", from)
		}
		maxDate = endOfDay(fromDay)
	}

	switch {
	case lastDays > 0:
		day := fromDay
		if day.IsZero() {
			y, m, d := now.Date()
			day = time.Date(y, m, d, 0, 0, 0, 0, loc)
		}
		minDate = day.AddDate(0, 0, -(lastDays - 1))
	case until != "":
		minDate, err = time.ParseInLocation(time.DateOnly, until, loc)
		if err != nil {
			return minDate, maxDate, invalid("until", "want YYYY-MM-DD, got %q", until)
		}
	}
	return minDate, maxDate, nil
}

func endOfDay(day time.Time) time.Time {
	return day.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func parseSort(s string) (desc bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc":
		return false, nil
	case "desc":
		return true, nil
	}
	return false, invalid("sort", "%q is not asc or desc", s)
}

// SplitList splits a comma separated flag value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
