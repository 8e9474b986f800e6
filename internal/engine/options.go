package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/matheus3301/chatdump/internal/fetch"
	"github.com/matheus3301/chatdump/internal/filter"
	"github.com/matheus3301/chatdump/internal/media"
	"github.com/matheus3301/chatdump/internal/model"
	"github.com/matheus3301/chatdump/internal/paths"
	"github.com/matheus3301/chatdump/internal/render"
	"github.com/matheus3301/chatdump/internal/writer"
)

// DefaultBatchSize is used when Options.BatchSize is zero.
const DefaultBatchSize = 100

// Options is the fully resolved configuration of one chat download.
type Options struct {
	Chat string
	// OutputDir holds the artifacts when Output is empty.
	OutputDir string
	// Output is an explicit path of the final JSON file.
	Output string

	Filter filter.Spec
	// SubchatName names the extracted thread's files (default: the root id).
	SubchatName string
	SampleLimit int

	SinceID int64
	// Limit caps how many new messages this run writes (0 = no cap).
	Limit     int
	BatchSize int
	Direction model.Direction
	// Desc sorts the final output newest first.
	Desc      bool
	Overwrite bool
	Split     render.Period

	Media       bool
	Concurrency int

	Fetch  fetch.Options
	Writer writer.Options
}

func (o Options) withDefaults() Options {
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	if !o.Direction.Valid() {
		o.Direction = model.Forward
	}
	if o.Concurrency <= 0 {
		o.Concurrency = media.DefaultConcurrency
	}
	if o.OutputDir == "" {
		o.OutputDir = "."
	}
	if o.SampleLimit == 0 {
		o.SampleLimit = filter.DefaultSampleLimit
	}
	return o
}

// Validate rejects options that must fail before any request is made.
func (o Options) Validate() error {
	if strings.TrimSpace(o.Chat) == "" {
		return errors.New("no chat given")
	}
	if o.BatchSize < fetch.MinBatchSize || o.BatchSize > fetch.MaxBatchSize {
		return fmt.Errorf("%w: got %d", fetch.ErrInvalidBatchSize, o.BatchSize)
	}
	if o.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", o.Limit)
	}
	if o.SinceID < 0 {
		return fmt.Errorf("since-id must not be negative, got %d", o.SinceID)
	}
	if _, err := render.ParsePeriod(string(o.Split)); err != nil {
		return err
	}
	return o.Filter.Validate()
}

// Layout returns where the artifacts of this download live.
func (o Options) Layout() paths.Layout {
	if o.Output != "" {
		return paths.ForOutput(o.Output)
	}
	return paths.ForChat(o.OutputDir, o.Chat)
}

// streamSpec is the part of the filter applied while paging. The thread
// root is resolved once the corpus is complete, so it does not shape what
// gets persisted.
func (o Options) streamSpec() filter.Spec {
	spec := o.Filter
	spec.SubchatRoot = 0
	return spec
}

func subchatLayout(base paths.Layout, name string, root int64) paths.Layout {
	if name == "" {
		name = strconv.FormatInt(root, 10)
	}
	return base.Subchat(name)
}
