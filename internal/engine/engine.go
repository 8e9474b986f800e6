// Package engine runs chat downloads and archive conversions end to end.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/chatdump/internal/bus"
	"github.com/matheus3301/chatdump/internal/fetch"
	"github.com/matheus3301/chatdump/internal/progress"
	"github.com/matheus3301/chatdump/internal/remote"
	"github.com/matheus3301/chatdump/internal/status"
)

// Engine downloads chats through a remote client. Runs are sequential; an
// Engine must not be used from two goroutines at once.
type Engine struct {
	client   remote.Client
	bus      *bus.Bus
	machine  *status.Machine
	progress *progress.Reporter
	logger   *zap.Logger

	newRunID func() string
	// tuneFetcher is called on every new fetcher; tests use it to replace
	// the retry clock.
	tuneFetcher func(*fetch.Fetcher)
}

// New creates an engine. machine and reporter are created on b when nil.
func New(client remote.Client, b *bus.Bus, machine *status.Machine, reporter *progress.Reporter, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if machine == nil {
		machine = status.NewMachine(b)
	}
	if reporter == nil {
		reporter = progress.New(b)
	}
	return &Engine{
		client:   client,
		bus:      b,
		machine:  machine,
		progress: reporter,
		logger:   logger,
		newRunID: uuid.NewString,
	}
}

// Status returns the state of the current or last run.
func (e *Engine) Status() status.State {
	return e.machine.Current()
}

// Download fetches one chat into its output, resuming a previous run of
// the same output when possible. The returned Result is non-nil once
// the options validated, even when err is set.
func (e *Engine) Download(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	e.progress.Reset()

	d := &download{
		e:      e,
		opts:   opts,
		layout: opts.Layout(),
		runID:  e.newRunID(),
	}
	d.log = e.logger.With(zap.String("chat", opts.Chat), zap.String("run_id", d.runID))
	res := &Result{RunID: d.runID, ChatID: opts.Chat, Keywords: []KeywordReport{}}

	err := d.run(ctx, res)
	if err != nil {
		res.Error = err.Error()
		if !e.machine.Current().Terminal() {
			_ = e.machine.Transition(status.Failed)
		}
		d.log.Error("download failed", zap.Error(err))
	}
	res.Status = e.machine.Current()
	res.Progress = e.progress.Snapshot()
	e.bus.Emit(bus.KindRunFinished, res)
	return res, err
}

// DownloadAll downloads each chat in turn. A failed chat does not stop the
// ones after it; a stopped or cancelled run does.
func (e *Engine) DownloadAll(ctx context.Context, runs []Options) ([]*Result, error) {
	var (
		results []*Result
		errs    []error
	)
	for _, opts := range runs {
		if ctx.Err() != nil {
			break
		}
		res, err := e.Download(ctx, opts)
		if res == nil {
			res = &Result{ChatID: opts.Chat, Status: status.Failed, Keywords: []KeywordReport{}}
			if err != nil {
				res.Error = err.Error()
			}
		}
		results = append(results, res)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", opts.Chat, err))
		}
		if res.Stopped {
			break
		}
	}
	return results, errors.Join(errs...)
}
