package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatdump/internal/fetch"
	"github.com/matheus3301/chatdump/internal/filter"
	"github.com/matheus3301/chatdump/internal/lock"
	"github.com/matheus3301/chatdump/internal/media"
	"github.com/matheus3301/chatdump/internal/model"
	"github.com/matheus3301/chatdump/internal/paths"
	"github.com/matheus3301/chatdump/internal/render"
	"github.com/matheus3301/chatdump/internal/resume"
	"github.com/matheus3301/chatdump/internal/status"
	"github.com/matheus3301/chatdump/internal/store"
	"github.com/matheus3301/chatdump/internal/thread"
	"github.com/matheus3301/chatdump/internal/writer"
)

// download is the state of one Download call.
type download struct {
	e      *Engine
	opts   Options
	layout paths.Layout
	runID  string
	log    *zap.Logger

	db *store.DB
	rs *resume.Store
	w  *writer.Writer
}

type fetchOutcome struct {
	added     int
	exhausted bool
	stopped   bool
}

func (d *download) run(ctx context.Context, res *Result) error {
	m := d.e.machine
	if err := m.Transition(status.Preparing); err != nil {
		return err
	}
	if err := d.layout.EnsureDir(); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	lk, err := lock.Acquire(d.layout.Lock())
	if err != nil {
		return err
	}
	defer func() {
		if err := lk.Release(); err != nil {
			d.log.Warn("release lock", zap.Error(err))
		}
	}()

	if err := d.openState(); err != nil {
		return err
	}
	defer d.db.Close()

	if d.opts.Overwrite {
		if err := d.rs.Reset(d.layout.JSON(), d.layout.Part(), d.layout.Text()); err != nil {
			return err
		}
	}
	// A stop request left over from an earlier run does not apply to this one.
	_ = os.Remove(d.layout.Stop())

	d.w, err = writer.Open(d.layout.Part(), d.layout.JSON(), d.opts.Writer, d.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.w.Close(); err != nil {
			d.log.Warn("close part file", zap.Error(err))
		}
	}()

	cur, src, err := d.rs.DetermineStartCursor(d.w, d.opts.SinceID)
	if err != nil {
		return err
	}
	res.ResumedFrom = src
	cur.MinDate, cur.MaxDate = d.opts.Filter.MinDate, d.opts.Filter.MaxDate
	d.log.Info("starting download",
		zap.String("source", string(src)),
		zap.String("direction", string(cur.Direction)),
		zap.Int64("anchor_id", cur.AnchorID),
		zap.String("output", d.layout.JSON()))

	if err := m.Transition(status.Fetching); err != nil {
		return err
	}
	out, err := d.fetchAll(ctx, cur)
	res.NewMessages = out.added
	res.Exhausted = out.exhausted
	res.Stopped = out.stopped
	if err != nil {
		// The part file and the committed anchor stay for the next run.
		return err
	}

	if !out.stopped {
		if err := m.Transition(status.Finalizing); err != nil {
			return err
		}
	}
	final, err := d.finalize(res)
	if err != nil {
		return err
	}
	if out.exhausted {
		if err := d.rs.Complete(); err != nil {
			return fmt.Errorf("clear resume state: %w", err)
		}
	}
	if out.stopped {
		d.log.Info("download stopped", zap.Int("new_messages", out.added))
		return m.Transition(status.Stopped)
	}

	if err := d.extractSubchat(final, res); err != nil {
		return err
	}

	if d.opts.Media {
		if err := m.Transition(status.Downloading); err != nil {
			return err
		}
		d.downloadMedia(ctx, final, res)
		if ctx.Err() != nil {
			res.Stopped = true
			return m.Transition(status.Stopped)
		}
	}

	d.log.Info("download finished",
		zap.Int("messages", res.Messages),
		zap.Int("new_messages", res.NewMessages),
		zap.Bool("exhausted", res.Exhausted))
	return m.Transition(status.Done)
}

func (d *download) openState() error {
	db, err := store.Open(d.layout.State())
	if err != nil {
		return err
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate state db: %w", err)
	}
	d.db = db
	d.rs = resume.New(db, resume.Config{
		Key:         d.layout.Name,
		Direction:   d.opts.Direction,
		Fingerprint: d.opts.streamSpec().Fingerprint(),
		RunID:       d.runID,
	}, d.log)
	return nil
}

// fetchAll pages until history is exhausted, the limit is reached, or a
// stop is requested. Every exit path flushes the writer before committing
// the cursor, so the saved anchor never runs ahead of the part file.
func (d *download) fetchAll(ctx context.Context, cur model.FetchCursor) (fetchOutcome, error) {
	m := d.e.machine
	f := fetch.New(d.e.client, d.opts.Chat, d.opts.Fetch, d.e.bus, d.log)
	f.OnWait = func(wait time.Duration) {
		d.log.Warn("rate limited by remote", zap.Duration("wait", wait))
		_ = m.Transition(status.Waiting)
	}
	if d.e.tuneFetcher != nil {
		d.e.tuneFetcher(f)
	}
	stream := filter.NewPipeline(d.opts.streamSpec()).WithSampleLimit(0)

	var out fetchOutcome
	for {
		if ctx.Err() != nil || d.stopRequested() {
			out.stopped = true
			break
		}

		batch, err := f.FetchNextBatch(ctx, cur, d.opts.BatchSize)
		if m.Current() == status.Waiting {
			_ = m.Transition(status.Fetching)
		}
		if err != nil {
			if ctx.Err() != nil {
				out.stopped = true
				break
			}
			if cerr := d.checkpoint(cur); cerr != nil {
				d.log.Error("checkpoint after fetch error", zap.Error(cerr))
			}
			return out, err
		}

		d.e.progress.Fetched(batch.Raw)
		kept := stream.Apply(batch.Messages)
		d.e.progress.Filtered(len(batch.Messages) - len(kept))

		next := batch.Next
		cut, reached := false, false
		if d.opts.Limit > 0 {
			kept, next, cut, reached = d.applyLimit(kept, next, d.opts.Limit-out.added)
		}

		added, flushed, err := d.w.Append(kept)
		out.added += added
		d.e.progress.Written(added)
		if err != nil {
			return out, fmt.Errorf("write batch: %w", err)
		}
		cur = next
		if flushed {
			if err := d.commit(cur); err != nil {
				return out, err
			}
		}

		if batch.Exhausted && !cut {
			out.exhausted = true
			break
		}
		if reached {
			d.log.Info("message limit reached", zap.Int("limit", d.opts.Limit))
			break
		}
	}
	d.log.Debug("fetch loop finished",
		zap.Int("added", out.added),
		zap.Int("dropped", stream.Dropped()),
		zap.Bool("exhausted", out.exhausted),
		zap.Bool("stopped", out.stopped))
	return out, d.checkpoint(cur)
}

// applyLimit keeps at most remaining messages that are new to the writer.
// When messages are cut the cursor stops at the last one kept.
func (d *download) applyLimit(kept []model.Message, next model.FetchCursor, remaining int) ([]model.Message, model.FetchCursor, bool, bool) {
	fresh := 0
	for i, msg := range kept {
		if d.w.Seen(msg.ID) {
			continue
		}
		fresh++
		if fresh == remaining {
			cut := i < len(kept)-1
			if cut {
				next.AnchorID = msg.ID
			}
			return kept[:i+1], next, cut, true
		}
	}
	return kept, next, false, false
}

// checkpoint makes every appended record durable, then saves cur.
func (d *download) checkpoint(cur model.FetchCursor) error {
	d.log.Debug("checkpoint", zap.Int("pending", d.w.Pending()), zap.Int64("anchor", cur.AnchorID))
	if err := d.w.Flush(); err != nil {
		return err
	}
	return d.commit(cur)
}

func (d *download) commit(cur model.FetchCursor) error {
	if cur.AnchorID == 0 {
		return nil
	}
	if err := d.rs.Commit(cur.AnchorID, int64(len(d.w.Flushed()))); err != nil {
		return fmt.Errorf("save resume state: %w", err)
	}
	return nil
}

func (d *download) stopRequested() bool {
	if _, err := os.Stat(d.layout.Stop()); err != nil {
		return false
	}
	d.log.Info("stop file found", zap.String("path", d.layout.Stop()))
	if err := os.Remove(d.layout.Stop()); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.log.Warn("remove stop file", zap.Error(err))
	}
	return true
}

// finalize merges the previous output with this run's records and writes
// the JSON, text and split files.
func (d *download) finalize(res *Result) ([]model.Message, error) {
	spec := d.opts.streamSpec()
	p := filter.NewPipeline(spec).WithSampleLimit(d.opts.SampleLimit)
	final := d.w.Merged()
	if !spec.Empty() {
		final = p.Apply(final)
	}

	if err := d.w.Finalize(final, d.opts.Desc); err != nil {
		return nil, fmt.Errorf("write output: %w", err)
	}
	res.ResultJSON = d.layout.JSON()

	textOpts := render.TextOptions{Desc: d.opts.Desc}
	if err := writeText(d.layout.Text(), final, textOpts); err != nil {
		return nil, err
	}
	res.ResultTxt = d.layout.Text()

	splits, err := writeSplits(d.layout, final, d.opts.Split, textOpts)
	if err != nil {
		return nil, err
	}
	res.ResultSplits = splits

	res.Messages = len(final)
	res.From, res.To = dateRange(final)
	res.Keywords = keywordReports(d.opts.Chat, p.Stats(), final)
	return final, nil
}

// extractSubchat writes the thread around the configured root next to the
// main output. Reply parents outside the downloaded window end the walk.
func (d *download) extractSubchat(final []model.Message, res *Result) error {
	root := d.opts.Filter.SubchatRoot
	if root == 0 {
		return nil
	}
	sub, err := thread.Extract(root, final)
	if err != nil {
		return fmt.Errorf("subchat %d: %w", root, err)
	}
	l := subchatLayout(d.layout, d.opts.SubchatName, root)
	if err := writer.WriteOutput(l.JSON(), sub, d.opts.Desc); err != nil {
		return err
	}
	if err := writeText(l.Text(), sub, render.TextOptions{Desc: d.opts.Desc}); err != nil {
		return err
	}
	res.ResultSubchat = l.JSON()
	d.log.Info("subchat extracted", zap.Int64("root", root), zap.Int("messages", len(sub)))
	return nil
}

func (d *download) downloadMedia(ctx context.Context, msgs []model.Message, res *Result) {
	jobs := media.BuildJobs(msgs, d.layout)
	res.ResultAttachments = d.layout.AttachmentsDir()
	sched := media.NewScheduler(d.e.client, d.opts.Fetch.Retry, d.db, d.e.progress, d.log)
	res.Media = mediaSummary(sched.Schedule(ctx, jobs, d.opts.Concurrency))
}
