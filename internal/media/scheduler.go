// Package media downloads message attachments with a bounded worker pool.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matheus3301/chatdump/internal/model"
	"github.com/matheus3301/chatdump/internal/paths"
	"github.com/matheus3301/chatdump/internal/progress"
	"github.com/matheus3301/chatdump/internal/remote"
	"github.com/matheus3301/chatdump/internal/retry"
)

// DefaultConcurrency is used when the caller passes a non-positive limit.
const DefaultConcurrency = 4

const partialSuffix = ".partial"

// Job downloads one attachment to Dest.
type Job struct {
	MessageID  int64
	Attachment model.Attachment
	Dest       string
	Attempts   int
}

// DownloadError records an attachment that could not be downloaded.
type DownloadError struct {
	MessageID    int64
	AttachmentID string
	Attempts     int
	Err          error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download attachment %s of message %d after %d attempts: %v",
		e.AttachmentID, e.MessageID, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Results aggregates the outcome of a Schedule call.
type Results struct {
	Downloaded int
	Skipped    int
	Cancelled  int
	Bytes      int64
	Failures   []*DownloadError
}

// Failed returns the number of permanently failed jobs.
func (r Results) Failed() int {
	return len(r.Failures)
}

// Ledger persists job outcomes. *store.DB implements it.
type Ledger interface {
	QueueAttachment(messageID int64, attachmentID, dest string) error
	MarkAttachmentDone(messageID int64, attachmentID string, attempts int, n int64) error
	MarkAttachmentSkipped(messageID int64, attachmentID string) error
	MarkAttachmentFailed(messageID int64, attachmentID string, attempts int, errMsg string) error
}

// BuildJobs lists one job per attachment under layout's attachments dir.
// Names are unique within a message; a repeated name is prefixed with the
// attachment id.
func BuildJobs(msgs []model.Message, layout paths.Layout) []Job {
	var jobs []Job
	for _, m := range msgs {
		taken := make(map[string]bool, len(m.Attachments))
		for _, att := range m.Attachments {
			name := uniqueName(taken, att)
			jobs = append(jobs, Job{
				MessageID:  m.ID,
				Attachment: att,
				Dest:       layout.Attachment(m.ID, name),
			})
		}
	}
	return jobs
}

func uniqueName(taken map[string]bool, att model.Attachment) string {
	name := att.FileName()
	if taken[name] {
		name = paths.SafeName(att.ID) + "_" + name
	}
	candidate := name
	for i := 2; taken[candidate]; i++ {
		ext := filepath.Ext(name)
		candidate = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), i, ext)
	}
	taken[candidate] = true
	return candidate
}

// Scheduler runs download jobs against an attachment source.
type Scheduler struct {
	source   remote.AttachmentSource
	policy   retry.Policy
	ledger   Ledger
	progress *progress.Reporter
	log      *zap.Logger

	// newRunner is swapped in tests to avoid real sleeps.
	newRunner func() *retry.Runner
}

// NewScheduler creates a scheduler. ledger and reporter may be nil.
func NewScheduler(source remote.AttachmentSource, policy retry.Policy, ledger Ledger, reporter *progress.Reporter, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		source:   source,
		policy:   policy,
		ledger:   ledger,
		progress: reporter,
		log:      log,
	}
	s.newRunner = func() *retry.Runner {
		return retry.NewRunner(s.policy, remote.Classify, s.log)
	}
	return s
}

// Schedule downloads jobs with at most concurrency in flight. A failing
// job never cancels the others; cancelling ctx stops jobs that have not
// started yet.
func (s *Scheduler) Schedule(ctx context.Context, jobs []Job, concurrency int) Results {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var (
		mu  sync.Mutex
		res Results
	)
	var g errgroup.Group
	g.SetLimit(concurrency)

	for _, job := range jobs {
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				res.Cancelled++
				mu.Unlock()
				return nil
			}
			outcome, n, err := s.run(ctx, job)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil && ctx.Err() != nil:
				res.Cancelled++
			case err != nil:
				var de *DownloadError
				if errors.As(err, &de) {
					res.Failures = append(res.Failures, de)
				}
			case outcome == outcomeSkipped:
				res.Skipped++
			default:
				res.Downloaded++
				res.Bytes += n
			}
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("media download finished",
		zap.Int("downloaded", res.Downloaded),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed()),
		zap.Int("cancelled", res.Cancelled),
		zap.Int64("bytes", res.Bytes))
	return res
}

type outcome int

const (
	outcomeDownloaded outcome = iota
	outcomeSkipped
)

func (s *Scheduler) run(ctx context.Context, job Job) (outcome, int64, error) {
	att := job.Attachment
	log := s.log.With(zap.Int64("message_id", job.MessageID), zap.String("attachment_id", att.ID))

	if s.ledger != nil {
		if err := s.ledger.QueueAttachment(job.MessageID, att.ID, job.Dest); err != nil {
			log.Warn("record attachment job", zap.Error(err))
		}
	}

	if complete(job.Dest, att.Size) {
		log.Debug("attachment already present, skipping", zap.String("dest", job.Dest))
		if s.ledger != nil {
			_ = s.ledger.MarkAttachmentSkipped(job.MessageID, att.ID)
		}
		if s.progress != nil {
			s.progress.MediaDone(true)
		}
		return outcomeSkipped, 0, nil
	}

	var n int64
	stats, err := s.newRunner().Do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.download(ctx, job)
		return err
	})
	attempts := job.Attempts + stats.Attempts
	if err != nil {
		if ctx.Err() != nil {
			return outcomeDownloaded, 0, err
		}
		de := &DownloadError{MessageID: job.MessageID, AttachmentID: att.ID, Attempts: attempts, Err: err}
		log.Warn("attachment download failed", zap.Int("attempts", attempts), zap.Error(err))
		if s.ledger != nil {
			_ = s.ledger.MarkAttachmentFailed(job.MessageID, att.ID, attempts, err.Error())
		}
		if s.progress != nil {
			s.progress.MediaFailed()
		}
		return outcomeDownloaded, 0, de
	}

	log.Debug("attachment downloaded", zap.String("dest", job.Dest), zap.Int64("bytes", n))
	if s.ledger != nil {
		_ = s.ledger.MarkAttachmentDone(job.MessageID, att.ID, attempts, n)
	}
	if s.progress != nil {
		s.progress.MediaDone(false)
	}
	return outcomeDownloaded, n, nil
}

// download streams one attachment into "<dest>.partial" and renames it
// into place once complete.
func (s *Scheduler) download(ctx context.Context, job Job) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(job.Dest), 0755); err != nil {
		return 0, remote.Permanent(fmt.Errorf("create attachment dir: %w", err))
	}

	rc, err := s.source.OpenAttachment(ctx, job.Attachment)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	tmp := job.Dest + partialSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, remote.Permanent(fmt.Errorf("create partial file: %w", err))
	}

	n, err := io.Copy(f, rc)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, &remote.TransientError{Err: fmt.Errorf("write attachment: %w", err)}
	}

	if size := job.Attachment.Size; size > 0 && n != size {
		_ = os.Remove(tmp)
		return 0, &remote.TransientError{Err: fmt.Errorf("short attachment: got %d of %d bytes", n, size)}
	}

	if err := os.Rename(tmp, job.Dest); err != nil {
		return 0, remote.Permanent(fmt.Errorf("finalize attachment: %w", err))
	}
	return n, nil
}

// complete reports whether dest holds a finished download. Partial files
// never count.
func complete(dest string, size int64) bool {
	info, err := os.Stat(dest)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return size <= 0 || info.Size() == size
}
