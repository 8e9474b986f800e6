// Package fetch pages through remote chat history one batch at a time.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matheus3301/chatdump/internal/bus"
	"github.com/matheus3301/chatdump/internal/model"
	"github.com/matheus3301/chatdump/internal/remote"
	"github.com/matheus3301/chatdump/internal/retry"
)

// Batch size bounds accepted by FetchNextBatch.
const (
	MinBatchSize = 1
	MaxBatchSize = 1000
)

// ErrInvalidBatchSize is returned for a batch size outside the bounds.
var ErrInvalidBatchSize = fmt.Errorf("batch size must be between %d and %d", MinBatchSize, MaxBatchSize)

// Options tune pacing and retries.
type Options struct {
	// RequestDelay is the minimum spacing between history requests.
	RequestDelay time.Duration
	Retry        retry.Policy
}

// Batch is the result of one page request.
type Batch struct {
	// Messages are the in-window messages in pagination order.
	Messages []model.Message
	// Next is the cursor for the following request.
	Next model.FetchCursor
	// Exhausted is set when no further request would return more messages.
	Exhausted bool
	// Raw is the number of messages the remote returned.
	Raw   int
	Stats retry.Stats
}

// Fetcher requests history pages for a single chat.
type Fetcher struct {
	client  remote.HistoryClient
	chat    string
	limiter *rate.Limiter
	runner  *retry.Runner
	bus     *bus.Bus
	log     *zap.Logger

	// OnWait, when set, is called before sleeping on a rate limit.
	OnWait func(d time.Duration)
}

// New creates a fetcher for chat.
func New(client remote.HistoryClient, chat string, opts Options, b *bus.Bus, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Inf
	if opts.RequestDelay > 0 {
		limit = rate.Every(opts.RequestDelay)
	}
	f := &Fetcher{
		client:  client,
		chat:    chat,
		limiter: rate.NewLimiter(limit, 1),
		bus:     b,
		log:     log.With(zap.String("chat", chat)),
	}
	f.runner = retry.NewRunner(opts.Retry, remote.Classify, f.log)
	f.runner.OnWait = func(d time.Duration) {
		f.bus.Emit(bus.KindRateLimited, d)
		if f.OnWait != nil {
			f.OnWait(d)
		}
	}
	return f
}

// Runner exposes the retry runner so callers can swap its clock.
func (f *Fetcher) Runner() *retry.Runner {
	return f.runner
}

// Request builds the remote request for cur. The same cursor always
// yields the same request.
func Request(chat string, cur model.FetchCursor, batchSize int) remote.HistoryRequest {
	req := remote.HistoryRequest{Chat: chat, Limit: batchSize}
	if cur.Direction == model.Backward {
		req.BeforeID = cur.AnchorID
		req.AfterID = cur.MinID
		return req
	}
	req.AfterID = max(cur.AnchorID, cur.MinID)
	req.Ascending = true
	return req
}

// FetchNextBatch requests the page after cur. Rate limits are waited out
// without consuming the retry budget; transient errors back off until the
// budget runs out; permanent errors and cancellation return immediately.
func (f *Fetcher) FetchNextBatch(ctx context.Context, cur model.FetchCursor, batchSize int) (Batch, error) {
	if batchSize < MinBatchSize || batchSize > MaxBatchSize {
		return Batch{}, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, batchSize)
	}
	if !cur.Direction.Valid() {
		cur.Direction = model.Forward
	}

	req := Request(f.chat, cur, batchSize)
	var page []model.Message
	stats, err := f.runner.Do(ctx, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		page, err = f.client.History(ctx, req)
		return err
	})
	if err != nil {
		if errors.Is(err, retry.ErrBudgetExhausted) {
			f.log.Error("history request failed", zap.Int64("anchor_id", cur.AnchorID), zap.Error(err))
		}
		return Batch{Stats: stats}, fmt.Errorf("fetch history after %d: %w", cur.AnchorID, err)
	}

	batch := advance(cur, page)
	batch.Stats = stats
	if len(page) < batchSize || batch.Next.AnchorID == cur.AnchorID {
		batch.Exhausted = true
	}
	f.log.Debug("fetched batch",
		zap.Int("raw", batch.Raw),
		zap.Int("kept", len(batch.Messages)),
		zap.Int64("next_anchor", batch.Next.AnchorID),
		zap.Bool("exhausted", batch.Exhausted))
	return batch, nil
}

// advance walks page in pagination order, drops messages outside the
// cursor's bounds and moves the anchor to the last message examined.
func advance(cur model.FetchCursor, page []model.Message) Batch {
	ordered := make([]model.Message, len(page))
	copy(ordered, page)
	model.SortByID(ordered, cur.Direction == model.Backward)

	b := Batch{Next: cur, Raw: len(page)}
	for _, m := range ordered {
		if cur.Direction == model.Forward {
			if m.ID <= b.Next.AnchorID {
				continue
			}
			if !cur.MaxDate.IsZero() && m.Timestamp.After(cur.MaxDate) {
				b.Exhausted = true
				break
			}
			b.Next.AnchorID = m.ID
			if !cur.MinDate.IsZero() && m.Timestamp.Before(cur.MinDate) {
				continue
			}
		} else {
			if b.Next.AnchorID > 0 && m.ID >= b.Next.AnchorID {
				continue
			}
			if cur.MinID > 0 && m.ID <= cur.MinID {
				b.Exhausted = true
				break
			}
			if !cur.MinDate.IsZero() && m.Timestamp.Before(cur.MinDate) {
				b.Exhausted = true
				break
			}
			b.Next.AnchorID = m.ID
			if !cur.MaxDate.IsZero() && m.Timestamp.After(cur.MaxDate) {
				continue
			}
		}
		b.Messages = append(b.Messages, m)
	}
	return b
}
