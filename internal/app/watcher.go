package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatdump/internal/bus"
	"github.com/matheus3301/chatdump/internal/engine"
	"github.com/matheus3301/chatdump/internal/progress"
	"github.com/matheus3301/chatdump/internal/status"
)

// Watcher logs run and progress events published on the bus.
type Watcher struct {
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher. Call Start to begin logging.
func NewWatcher(b *bus.Bus, logger *zap.Logger) *Watcher {
	return &Watcher{bus: b, logger: logger}
}

// Start subscribes to run.* and progress.* events.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	runCh, unsubRun := w.bus.Subscribe("run.", 64)
	progCh, unsubProg := w.bus.Subscribe("progress.", 256)

	go func() {
		defer close(w.done)
		defer unsubRun()
		defer unsubProg()
		for {
			select {
			case evt := <-runCh:
				w.handle(evt)
			case evt := <-progCh:
				w.handle(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the watcher and waits for it to exit.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

func (w *Watcher) handle(evt bus.Event) {
	switch evt.Kind {
	case bus.KindStatusChanged:
		if c, ok := evt.Payload.(status.StatusChange); ok {
			w.logger.Debug("status changed", zap.String("from", string(c.From)), zap.String("to", string(c.To)))
		}
	case bus.KindBatchWritten:
		if s, ok := evt.Payload.(progress.Snapshot); ok {
			w.logger.Info("progress",
				zap.Int64("written", s.Written),
				zap.Int64("of", s.Ceiling),
				zap.Int64("fetched", s.Fetched))
		}
	case bus.KindCeilingRaised:
		if c, ok := evt.Payload.(int64); ok {
			w.logger.Debug("progress ceiling raised", zap.Int64("ceiling", c))
		}
	case bus.KindRateLimited:
		if d, ok := evt.Payload.(time.Duration); ok {
			w.logger.Info("waiting for rate limit", zap.Duration("wait", d))
		}
	case bus.KindMediaFailed:
		if s, ok := evt.Payload.(progress.Snapshot); ok {
			w.logger.Warn("attachment failed", zap.Int64("failed", s.MediaFailed))
		}
	case bus.KindRunFinished:
		if r, ok := evt.Payload.(*engine.Result); ok {
			w.logger.Info("chat finished",
				zap.String("chat", r.ChatID),
				zap.String("status", string(r.Status)),
				zap.Int("messages", r.Messages),
				zap.Int("new_messages", r.NewMessages))
		}
	}
}
