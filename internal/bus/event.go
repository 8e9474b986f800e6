package bus

import "time"

// Event kinds published during a run. Subscribers filter by prefix, so
// "progress." receives every progress event.
const (
	KindStatusChanged = "run.status_changed"
	KindBatchFetched  = "progress.batch_fetched"
	KindBatchWritten  = "progress.batch_written"
	KindCeilingRaised = "progress.ceiling_raised"
	KindRateLimited   = "progress.rate_limited"
	KindMediaDone     = "progress.media_done"
	KindMediaFailed   = "progress.media_failed"
	KindRunFinished   = "run.finished"
)

// Event represents a run event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
