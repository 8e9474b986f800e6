// Package remote defines the boundary to the chat service: history paging,
// attachment retrieval and the error taxonomy the retry layer understands.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/matheus3301/chatdump/internal/model"
	"github.com/matheus3301/chatdump/internal/retry"
)

// HistoryRequest asks for one page of chat history.
type HistoryRequest struct {
	Chat string
	// AfterID is an exclusive lower bound on message ids (0 = none).
	AfterID int64
	// BeforeID is an exclusive upper bound on message ids (0 = none).
	BeforeID int64
	Limit    int
	// Ascending returns the oldest messages above AfterID first. Otherwise
	// the newest messages below BeforeID come first.
	Ascending bool
}

// HistoryClient returns pages of chat history.
type HistoryClient interface {
	History(ctx context.Context, req HistoryRequest) ([]model.Message, error)
}

// AttachmentSource streams attachment content.
type AttachmentSource interface {
	OpenAttachment(ctx context.Context, att model.Attachment) (io.ReadCloser, error)
}

// Client is the full remote surface used by a download run.
type Client interface {
	HistoryClient
	AttachmentSource
}

// ErrPermanent marks failures that will not go away by retrying
// (bad request, not found, forbidden).
var ErrPermanent = errors.New("permanent remote error")

// RateLimitError is returned when the service asks the caller to wait.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.Wait)
}

// TransientError wraps failures that are expected to succeed on retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient remote error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Permanent wraps err so that errors.Is(err, ErrPermanent) holds.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Classify maps a remote error to a retry action. Unknown errors are
// treated as transient.
func Classify(err error) retry.Action {
	var rl *RateLimitError
	switch {
	case errors.As(err, &rl):
		return retry.Action{Kind: retry.Wait, Delay: rl.Wait}
	case errors.Is(err, ErrPermanent),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return retry.Action{Kind: retry.Stop}
	default:
		return retry.Action{Kind: retry.Backoff}
	}
}
