package model

import "time"

// Direction is the pagination order over the chat history.
type Direction string

const (
	// Forward walks from older to newer messages (ids ascending).
	Forward Direction = "forward"
	// Backward walks from newer to older messages (ids descending).
	Backward Direction = "backward"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Forward || d == Backward
}

// FetchCursor is the pagination boundary. AnchorID is the last message id
// that was processed; MinID is an exclusive lower bound used by backward
// walks for incremental updates. Zero values mean "unbounded".
type FetchCursor struct {
	Direction Direction
	AnchorID  int64
	MinID     int64
	MinDate   time.Time
	MaxDate   time.Time
}

// ResumeState is the persisted resume point for one output artifact.
type ResumeState struct {
	AnchorID     int64
	MinID        int64
	Direction    Direction
	TotalWritten int64
	Fingerprint  string
	RunID        string
	UpdatedAt    time.Time
}
