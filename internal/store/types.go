package store

// Attachment job statuses.
const (
	JobPending = "pending"
	JobDone    = "done"
	JobSkipped = "skipped"
	JobFailed  = "failed"
)

// AttachmentJob is one row of the attachment ledger.
type AttachmentJob struct {
	MessageID    int64
	AttachmentID string
	DestPath     string
	Status       string
	Attempts     int
	ErrorMessage string
	Bytes        int64
	UpdatedAt    int64
}
