package store

import (
	"fmt"
	"time"
)

// QueueAttachment records a job as pending unless it is already known.
func (db *DB) QueueAttachment(messageID int64, attachmentID, dest string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO attachment_jobs (message_id, attachment_id, dest_path, status, updated_at)
		VALUES (?, ?, ?, 'pending', ?)
		ON CONFLICT(message_id, attachment_id) DO NOTHING`,
		messageID, attachmentID, dest, now)
	return err
}

// MarkAttachmentDone records a completed download of n bytes.
func (db *DB) MarkAttachmentDone(messageID int64, attachmentID string, attempts int, n int64) error {
	return db.finishAttachment(messageID, attachmentID, JobDone, attempts, "", n)
}

// MarkAttachmentSkipped records a job whose destination already existed.
func (db *DB) MarkAttachmentSkipped(messageID int64, attachmentID string) error {
	return db.finishAttachment(messageID, attachmentID, JobSkipped, 0, "", 0)
}

// MarkAttachmentFailed records a permanent failure.
func (db *DB) MarkAttachmentFailed(messageID int64, attachmentID string, attempts int, errMsg string) error {
	return db.finishAttachment(messageID, attachmentID, JobFailed, attempts, errMsg, 0)
}

func (db *DB) finishAttachment(messageID int64, attachmentID, status string, attempts int, errMsg string, n int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE attachment_jobs
		SET status = ?, attempts = attempts + ?, error_message = ?, bytes = ?, updated_at = ?
		WHERE message_id = ? AND attachment_id = ?`,
		status, attempts, errMsg, n, now, messageID, attachmentID)
	if err != nil {
		return fmt.Errorf("mark attachment %d/%s %s: %w", messageID, attachmentID, status, err)
	}
	return nil
}

// AttachmentsByStatus lists jobs with the given status ordered by message id.
func (db *DB) AttachmentsByStatus(status string) ([]AttachmentJob, error) {
	rows, err := db.Query(`
		SELECT message_id, attachment_id, dest_path, status, attempts, error_message, bytes, updated_at
		FROM attachment_jobs WHERE status = ? ORDER BY message_id ASC, attachment_id ASC`, status)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var jobs []AttachmentJob
	for rows.Next() {
		var j AttachmentJob
		if err := rows.Scan(&j.MessageID, &j.AttachmentID, &j.DestPath, &j.Status, &j.Attempts, &j.ErrorMessage, &j.Bytes, &j.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// AttachmentCounts returns the number of jobs per status.
func (db *DB) AttachmentCounts() (map[string]int, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM attachment_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
