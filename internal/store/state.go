package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/chatdump/internal/model"
)

// LoadState returns the persisted resume state for output. ok is false
// when no row exists.
func (db *DB) LoadState(output string) (st model.ResumeState, ok bool, err error) {
	var direction string
	var updated int64
	err = db.QueryRow(`
		SELECT anchor_id, min_id, direction, total_written, fingerprint, run_id, updated_at
		FROM resume_state WHERE output = ?`, output).
		Scan(&st.AnchorID, &st.MinID, &direction, &st.TotalWritten, &st.Fingerprint, &st.RunID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ResumeState{}, false, nil
	}
	if err != nil {
		return model.ResumeState{}, false, fmt.Errorf("load resume state: %w", err)
	}
	st.Direction = model.Direction(direction)
	st.UpdatedAt = time.UnixMilli(updated)
	return st, true, nil
}

// SaveState upserts the resume state for output.
func (db *DB) SaveState(output string, st model.ResumeState) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO resume_state (output, anchor_id, min_id, direction, total_written, fingerprint, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(output) DO UPDATE SET
			anchor_id = excluded.anchor_id,
			min_id = excluded.min_id,
			direction = excluded.direction,
			total_written = excluded.total_written,
			fingerprint = excluded.fingerprint,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at`,
		output, st.AnchorID, st.MinID, string(st.Direction), st.TotalWritten, st.Fingerprint, st.RunID, now)
	if err != nil {
		return fmt.Errorf("save resume state: %w", err)
	}
	return nil
}

// DeleteState removes the resume row for output.
func (db *DB) DeleteState(output string) error {
	if _, err := db.Exec(`DELETE FROM resume_state WHERE output = ?`, output); err != nil {
		return fmt.Errorf("delete resume state: %w", err)
	}
	return nil
}
