// Package resume decides where a download starts and records how far it got.
package resume

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/matheus3301/chatdump/internal/model"
	"github.com/matheus3301/chatdump/internal/store"
)

// ErrFingerprintMismatch is returned when saved state was produced with a
// different filter configuration or direction.
var ErrFingerprintMismatch = errors.New("resume state was written with different filters; use --overwrite to start over")

// Source tells where a start cursor came from.
type Source string

const (
	SourceSinceID Source = "since_id"
	SourceState   Source = "state"
	SourceOutput  Source = "output"
	SourceFresh   Source = "fresh"
)

// Scanner exposes the messages already on disk for an output.
type Scanner interface {
	// Existing returns the previous final output.
	Existing() []model.Message
	// Flushed returns the records durable in the part file.
	Flushed() []model.Message
}

// Config identifies one run against an output.
type Config struct {
	// Key names the output inside the sidecar.
	Key         string
	Direction   model.Direction
	Fingerprint string
	RunID       string
}

// Store persists resume state for a single output in the sidecar DB.
type Store struct {
	db    *store.DB
	cfg   Config
	minID int64
	log   *zap.Logger
}

// New creates a resume store. The caller owns db.
func New(db *store.DB, cfg Config, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Direction.Valid() {
		cfg.Direction = model.Forward
	}
	return &Store{db: db, cfg: cfg, log: log}
}

// DetermineStartCursor picks the first cursor of a run. Precedence: an
// explicit since-id, then saved state, then the ids already on disk, then
// the beginning of history.
func (s *Store) DetermineStartCursor(out Scanner, sinceID int64) (model.FetchCursor, Source, error) {
	cur := model.FetchCursor{Direction: s.cfg.Direction}

	if sinceID > 0 {
		if s.cfg.Direction == model.Forward {
			cur.AnchorID = sinceID
		} else {
			cur.MinID = sinceID
		}
		s.minID = cur.MinID
		return cur, SourceSinceID, nil
	}

	st, ok, err := s.db.LoadState(s.cfg.Key)
	if err != nil {
		return cur, "", err
	}
	if ok {
		if st.Fingerprint != s.cfg.Fingerprint || st.Direction != s.cfg.Direction {
			return cur, "", fmt.Errorf("%w (saved run %s)", ErrFingerprintMismatch, st.RunID)
		}
		cur.AnchorID = st.AnchorID
		cur.MinID = st.MinID
		// A crash between flush and commit leaves records past the saved anchor.
		lo, hi := idRange(out.Flushed())
		switch {
		case s.cfg.Direction == model.Forward && hi > cur.AnchorID:
			cur.AnchorID = hi
		case s.cfg.Direction == model.Backward && lo > 0 && (cur.AnchorID == 0 || lo < cur.AnchorID):
			cur.AnchorID = lo
		}
		s.minID = cur.MinID
		s.log.Info("resuming from saved state",
			zap.Int64("anchor_id", cur.AnchorID),
			zap.Int64("min_id", cur.MinID),
			zap.Int64("total_written", st.TotalWritten),
			zap.String("previous_run", st.RunID))
		return cur, SourceState, nil
	}

	_, existingMax := idRange(out.Existing())
	partMin, partMax := idRange(out.Flushed())
	if existingMax == 0 && partMax == 0 {
		return cur, SourceFresh, nil
	}

	if s.cfg.Direction == model.Forward {
		cur.AnchorID = max(existingMax, partMax)
	} else {
		cur.AnchorID = partMin
		cur.MinID = existingMax
	}
	s.minID = cur.MinID
	s.log.Info("resuming from existing output",
		zap.Int64("anchor_id", cur.AnchorID), zap.Int64("min_id", cur.MinID))
	return cur, SourceOutput, nil
}

// Commit records anchor as durable. Call it only after the writer flushed
// every record up to anchor.
func (s *Store) Commit(anchor, totalWritten int64) error {
	return s.db.SaveState(s.cfg.Key, model.ResumeState{
		AnchorID:     anchor,
		MinID:        s.minID,
		Direction:    s.cfg.Direction,
		TotalWritten: totalWritten,
		Fingerprint:  s.cfg.Fingerprint,
		RunID:        s.cfg.RunID,
	})
}

// Complete drops the saved state after history was exhausted and the
// final output written.
func (s *Store) Complete() error {
	return s.db.DeleteState(s.cfg.Key)
}

// Reset discards saved state and removes the given output files.
func (s *Store) Reset(files ...string) error {
	if err := s.db.DeleteState(s.cfg.Key); err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reset %s: %w", f, err)
		}
	}
	s.log.Info("discarded previous download", zap.Strings("files", files))
	return nil
}

func idRange(msgs []model.Message) (lo, hi int64) {
	for _, m := range msgs {
		if lo == 0 || m.ID < lo {
			lo = m.ID
		}
		if m.ID > hi {
			hi = m.ID
		}
	}
	return lo, hi
}
