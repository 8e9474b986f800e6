package resume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/chatdump/internal/model"
	"github.com/matheus3301/chatdump/internal/store"
)

type fakeScan struct {
	existing []model.Message
	part     []model.Message
}

func (f fakeScan) Existing() []model.Message { return f.existing }
func (f fakeScan) Flushed() []model.Message  { return f.part }

func span(lo, hi int64) []model.Message {
	var out []model.Message
	for id := lo; id <= hi; id++ {
		out = append(out, model.Message{ID: id})
	}
	return out
}

func testStore(t *testing.T, cfg Config) (*Store, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "chat.state.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	if cfg.Key == "" {
		cfg.Key = "chat"
	}
	return New(db, cfg, nil), db
}

func TestFreshStart(t *testing.T) {
	s, _ := testStore(t, Config{Direction: model.Forward})
	cur, src, err := s.DetermineStartCursor(fakeScan{}, 0)
	require.NoError(t, err)
	assert.Equal(t, SourceFresh, src)
	assert.Zero(t, cur.AnchorID)
}

func TestSinceIDWins(t *testing.T) {
	s, db := testStore(t, Config{Direction: model.Forward, Fingerprint: "f"})
	require.NoError(t, db.SaveState("chat", model.ResumeState{AnchorID: 900, Direction: model.Forward, Fingerprint: "f"}))

	cur, src, err := s.DetermineStartCursor(fakeScan{existing: span(1, 1000)}, 42)
	require.NoError(t, err)
	assert.Equal(t, SourceSinceID, src)
	assert.Equal(t, int64(42), cur.AnchorID)

	back, _ := testStore(t, Config{Direction: model.Backward})
	cur, _, err = back.DetermineStartCursor(fakeScan{}, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cur.MinID)
	assert.Zero(t, cur.AnchorID)
}

func TestResumeFromState(t *testing.T) {
	s, _ := testStore(t, Config{Direction: model.Forward, Fingerprint: "f", RunID: "r1"})
	require.NoError(t, s.Commit(500, 500))

	cur, src, err := s.DetermineStartCursor(fakeScan{part: span(1, 500)}, 0)
	require.NoError(t, err)
	assert.Equal(t, SourceState, src)
	assert.Equal(t, int64(500), cur.AnchorID, "next request asks for ids after 500")
}

func TestResumeStateBehindPart(t *testing.T) {
	s, _ := testStore(t, Config{Direction: model.Forward, Fingerprint: "f"})
	require.NoError(t, s.Commit(400, 400))

	cur, _, err := s.DetermineStartCursor(fakeScan{part: span(1, 450)}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(450), cur.AnchorID)
}

func TestFingerprintMismatch(t *testing.T) {
	s, db := testStore(t, Config{Direction: model.Forward, Fingerprint: "new"})
	require.NoError(t, db.SaveState("chat", model.ResumeState{AnchorID: 10, Direction: model.Forward, Fingerprint: "old"}))

	_, _, err := s.DetermineStartCursor(fakeScan{}, 0)
	assert.ErrorIs(t, err, ErrFingerprintMismatch)
}

func TestResumeFromOutputScan(t *testing.T) {
	fwd, _ := testStore(t, Config{Direction: model.Forward})
	cur, src, err := fwd.DetermineStartCursor(fakeScan{existing: span(1, 300), part: span(301, 320)}, 0)
	require.NoError(t, err)
	assert.Equal(t, SourceOutput, src)
	assert.Equal(t, int64(320), cur.AnchorID)

	back, _ := testStore(t, Config{Direction: model.Backward})
	cur, _, err = back.DetermineStartCursor(fakeScan{existing: span(1, 300), part: span(900, 1000)}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(900), cur.AnchorID, "continue below the oldest record of the interrupted walk")
	assert.Equal(t, int64(300), cur.MinID, "stop at the previous output")
}

func TestBackwardCommitKeepsFloor(t *testing.T) {
	s, db := testStore(t, Config{Direction: model.Backward, Fingerprint: "f"})
	_, _, err := s.DetermineStartCursor(fakeScan{existing: span(1, 50)}, 0)
	require.NoError(t, err)
	require.NoError(t, s.Commit(700, 20))

	st, ok, err := db.LoadState("chat")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(50), st.MinID)
	assert.Equal(t, model.Backward, st.Direction)
}

func TestCompleteAndReset(t *testing.T) {
	s, db := testStore(t, Config{Direction: model.Forward})
	require.NoError(t, s.Commit(10, 10))
	require.NoError(t, s.Complete())
	_, ok, err := db.LoadState("chat")
	require.NoError(t, err)
	assert.False(t, ok)

	dir := t.TempDir()
	part := filepath.Join(dir, "chat.part.jsonl")
	require.NoError(t, os.WriteFile(part, []byte("{}\n"), 0644))
	require.NoError(t, s.Commit(10, 10))
	require.NoError(t, s.Reset(part, filepath.Join(dir, "missing.json")))

	_, err = os.Stat(part)
	assert.True(t, os.IsNotExist(err))
	_, ok, _ = db.LoadState("chat")
	assert.False(t, ok)
}
