package store

import (
	"path/filepath"
	"testing"

	"github.com/matheus3301/chatdump/internal/model"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.state.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (resume_state + attachment_jobs)", result.Version)
	}
	if result.Dirty {
		t.Error("schema should not be dirty")
	}
}

func TestStateRoundTrip(t *testing.T) {
	db := testDB(t)

	if _, ok, err := db.LoadState("chat"); err != nil || ok {
		t.Fatalf("LoadState on empty db = ok %v err %v, want no row", ok, err)
	}

	want := model.ResumeState{
		AnchorID:     500,
		MinID:        10,
		Direction:    model.Backward,
		TotalWritten: 490,
		Fingerprint:  "abc",
		RunID:        "run-1",
	}
	if err := db.SaveState("chat", want); err != nil {
		t.Fatal(err)
	}

	got, ok, err := db.LoadState("chat")
	if err != nil || !ok {
		t.Fatalf("LoadState = ok %v err %v", ok, err)
	}
	if got.AnchorID != 500 || got.MinID != 10 || got.Direction != model.Backward ||
		got.TotalWritten != 490 || got.Fingerprint != "abc" || got.RunID != "run-1" {
		t.Errorf("LoadState = %+v, want %+v", got, want)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}
}

func TestSaveStateOverwrites(t *testing.T) {
	db := testDB(t)

	for _, anchor := range []int64{100, 200, 300} {
		if err := db.SaveState("chat", model.ResumeState{AnchorID: anchor, Direction: model.Forward}); err != nil {
			t.Fatal(err)
		}
	}
	got, _, err := db.LoadState("chat")
	if err != nil {
		t.Fatal(err)
	}
	if got.AnchorID != 300 {
		t.Errorf("anchor = %d, want 300", got.AnchorID)
	}

	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM resume_state`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("got %d rows, want 1", rows)
	}
}

func TestDeleteState(t *testing.T) {
	db := testDB(t)

	if err := db.SaveState("chat", model.ResumeState{AnchorID: 1, Direction: model.Forward}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteState("chat"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := db.LoadState("chat"); ok {
		t.Error("state should be gone after DeleteState")
	}
}

func TestAttachmentLedger(t *testing.T) {
	db := testDB(t)

	if err := db.QueueAttachment(1, "a", "/tmp/1/a.jpg"); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueAttachment(2, "b", "/tmp/2/b.jpg"); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueAttachment(3, "c", "/tmp/3/c.jpg"); err != nil {
		t.Fatal(err)
	}
	// Re-queueing keeps the existing row.
	if err := db.QueueAttachment(1, "a", "/other"); err != nil {
		t.Fatal(err)
	}

	if err := db.MarkAttachmentDone(1, "a", 1, 2048); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkAttachmentSkipped(2, "b"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkAttachmentFailed(3, "c", 6, "budget exhausted"); err != nil {
		t.Fatal(err)
	}

	failed, err := db.AttachmentsByStatus(JobFailed)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 {
		t.Fatalf("got %d failed jobs, want 1", len(failed))
	}
	if failed[0].Attempts != 6 || failed[0].ErrorMessage != "budget exhausted" {
		t.Errorf("failed job = %+v", failed[0])
	}

	done, err := db.AttachmentsByStatus(JobDone)
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 1 || done[0].DestPath != "/tmp/1/a.jpg" || done[0].Bytes != 2048 {
		t.Errorf("done jobs = %+v", done)
	}

	counts, err := db.AttachmentCounts()
	if err != nil {
		t.Fatal(err)
	}
	if counts[JobDone] != 1 || counts[JobSkipped] != 1 || counts[JobFailed] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
