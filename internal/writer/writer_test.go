package writer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/chatdump/internal/model"
)

func msgs(ids ...int64) []model.Message {
	out := make([]model.Message, len(ids))
	for i, id := range ids {
		out[i] = model.Message{ID: id, Text: "m", Timestamp: time.Unix(id, 0).UTC()}
	}
	return out
}

func testPaths(t *testing.T) (part, final string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "chat.part.jsonl"), filepath.Join(dir, "chat.json")
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Count(string(data), "\n")
}

func TestAppendFlushesOnCount(t *testing.T) {
	part, final := testPaths(t)
	w, err := Open(part, final, Options{FlushEvery: 3, FlushInterval: time.Hour}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	added, flushed, err := w.Append(msgs(1, 2))
	if err != nil {
		t.Fatal(err)
	}
	if added != 2 || flushed {
		t.Errorf("Append = (%d, %v), want (2, false)", added, flushed)
	}
	if w.Pending() != 2 {
		t.Errorf("pending = %d, want 2", w.Pending())
	}

	_, flushed, err = w.Append(msgs(3))
	if err != nil {
		t.Fatal(err)
	}
	if !flushed {
		t.Error("third record should trigger a flush")
	}
	if n := countLines(t, part); n != 3 {
		t.Errorf("part has %d lines, want 3", n)
	}
}

func TestAppendFlushesOnInterval(t *testing.T) {
	part, final := testPaths(t)
	w, err := Open(part, final, Options{FlushEvery: 1000, FlushInterval: time.Second}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	now := time.Now()
	w.now = func() time.Time { return now }
	w.lastFlush = now

	if _, flushed, _ := w.Append(msgs(1)); flushed {
		t.Fatal("should not flush before the interval")
	}
	now = now.Add(2 * time.Second)
	if _, flushed, _ := w.Append(msgs(2)); !flushed {
		t.Error("should flush once the interval elapsed")
	}
}

func TestAppendSkipsDuplicates(t *testing.T) {
	part, final := testPaths(t)
	w, err := Open(part, final, Options{FlushEvery: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := w.Append(msgs(1, 2, 2, 3)); err != nil {
		t.Fatal(err)
	}
	added, _, err := w.Append(msgs(3, 4))
	if err != nil {
		t.Fatal(err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if n := countLines(t, part); n != 4 {
		t.Errorf("part has %d lines, want 4", n)
	}
}

func TestReopenSeedsFromPartAndOutput(t *testing.T) {
	part, final := testPaths(t)
	if err := WriteOutput(final, msgs(1, 2), false); err != nil {
		t.Fatal(err)
	}

	w, err := Open(part, final, Options{FlushEvery: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := w.Append(msgs(3, 4)); err != nil {
		t.Fatal(err)
	}
	_ = w.Close()

	w2, err := Open(part, final, Options{FlushEvery: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w2.Close()

	if len(w2.Existing()) != 2 || len(w2.Flushed()) != 2 {
		t.Fatalf("existing=%d flushed=%d, want 2 and 2", len(w2.Existing()), len(w2.Flushed()))
	}
	for _, id := range []int64{1, 2, 3, 4} {
		if !w2.Seen(id) {
			t.Errorf("id %d should be seen", id)
		}
	}
	added, _, _ := w2.Append(msgs(2, 4, 5))
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
}

func TestOpenTruncatesTornLine(t *testing.T) {
	part, final := testPaths(t)

	good, _ := json.Marshal(Record{ID: 1, Message: msgs(1)[0]})
	content := string(good) + "\n" + `{"i":2,"m":{"id":2,"te`
	if err := os.WriteFile(part, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := Open(part, final, Options{FlushEvery: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(w.Flushed()) != 1 {
		t.Errorf("loaded %d records, want 1", len(w.Flushed()))
	}
	if _, _, err := w.Append(msgs(2)); err != nil {
		t.Fatal(err)
	}
	_ = w.Close()

	// The torn bytes are gone and the new record sits on its own line.
	data, _ := os.ReadFile(part)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("part lines = %q", lines)
	}
	var rec Record
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil || rec.ID != 2 {
		t.Errorf("second line = %q (%v)", lines[1], err)
	}
}

func TestFinalizeSortsAndRemovesPart(t *testing.T) {
	part, final := testPaths(t)
	w, err := Open(part, final, Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := w.Append(msgs(5, 3, 9)); err != nil {
		t.Fatal(err)
	}

	if err := w.Finalize(w.Merged(), true); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(part); !os.IsNotExist(err) {
		t.Errorf("part file should be removed, stat err = %v", err)
	}

	got, err := ReadOutput(final)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{9, 5, 3}
	for i, m := range got {
		if m.ID != want[i] {
			t.Errorf("output[%d] = %d, want %d", i, m.ID, want[i])
		}
	}
}

func TestWriteOutputIdempotent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")

	if err := WriteOutput(a, msgs(3, 1, 2), false); err != nil {
		t.Fatal(err)
	}
	if err := WriteOutput(b, msgs(2, 3, 1), false); err != nil {
		t.Fatal(err)
	}
	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	if string(da) != string(db) {
		t.Error("same messages in different order should produce identical files")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("temp files left behind: %v", entries)
	}
}
