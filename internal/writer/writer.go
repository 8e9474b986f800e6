// Package writer persists fetched messages incrementally and produces the
// final sorted output.
package writer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatdump/internal/model"
)

// Record is one line of the part file.
type Record struct {
	ID      int64         `json:"i"`
	Message model.Message `json:"m"`
}

// Options controls when buffered records are flushed to disk. A flush
// happens when any threshold is reached.
type Options struct {
	FlushEvery    int
	FlushBytes    int
	FlushInterval time.Duration
}

// DefaultOptions returns the thresholds used when config leaves them unset.
func DefaultOptions() Options {
	return Options{
		FlushEvery:    100,
		FlushBytes:    1 << 20,
		FlushInterval: 5 * time.Second,
	}
}

// Writer appends records to a JSONL part file and remembers every id it
// has seen so a message is never written twice.
type Writer struct {
	partPath  string
	finalPath string
	opts      Options
	log       *zap.Logger

	f         *os.File
	buf       bytes.Buffer
	pending   int
	lastFlush time.Time
	now       func() time.Time

	seen     map[int64]struct{}
	existing []model.Message
	part     []model.Message
	flushed  int64
}

// Open prepares a writer for partPath, loading previously flushed records
// and the previous final output at finalPath (if any). A torn trailing line
// left by a crash is cut off.
func Open(partPath, finalPath string, opts Options, log *zap.Logger) (*Writer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultOptions()
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = def.FlushEvery
	}
	if opts.FlushBytes <= 0 {
		opts.FlushBytes = def.FlushBytes
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = def.FlushInterval
	}

	w := &Writer{
		partPath:  partPath,
		finalPath: finalPath,
		opts:      opts,
		log:       log,
		now:       time.Now,
		seen:      make(map[int64]struct{}),
	}

	existing, err := ReadOutput(finalPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for _, m := range existing {
		if _, dup := w.seen[m.ID]; dup {
			continue
		}
		w.seen[m.ID] = struct{}{}
		w.existing = append(w.existing, m)
	}

	if err := w.loadPart(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open part file: %w", err)
	}
	w.f = f
	w.lastFlush = w.now()
	return w, nil
}

func (w *Writer) loadPart() error {
	data, err := os.ReadFile(w.partPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read part file: %w", err)
	}

	good := 0
	for off := 0; off < len(data); {
		nl := bytes.IndexByte(data[off:], '\n')
		if nl < 0 {
			break
		}
		line := data[off : off+nl]
		off += nl + 1

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			if off == len(data) {
				// Last complete line is garbage: treat like a torn write.
				break
			}
			w.log.Warn("skipping corrupt part record", zap.String("path", w.partPath), zap.Error(err))
			good = off
			continue
		}
		good = off
		if _, dup := w.seen[rec.ID]; dup {
			continue
		}
		w.seen[rec.ID] = struct{}{}
		w.part = append(w.part, rec.Message)
		w.flushed++
	}

	if good < len(data) {
		w.log.Warn("truncating torn part record",
			zap.String("path", w.partPath), zap.Int("bytes", len(data)-good))
		if err := os.Truncate(w.partPath, int64(good)); err != nil {
			return fmt.Errorf("truncate part file: %w", err)
		}
	}
	return nil
}

// Existing returns the messages of the previous final output.
func (w *Writer) Existing() []model.Message {
	return w.existing
}

// Flushed returns the records durable in the part file, including those
// loaded on open.
func (w *Writer) Flushed() []model.Message {
	return w.part
}

// Seen reports whether id was already written or loaded.
func (w *Writer) Seen(id int64) bool {
	_, ok := w.seen[id]
	return ok
}

// Pending returns how many records are buffered but not yet durable.
func (w *Writer) Pending() int {
	return w.pending
}

// Append buffers msgs, skipping ids already seen, and flushes when a
// threshold is reached. flushed is true when this call made everything
// appended so far durable.
func (w *Writer) Append(msgs []model.Message) (added int, flushed bool, err error) {
	for _, m := range msgs {
		if _, dup := w.seen[m.ID]; dup {
			continue
		}
		line, err := json.Marshal(Record{ID: m.ID, Message: m})
		if err != nil {
			return added, false, fmt.Errorf("encode message %d: %w", m.ID, err)
		}
		w.buf.Write(line)
		w.buf.WriteByte('\n')
		w.seen[m.ID] = struct{}{}
		w.part = append(w.part, m)
		w.pending++
		added++
	}

	if w.pending >= w.opts.FlushEvery ||
		w.buf.Len() >= w.opts.FlushBytes ||
		(w.pending > 0 && w.now().Sub(w.lastFlush) >= w.opts.FlushInterval) {
		if err := w.Flush(); err != nil {
			return added, false, err
		}
		return added, true, nil
	}
	return added, w.pending == 0, nil
}

// Flush writes buffered records as whole lines and fsyncs the part file.
func (w *Writer) Flush() error {
	if w.pending == 0 {
		return nil
	}
	if w.f == nil {
		return errors.New("writer closed")
	}
	if _, err := w.f.Write(w.buf.Bytes()); err != nil {
		return fmt.Errorf("append part file: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync part file: %w", err)
	}
	w.log.Debug("flushed part records", zap.Int("count", w.pending), zap.Int("bytes", w.buf.Len()))
	w.flushed += int64(w.pending)
	w.pending = 0
	w.buf.Reset()
	w.lastFlush = w.now()
	return nil
}

// Merged returns the previous output plus every record of this run,
// deduplicated by id and sorted ascending.
func (w *Writer) Merged() []model.Message {
	out := make([]model.Message, 0, len(w.existing)+len(w.part))
	out = append(out, w.existing...)
	out = append(out, w.part...)
	model.SortByID(out, false)
	return out
}

// Finalize flushes, writes msgs to the final output sorted by id (newest
// first when desc), and removes the part file.
func (w *Writer) Finalize(msgs []model.Message, desc bool) error {
	if err := w.Flush(); err != nil {
		return err
	}
	if err := WriteOutput(w.finalPath, msgs, desc); err != nil {
		return err
	}
	return w.RemovePart()
}

// RemovePart closes and deletes the part file.
func (w *Writer) RemovePart() error {
	if err := w.Close(); err != nil {
		return err
	}
	if err := os.Remove(w.partPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove part file: %w", err)
	}
	return nil
}

// Close flushes and closes the part file. Safe to call twice.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	flushErr := w.Flush()
	closeErr := w.f.Close()
	w.f = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// WriteOutput writes msgs as an indented JSON array, atomically.
func WriteOutput(path string, msgs []model.Message, desc bool) error {
	sorted := make([]model.Message, len(msgs))
	copy(sorted, msgs)
	model.SortByID(sorted, desc)

	return WriteAtomic(path, func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(sorted)
	})
}

// ReadOutput loads a final output file written by WriteOutput.
func ReadOutput(path string) ([]model.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var msgs []model.Message
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&msgs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return msgs, nil
}
