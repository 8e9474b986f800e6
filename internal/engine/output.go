package engine

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/matheus3301/chatdump/internal/model"
	"github.com/matheus3301/chatdump/internal/paths"
	"github.com/matheus3301/chatdump/internal/render"
	"github.com/matheus3301/chatdump/internal/writer"
)

func writeText(path string, msgs []model.Message, opts render.TextOptions) error {
	err := writer.WriteAtomic(path, func(w io.Writer) error {
		_, err := render.WriteText(w, msgs, opts)
		return err
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeSplits writes one JSON and one text file per period under base and
// returns the JSON paths in key order.
func writeSplits(base paths.Layout, msgs []model.Message, period render.Period, opts render.TextOptions) ([]string, error) {
	if period == "" {
		return nil, nil
	}
	parts := render.Partition(msgs, period)
	var out []string
	for _, key := range render.Keys(parts) {
		l := base.Split(key)
		if err := writer.WriteOutput(l.JSON(), parts[key], opts.Desc); err != nil {
			return out, err
		}
		if err := writeText(l.Text(), parts[key], opts); err != nil {
			return out, err
		}
		out = append(out, l.JSON())
	}
	return out, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
