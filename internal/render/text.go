// Package render turns message lists into human-readable artifacts.
package render

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/matheus3301/chatdump/internal/model"
	"github.com/matheus3301/chatdump/internal/thread"
)

const timeLayout = "2006-01-02 15:04:05"

// Thread orders msgs by reply tree: each root is followed by its replies,
// recursively. With desc the newest roots come first and replies precede
// the message they answer.
func Thread(msgs []model.Message, desc bool) []model.Message {
	idx := thread.NewIndex(msgs)

	var roots []model.Message
	for _, m := range msgs {
		if !idx.HasParent(m) {
			roots = append(roots, m)
		}
	}
	sortChrono(roots, desc)

	out := make([]model.Message, 0, len(msgs))
	visited := make(map[int64]bool, len(msgs))
	var walk func(m model.Message)
	walk = func(m model.Message) {
		if visited[m.ID] {
			return
		}
		visited[m.ID] = true
		var children []model.Message
		for _, id := range idx.Children(m.ID) {
			if c, ok := idx.Get(id); ok {
				children = append(children, c)
			}
		}
		sortChrono(children, desc)

		if !desc {
			out = append(out, m)
		}
		for _, c := range children {
			walk(c)
		}
		if desc {
			out = append(out, m)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return out
}

func sortChrono(msgs []model.Message, desc bool) {
	slices.SortStableFunc(msgs, func(a, b model.Message) int {
		c := a.Timestamp.Compare(b.Timestamp)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if desc {
			return -c
		}
		return c
	})
}

// TextOptions controls WriteText.
type TextOptions struct {
	Desc bool
	// Names maps sender ids to display names. Unknown senders are shown as
	// user<id>.
	Names map[int64]string
}

// WriteText writes msgs in thread order as "date sender:\ntext" blocks.
func WriteText(w io.Writer, msgs []model.Message, opts TextOptions) (int, error) {
	bw := bufio.NewWriter(w)
	n := 0
	for _, m := range Thread(msgs, opts.Desc) {
		header := strings.TrimSpace(formatTime(m) + " " + senderName(m.SenderID, opts.Names))
		var err error
		if header != "" {
			_, err = fmt.Fprintf(bw, "%s:\n%s\n\n", header, m.Text)
		} else {
			_, err = fmt.Fprintf(bw, "%s\n\n", m.Text)
		}
		if err != nil {
			return n, err
		}
		n++
	}
	return n, bw.Flush()
}

func formatTime(m model.Message) string {
	if m.Timestamp.IsZero() {
		return ""
	}
	return m.Timestamp.Format(timeLayout)
}

func senderName(id int64, names map[int64]string) string {
	if id == 0 {
		return ""
	}
	if name := names[id]; name != "" {
		return name
	}
	return "user" + strconv.FormatInt(id, 10)
}

// MessageURL links to a message. Numeric chat ids use the private
// t.me/c/<id>/<msg> form with any -100 channel prefix removed; usernames
// use t.me/<name>/<msg>.
func MessageURL(chat string, id int64) string {
	chat = strings.TrimPrefix(strings.TrimSpace(chat), "@")
	if chat == "" || id <= 0 {
		return ""
	}
	if _, err := strconv.ParseInt(chat, 10, 64); err == nil {
		chat = strings.TrimPrefix(chat, "-100")
		chat = strings.TrimPrefix(chat, "-")
		return fmt.Sprintf("https://t.me/c/%s/%d", chat, id)
	}
	return fmt.Sprintf("https://t.me/%s/%d", chat, id)
}
