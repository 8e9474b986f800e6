// Package thread reconstructs reply chains (subchats) from a message corpus.
package thread

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/matheus3301/chatdump/internal/model"
)

// ErrRootNotFound is returned when the requested root is not in the corpus.
var ErrRootNotFound = errors.New("thread root not found")

// Index maps message ids to messages and to their direct replies.
type Index struct {
	byID     map[int64]model.Message
	children map[int64][]int64
}

// NewIndex indexes corpus. Child lists are sorted by id.
func NewIndex(corpus []model.Message) *Index {
	idx := &Index{
		byID:     make(map[int64]model.Message, len(corpus)),
		children: make(map[int64][]int64),
	}
	for _, m := range corpus {
		idx.byID[m.ID] = m
	}
	for _, m := range idx.byID {
		if m.ReplyToID != 0 && m.ReplyToID != m.ID {
			idx.children[m.ReplyToID] = append(idx.children[m.ReplyToID], m.ID)
		}
	}
	for _, ids := range idx.children {
		slices.Sort(ids)
	}
	return idx
}

// Get returns the message with the given id.
func (x *Index) Get(id int64) (model.Message, bool) {
	m, ok := x.byID[id]
	return m, ok
}

// Children returns the ids of direct replies to id, ascending.
func (x *Index) Children(id int64) []int64 {
	return x.children[id]
}

// HasParent reports whether m replies to a message present in the index.
// Replies to messages outside the corpus are treated as roots.
func (x *Index) HasParent(m model.Message) bool {
	if m.ReplyToID == 0 || m.ReplyToID == m.ID {
		return false
	}
	_, ok := x.byID[m.ReplyToID]
	return ok
}

// Members returns the id set of the thread containing root: every ancestor
// reachable through ReplyToID inside the corpus plus every descendant.
func (x *Index) Members(root int64) (map[int64]struct{}, error) {
	start, ok := x.byID[root]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrRootNotFound, root)
	}

	members := map[int64]struct{}{root: {}}

	// Walk up. The visited check guards against reply cycles in bad data.
	cur := start
	for x.HasParent(cur) {
		if _, seen := members[cur.ReplyToID]; seen {
			break
		}
		members[cur.ReplyToID] = struct{}{}
		cur = x.byID[cur.ReplyToID]
	}

	queue := []int64{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range x.children[id] {
			if _, seen := members[child]; seen {
				continue
			}
			members[child] = struct{}{}
			queue = append(queue, child)
		}
	}
	return members, nil
}

// Extract returns the messages of the thread containing root, sorted by id.
func Extract(root int64, corpus []model.Message) ([]model.Message, error) {
	idx := NewIndex(corpus)
	members, err := idx.Members(root)
	if err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(members))
	for id := range members {
		out = append(out, idx.byID[id])
	}
	model.SortByID(out, false)
	return out, nil
}

// ParseRoot accepts a bare message id or a message link of the form
// https://t.me/c/<chat>/<id>.
func ParseRoot(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "https://t.me/c/"); ok {
		parts := strings.Split(strings.Trim(rest, "/"), "/")
		if len(parts) < 2 {
			return 0, fmt.Errorf("invalid message link %q", s)
		}
		id, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("invalid message id in link %q", s)
		}
		return id, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid message id %q", s)
	}
	return id, nil
}
