package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/chatdump/internal/model"
)

// corpus: 2 and 3 reply to 1, 4 replies to 2, 5 is unrelated.
func sampleCorpus() []model.Message {
	return []model.Message{
		{ID: 1, Text: "root"},
		{ID: 2, ReplyToID: 1},
		{ID: 3, ReplyToID: 1},
		{ID: 4, ReplyToID: 2},
		{ID: 5},
	}
}

func ids(msgs []model.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestExtractFromRoot(t *testing.T) {
	got, err := Extract(1, sampleCorpus())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(got))
}

func TestExtractFromLeafIncludesAncestors(t *testing.T) {
	got, err := Extract(3, sampleCorpus())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids(got))

	got, err = Extract(4, sampleCorpus())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4}, ids(got))
}

func TestExtractFromMiddle(t *testing.T) {
	got, err := Extract(2, sampleCorpus())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4}, ids(got))
}

func TestExtractMissingRoot(t *testing.T) {
	_, err := Extract(99, sampleCorpus())
	assert.ErrorIs(t, err, ErrRootNotFound)
}

func TestParentOutsideCorpusIsBoundary(t *testing.T) {
	corpus := []model.Message{
		{ID: 10, ReplyToID: 3},
		{ID: 11, ReplyToID: 10},
	}
	got, err := Extract(11, corpus)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, ids(got))
}

func TestCycleTerminates(t *testing.T) {
	corpus := []model.Message{
		{ID: 1, ReplyToID: 2},
		{ID: 2, ReplyToID: 1},
	}
	got, err := Extract(1, corpus)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids(got))
}

func TestIndexChildrenSorted(t *testing.T) {
	idx := NewIndex([]model.Message{
		{ID: 1},
		{ID: 9, ReplyToID: 1},
		{ID: 4, ReplyToID: 1},
	})
	assert.Equal(t, []int64{4, 9}, idx.Children(1))
	m, ok := idx.Get(9)
	require.True(t, ok)
	assert.True(t, idx.HasParent(m))
}

func TestParseRoot(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"123", 123, false},
		{" 42 ", 42, false},
		{"https://t.me/c/1234567/890", 890, false},
		{"https://t.me/c/1234567/890/", 890, false},
		{"https://t.me/c/1234567", 0, true},
		{"https://t.me/c/123/abc", 0, true},
		{"abc", 0, true},
		{"0", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRoot(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractChain(t *testing.T) {
	corpus := []model.Message{
		{ID: 1},
		{ID: 2, ReplyToID: 1},
		{ID: 3, ReplyToID: 2},
		{ID: 4, ReplyToID: 1},
	}

	got, err := Extract(1, corpus)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(got))

	got, err = Extract(3, corpus)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids(got))
}
