package archive

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/chatdump/internal/model"
	"github.com/matheus3301/chatdump/internal/writer"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const singleChatExport = `{
  "name": "Team",
  "type": "private_supergroup",
  "id": 1234567,
  "messages": [
    {"id": 1, "type": "message", "date": "2024-01-15T10:30:00", "date_unixtime": "1705314600",
     "from": "Alice", "from_id": "user42", "text": "hello world"},
    {"id": 2, "type": "service", "date": "2024-01-15T10:31:00", "actor": "Bob", "action": "pin_message"},
    {"id": 3, "type": "message", "date": "2024-01-15T10:32:00", "from": "Bob", "from_id": "user43",
     "reply_to_message_id": 1,
     "text": ["see ", {"type": "link", "text": "https://example.com"}, " ok"]},
    {"id": 4, "type": "message", "date": "2024-01-15T10:33:00", "from": "Bob", "from_id": "user43",
     "photo": "photos/photo_4@15-01-2024.jpg", "text": ""}
  ]
}`

func TestLoadTelegramSingleChat(t *testing.T) {
	a, err := Load(writeFile(t, "result.json", singleChatExport))
	require.NoError(t, err)

	assert.Equal(t, FormatTelegram, a.Format)
	assert.Equal(t, "1234567", a.ChatID)
	assert.Equal(t, "Team", a.ChatName)
	require.Len(t, a.Messages, 3, "service messages are dropped")

	first := a.Messages[0]
	assert.Equal(t, int64(42), first.SenderID)
	assert.Equal(t, "hello world", first.Text)
	assert.Equal(t, time.Unix(1705314600, 0).UTC(), first.Timestamp)

	reply := a.Messages[1]
	assert.Equal(t, int64(1), reply.ReplyToID)
	assert.Equal(t, "see https://example.com ok", reply.Text)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 32, 0, 0, time.UTC), reply.Timestamp)

	photo := a.Messages[2]
	require.Len(t, photo.Attachments, 1)
	assert.Equal(t, "image/jpeg", photo.Attachments[0].Kind)
	assert.Equal(t, "photo_4@15-01-2024.jpg", photo.Attachments[0].Filename)

	assert.Equal(t, "Alice", a.Names[42])
}

func TestLoadTelegramFullExport(t *testing.T) {
	content := `{"chats": {"list": [
	  {"name": "A", "type": "personal_chat", "id": 1, "messages": [{"id": 10, "type": "message", "from_id": "user5", "text": "a"}]}
	]}, "left_chats": {"list": [
	  {"name": "B", "type": "public_supergroup", "id": 2, "messages": [{"id": 20, "type": "message", "from_id": "channel7", "text": "b"}]}
	]}}`
	a, err := Load(writeFile(t, "result.json", content))
	require.NoError(t, err)
	require.Len(t, a.Messages, 2)
	assert.Equal(t, int64(7), a.Messages[1].SenderID)
	assert.Empty(t, a.ChatID)
}

func TestLoadOwnOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.json")
	require.NoError(t, writer.WriteOutput(path, []model.Message{{ID: 2}, {ID: 1}}, false))

	a, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FormatOutput, a.Format)
	require.Len(t, a.Messages, 2)
	assert.Equal(t, int64(1), a.Messages[0].ID)
}

func TestLoadPartFile(t *testing.T) {
	content := `{"i":1,"m":{"id":1,"date":"2024-01-01T00:00:00Z","text":"a"}}
{"i":2,"m":{"id":2,"date":"2024-01-01T00:00:00Z","text":"b"}}
{"i":3,"m":{"id":3,"da`
	a, err := Load(writeFile(t, "chat.part.jsonl", content))
	require.NoError(t, err)
	assert.Equal(t, FormatPart, a.Format)
	assert.Len(t, a.Messages, 2)
}

func TestLoadUnknown(t *testing.T) {
	_, err := Load(writeFile(t, "x.json", `"just a string"`))
	assert.True(t, errors.Is(err, ErrUnknownFormat))

	_, err = Load(writeFile(t, "y.json", `{"foo": 1}`))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestParseFromID(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"user123", 123, true},
		{"channel9", 9, true},
		{"77", 77, true},
		{"", 0, false},
		{"userX", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseFromID(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
