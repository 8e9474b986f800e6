// Package archive loads previously saved chats: chatdump's own JSON
// output, its JSONL part files, and Telegram Desktop exports.
package archive

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/chatdump/internal/model"
	"github.com/matheus3301/chatdump/internal/writer"
)

// Format identifies the layout of a loaded file.
type Format string

const (
	FormatOutput   Format = "output"
	FormatPart     Format = "part"
	FormatTelegram Format = "telegram_export"
)

// ErrUnknownFormat is returned when a file is neither a JSON array nor a
// Telegram export object.
var ErrUnknownFormat = errors.New("unrecognized archive format")

// Archive is a loaded message corpus.
type Archive struct {
	Format   Format
	ChatID   string
	ChatName string
	Messages []model.Message
	// Names maps sender ids to display names when the source has them.
	Names map[int64]string
}

// Load reads path and detects its format from the content.
func Load(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".jsonl") {
		return loadPart(data)
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnknownFormat)
	}
	switch trimmed[0] {
	case '[':
		var msgs []model.Message
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return &Archive{Format: FormatOutput, Messages: msgs}, nil
	case '{':
		return loadTelegram(trimmed)
	}
	return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnknownFormat)
}

func loadPart(data []byte) (*Archive, error) {
	a := &Archive{Format: FormatPart}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec writer.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			// Torn or corrupt lines are skipped.
			continue
		}
		a.Messages = append(a.Messages, rec.Message)
	}
	return a, sc.Err()
}

type tgExport struct {
	// Single-chat export.
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	ID       json.Number `json:"id"`
	Messages []tgMessage `json:"messages"`

	// Full account export.
	Chats     *tgChatList `json:"chats"`
	LeftChats *tgChatList `json:"left_chats"`
}

type tgChatList struct {
	List []tgChat `json:"list"`
}

type tgChat struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	ID       json.Number `json:"id"`
	Messages []tgMessage `json:"messages"`
}

type tgMessage struct {
	ID               int64           `json:"id"`
	Type             string          `json:"type"`
	Date             string          `json:"date"`
	DateUnix         string          `json:"date_unixtime"`
	From             string          `json:"from"`
	FromID           string          `json:"from_id"`
	Text             json.RawMessage `json:"text"`
	ReplyToMessageID int64           `json:"reply_to_message_id"`
	Photo            string          `json:"photo"`
	File             string          `json:"file"`
	MimeType         string          `json:"mime_type"`
	FileSize         int64           `json:"file_size"`
}

func loadTelegram(data []byte) (*Archive, error) {
	var exp tgExport
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&exp); err != nil {
		return nil, fmt.Errorf("decode telegram export: %w", err)
	}

	a := &Archive{Format: FormatTelegram, Names: make(map[int64]string)}
	switch {
	case exp.Messages != nil:
		a.ChatID = exp.ID.String()
		a.ChatName = exp.Name
		a.addMessages(exp.Messages)
	case exp.Chats != nil || exp.LeftChats != nil:
		var chats []tgChat
		if exp.Chats != nil {
			chats = append(chats, exp.Chats.List...)
		}
		if exp.LeftChats != nil {
			chats = append(chats, exp.LeftChats.List...)
		}
		for _, c := range chats {
			if c.ID.String() == "" {
				continue
			}
			a.addMessages(c.Messages)
		}
		if len(chats) == 1 {
			a.ChatID = chats[0].ID.String()
			a.ChatName = chats[0].Name
		}
	default:
		return nil, ErrUnknownFormat
	}
	return a, nil
}

func (a *Archive) addMessages(msgs []tgMessage) {
	for _, tm := range msgs {
		if tm.Type != "" && tm.Type != "message" {
			continue
		}
		m := model.Message{
			ID:        tm.ID,
			Timestamp: parseDate(tm.Date, tm.DateUnix),
			Text:      flattenText(tm.Text),
			ReplyToID: tm.ReplyToMessageID,
		}
		if id, ok := ParseFromID(tm.FromID); ok {
			m.SenderID = id
			if tm.From != "" {
				a.Names[id] = tm.From
			}
		}
		if ref := firstNonEmpty(tm.Photo, tm.File); ref != "" {
			kind := tm.MimeType
			if kind == "" && tm.Photo != "" {
				kind = "image/jpeg"
			}
			m.Attachments = []model.Attachment{{
				ID:       strconv.FormatInt(tm.ID, 10),
				Kind:     kind,
				Ref:      ref,
				Filename: filepath.Base(ref),
				Size:     tm.FileSize,
			}}
		}
		a.Messages = append(a.Messages, m)
	}
}

// ParseFromID extracts the numeric id from export sender ids such as
// "user123" or "channel456".
func ParseFromID(s string) (int64, bool) {
	for _, prefix := range []string{"user", "channel", "chat"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			s = rest
			break
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// flattenText handles both plain string text and the rich array form,
// where entries are strings or {"type":..., "text":...} objects.
func flattenText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return string(raw)
	}
	var b strings.Builder
	for _, p := range parts {
		var str string
		if err := json.Unmarshal(p, &str); err == nil {
			b.WriteString(str)
			continue
		}
		var ent struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(p, &ent); err == nil {
			b.WriteString(ent.Text)
		}
	}
	return b.String()
}

func parseDate(date, unix string) time.Time {
	if unix != "" {
		if sec, err := strconv.ParseInt(unix, 10, 64); err == nil {
			return time.Unix(sec, 0).UTC()
		}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, date, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
