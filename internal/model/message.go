package model

import (
	"cmp"
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Message is a single chat message as fetched from the remote history.
// IDs are unique within a chat and increase in canonical order.
type Message struct {
	ID          int64           `json:"id"`
	Timestamp   time.Time       `json:"date"`
	SenderID    int64           `json:"sender_id,omitempty"`
	Text        string          `json:"text"`
	ReplyToID   int64           `json:"reply_to_id,omitempty"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	Meta        json.RawMessage `json:"meta,omitempty"`
}

// Attachment describes a media item referenced by a message.
type Attachment struct {
	ID       string `json:"id"`
	Kind     string `json:"kind,omitempty"` // MIME type
	Ref      string `json:"ref"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// FileName returns the attachment's on-disk name. Without an original
// filename it falls back to "<id><ext>" with the extension derived from Kind.
func (a Attachment) FileName() string {
	if name := sanitizeFileName(a.Filename); name != "" {
		return name
	}
	return sanitizeFileName(a.ID) + ExtensionFor(a.Kind)
}

// SortByID orders msgs by id, newest first when desc is set.
func SortByID(msgs []Message, desc bool) {
	slices.SortFunc(msgs, func(a, b Message) int {
		if desc {
			return cmp.Compare(b.ID, a.ID)
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

var mimeExtensions = map[string]string{
	"image/jpeg":                   ".jpg",
	"image/png":                    ".png",
	"image/gif":                    ".gif",
	"image/webp":                   ".webp",
	"image/tiff":                   ".tiff",
	"image/bmp":                    ".bmp",
	"video/mp4":                    ".mp4",
	"video/webm":                   ".webm",
	"video/quicktime":              ".mov",
	"audio/mpeg":                   ".mp3",
	"audio/ogg":                    ".ogg",
	"audio/mp4":                    ".m4a",
	"audio/x-wav":                  ".wav",
	"application/pdf":              ".pdf",
	"application/zip":              ".zip",
	"application/x-rar-compressed": ".rar",
	"application/x-7z-compressed":  ".7z",
	"application/json":             ".json",
	"application/xml":              ".xml",
	"text/plain":                   ".txt",
}

// ExtensionFor maps a MIME type to a file extension, ".bin" when unknown.
func ExtensionFor(mimeType string) string {
	if ext, ok := mimeExtensions[strings.ToLower(mimeType)]; ok {
		return ext
	}
	return ".bin"
}

func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "_", "\\", "_", "\x00", "").Replace(name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}
