package paths

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const defaultName = "chat_history"

// BaseDir returns ~/.chatdump.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatdump")
}

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.yaml")
}

// LogPath returns the default log file path.
func LogPath() string {
	return filepath.Join(BaseDir(), "logs", "chatdump.log")
}

var unsafeChars = regexp.MustCompile(`[^\w\-.]`)

// SafeName turns a chat identifier or title into a file name stem.
func SafeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "@")
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, ".")
	if name == "" {
		return defaultName
	}
	return name
}

// Layout names every artifact that belongs to one output.
type Layout struct {
	Dir  string
	Name string
}

// ForChat lays out artifacts for chat under dir.
func ForChat(dir, chat string) Layout {
	return Layout{Dir: dir, Name: SafeName(chat)}
}

// ForOutput lays out artifacts around an explicit output file such as
// "exports/team.json".
func ForOutput(output string) Layout {
	dir, file := filepath.Split(output)
	if dir == "" {
		dir = "."
	}
	name := strings.TrimSuffix(file, filepath.Ext(file))
	return Layout{Dir: filepath.Clean(dir), Name: SafeName(name)}
}

func (l Layout) path(suffix string) string {
	return filepath.Join(l.Dir, l.Name+suffix)
}

// JSON is the finalized output array.
func (l Layout) JSON() string { return l.path(".json") }

// Part is the append-only JSONL file written while downloading.
func (l Layout) Part() string { return l.path(".part.jsonl") }

// State is the sqlite resume sidecar.
func (l Layout) State() string { return l.path(".state.db") }

// Lock is the single-instance lock file.
func (l Layout) Lock() string { return l.path(".lock") }

// Stop is the file whose presence asks a running download to stop.
func (l Layout) Stop() string { return l.path(".stop") }

// Text is the threaded plain-text rendering.
func (l Layout) Text() string { return l.path(".txt") }

// AttachmentsDir holds downloaded media, one subdirectory per message.
func (l Layout) AttachmentsDir() string { return l.path("_attachments") }

// Attachment returns the destination of one media file.
func (l Layout) Attachment(messageID int64, fileName string) string {
	return filepath.Join(l.AttachmentsDir(), strconv.FormatInt(messageID, 10), fileName)
}

// Subchat returns the layout used for a thread extracted from this output.
func (l Layout) Subchat(root string) Layout {
	return Layout{Dir: l.Dir, Name: l.Name + "_subchat_" + SafeName(root)}
}

// Split returns the layout of one month or year partition.
func (l Layout) Split(key string) Layout {
	return Layout{Dir: l.Dir, Name: l.Name + "_" + key}
}

// EnsureDir creates the output directory.
func (l Layout) EnsureDir() error {
	return os.MkdirAll(l.Dir, 0755)
}
