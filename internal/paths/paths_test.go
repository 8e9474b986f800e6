package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBaseDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got, want := BaseDir(), filepath.Join(home, ".chatdump"); got != want {
		t.Errorf("BaseDir() = %q, want %q", got, want)
	}
	if !strings.HasSuffix(LogPath(), filepath.Join("logs", "chatdump.log")) {
		t.Errorf("LogPath() = %q", LogPath())
	}
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@golang", "golang"},
		{"My Team / Chat", "My_Team___Chat"},
		{"-100123", "-100123"},
		{"", "chat_history"},
		{"  ", "chat_history"},
		{"..", "chat_history"},
	}
	for _, tt := range tests {
		if got := SafeName(tt.in); got != tt.want {
			t.Errorf("SafeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLayout(t *testing.T) {
	l := ForChat("/out", "@team")
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"json", l.JSON(), "/out/team.json"},
		{"part", l.Part(), "/out/team.part.jsonl"},
		{"state", l.State(), "/out/team.state.db"},
		{"lock", l.Lock(), "/out/team.lock"},
		{"stop", l.Stop(), "/out/team.stop"},
		{"text", l.Text(), "/out/team.txt"},
		{"attachments", l.AttachmentsDir(), "/out/team_attachments"},
		{"attachment", l.Attachment(42, "a.jpg"), "/out/team_attachments/42/a.jpg"},
		{"subchat", l.Subchat("7").Text(), "/out/team_subchat_7.txt"},
		{"split", l.Split("2024-05").JSON(), "/out/team_2024-05.json"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestForOutput(t *testing.T) {
	l := ForOutput("exports/history.json")
	if l.Dir != "exports" || l.Name != "history" {
		t.Errorf("ForOutput = %+v, want exports/history", l)
	}
	l = ForOutput("plain.json")
	if l.Dir != "." || l.JSON() != "plain.json" {
		t.Errorf("ForOutput(plain.json) = %+v json=%q", l, l.JSON())
	}
}

func TestEnsureDir(t *testing.T) {
	l := ForChat(filepath.Join(t.TempDir(), "nested", "out"), "c")
	if err := l.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	info, err := os.Stat(l.Dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("output dir not created: %v", err)
	}
}
