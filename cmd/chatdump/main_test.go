package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/matheus3301/chatdump/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if _, err := execute(t, "--config", path, "config", "init"); err != nil {
		t.Fatalf("config init error = %v", err)
	}
	if _, err := execute(t, "--config", path, "config", "init"); err == nil {
		t.Error("second config init should refuse to overwrite")
	}

	out, err := execute(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	if !strings.Contains(out, "127.0.0.1:8080") {
		t.Errorf("show output missing api_url:\n%s", out)
	}
}

func TestConfigShowMasksToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := config.Default()
	cfg.Settings.APIToken = "secret-token"
	if err := config.Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	if strings.Contains(out, "secret-token") {
		t.Error("token should not be printed")
	}
}

func TestStopCreatesStopFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "missing.yaml")

	if _, err := execute(t, "--config", cfgPath, "stop", "@team,ops", "--output-dir", dir); err != nil {
		t.Fatalf("stop error = %v", err)
	}
	for _, name := range []string{"team.stop", "ops.stop"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestApplyPreset(t *testing.T) {
	cfg := config.Default()
	cfg.SetPreset(config.Preset{Name: "recent", Args: map[string]string{
		"last-days": "7",
		"user":      "42",
	}})

	var flags config.Flags
	cmd := &cobra.Command{Use: "test"}
	addFilterFlags(cmd.Flags(), &flags)
	if err := cmd.Flags().Parse([]string{"--user", "99"}); err != nil {
		t.Fatal(err)
	}

	if err := applyPreset(cmd, cfg, "recent"); err != nil {
		t.Fatalf("applyPreset() error = %v", err)
	}
	if flags.LastDays != 7 {
		t.Errorf("LastDays = %d, want 7", flags.LastDays)
	}
	if flags.Users != "99" {
		t.Errorf("Users = %q, explicit flag should win over preset", flags.Users)
	}

	if err := applyPreset(cmd, cfg, "nope"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestApplyPresetUnknownFlag(t *testing.T) {
	cfg := config.Default()
	cfg.SetPreset(config.Preset{Name: "bad", Args: map[string]string{"colour": "red"}})

	cmd := &cobra.Command{Use: "test"}
	addFilterFlags(cmd.Flags(), &config.Flags{})
	if err := applyPreset(cmd, cfg, "bad"); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestDownloadRejectsBadFlags(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := execute(t, "--config", cfgPath, "download", "team", "--sort", "sideways"); err == nil {
		t.Error("expected validation error")
	}
}
