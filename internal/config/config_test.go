package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeProjectConfig writes a project config under dir and returns the dir.
func writeProjectConfig(t *testing.T, dir, content string) {
	t.Helper()
	cfgDir := filepath.Join(dir, ".cmdgate")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("creating config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadDefaults(t *testing.T) {
	isolateHome(t)

	cfg, err := Load(LoadOptions{ProjectDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.General.SafetyMode != "confirm" {
		t.Errorf("safety_mode = %q, want confirm", cfg.General.SafetyMode)
	}
	if cfg.General.DefaultScope != "once" {
		t.Errorf("default_scope = %q, want once", cfg.General.DefaultScope)
	}
	if cfg.History.RetentionDays != 90 {
		t.Errorf("retention_days = %d, want 90", cfg.History.RetentionDays)
	}
	if cfg.Prompt.AssumeYes {
		t.Error("assume_yes should default to false")
	}
}

func TestLoadProjectOverridesUser(t *testing.T) {
	home := isolateHome(t)
	userDir := filepath.Join(home, ".cmdgate")
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		t.Fatal(err)
	}
	userConfig := "[general]\nsafety_mode = \"auto\"\nstore_path = \"/user/approvals.json\"\n"
	if err := os.WriteFile(filepath.Join(userDir, "config.toml"), []byte(userConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	project := t.TempDir()
	writeProjectConfig(t, project, "[general]\nsafety_mode = \"readonly\"\n")

	cfg, err := Load(LoadOptions{ProjectDir: project})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.General.SafetyMode != "readonly" {
		t.Errorf("safety_mode = %q, want project value readonly", cfg.General.SafetyMode)
	}
	// Keys the project file does not set still come from the user file.
	if cfg.General.StorePath != "/user/approvals.json" {
		t.Errorf("store_path = %q, want user value", cfg.General.StorePath)
	}
}

func TestLoadEnvOverridesFiles(t *testing.T) {
	isolateHome(t)
	project := t.TempDir()
	writeProjectConfig(t, project, "[general]\nsafety_mode = \"confirm\"\n")

	t.Setenv("CMDGATE_SAFETY_MODE", "auto")
	t.Setenv("CMDGATE_RETENTION_DAYS", "7")

	cfg, err := Load(LoadOptions{ProjectDir: project})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.SafetyMode != "auto" {
		t.Errorf("safety_mode = %q, want env value auto", cfg.General.SafetyMode)
	}
	if cfg.History.RetentionDays != 7 {
		t.Errorf("retention_days = %d, want env value 7", cfg.History.RetentionDays)
	}
}

func TestLoadFlagOverridesEverything(t *testing.T) {
	isolateHome(t)
	t.Setenv("CMDGATE_SAFETY_MODE", "auto")

	cfg, err := Load(LoadOptions{
		ProjectDir:    t.TempDir(),
		FlagOverrides: map[string]any{"general.safety_mode": "readonly"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.SafetyMode != "readonly" {
		t.Errorf("safety_mode = %q, want flag value readonly", cfg.General.SafetyMode)
	}
}

func TestLoadInvalidEnvValue(t *testing.T) {
	isolateHome(t)
	t.Setenv("CMDGATE_RETENTION_DAYS", "soon")

	if _, err := Load(LoadOptions{ProjectDir: t.TempDir()}); err == nil {
		t.Fatal("expected error for non-integer retention days")
	}
}

func TestLoadInvalidToml(t *testing.T) {
	isolateHome(t)
	project := t.TempDir()
	writeProjectConfig(t, project, "not toml [[[")

	if _, err := Load(LoadOptions{ProjectDir: project}); err == nil {
		t.Fatal("expected error for invalid toml")
	}
}

func TestLoadRules(t *testing.T) {
	isolateHome(t)
	project := t.TempDir()
	writeProjectConfig(t, project, `
[[rules.allow]]
pattern = "ls"
description = "list files"

[[rules.deny]]
pattern = "rm -rf*"
`)

	cfg, err := Load(LoadOptions{ProjectDir: project})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Rules.Allow) != 1 || cfg.Rules.Allow[0].Pattern != "ls" {
		t.Errorf("allow rules = %+v", cfg.Rules.Allow)
	}
	if cfg.Rules.Allow[0].Description != "list files" {
		t.Errorf("description = %q", cfg.Rules.Allow[0].Description)
	}
	if len(cfg.Rules.Deny) != 1 || cfg.Rules.Deny[0].Pattern != "rm -rf*" {
		t.Errorf("deny rules = %+v", cfg.Rules.Deny)
	}
}

func TestValidateAggregatesProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.General.SafetyMode = "yolo"
	cfg.General.DefaultScope = "forever"
	cfg.History.RetentionDays = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"safety_mode", "default_scope", "retention_days"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestWriteValueRoundTrip(t *testing.T) {
	isolateHome(t)
	project := t.TempDir()
	path := filepath.Join(project, ".cmdgate", "config.toml")

	if err := WriteValue(path, "general.safety_mode", "auto"); err != nil {
		t.Fatalf("WriteValue: %v", err)
	}
	if err := WriteValue(path, "history.retention_days", 30); err != nil {
		t.Fatalf("WriteValue second key: %v", err)
	}

	cfg, err := Load(LoadOptions{ProjectDir: project})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.SafetyMode != "auto" {
		t.Errorf("safety_mode = %q, want auto", cfg.General.SafetyMode)
	}
	if cfg.History.RetentionDays != 30 {
		t.Errorf("retention_days = %d, want 30", cfg.History.RetentionDays)
	}
}

func TestAppendAndRemoveRule(t *testing.T) {
	isolateHome(t)
	project := t.TempDir()
	path := filepath.Join(project, ".cmdgate", "config.toml")

	if err := AppendRule(path, true, RuleConfig{Pattern: "ls", Description: "list"}); err != nil {
		t.Fatalf("AppendRule: %v", err)
	}
	if err := AppendRule(path, true, RuleConfig{Pattern: "ls"}); err != nil {
		t.Fatalf("duplicate AppendRule: %v", err)
	}
	if err := AppendRule(path, false, RuleConfig{Pattern: "rm -rf*"}); err != nil {
		t.Fatalf("AppendRule deny: %v", err)
	}

	cfg, err := Load(LoadOptions{ProjectDir: project})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Rules.Allow) != 1 {
		t.Fatalf("allow rules = %+v, want duplicate-free single entry", cfg.Rules.Allow)
	}
	if len(cfg.Rules.Deny) != 1 {
		t.Fatalf("deny rules = %+v", cfg.Rules.Deny)
	}

	if err := RemoveRule(path, true, "ls"); err != nil {
		t.Fatalf("RemoveRule: %v", err)
	}
	if err := RemoveRule(path, true, "ls"); err == nil {
		t.Fatal("expected error removing absent rule")
	}

	cfg, err = Load(LoadOptions{ProjectDir: project})
	if err != nil {
		t.Fatalf("Load after remove: %v", err)
	}
	if len(cfg.Rules.Allow) != 0 {
		t.Errorf("allow rules after remove = %+v", cfg.Rules.Allow)
	}
	if len(cfg.Rules.Deny) != 1 {
		t.Errorf("deny rules must be untouched, got %+v", cfg.Rules.Deny)
	}
}

func TestWriteRulesReplaces(t *testing.T) {
	isolateHome(t)
	project := t.TempDir()
	path := filepath.Join(project, ".cmdgate", "config.toml")

	if err := WriteValue(path, "general.safety_mode", "auto"); err != nil {
		t.Fatal(err)
	}
	if err := AppendRule(path, true, RuleConfig{Pattern: "stale"}); err != nil {
		t.Fatal(err)
	}
	if err := WriteRules(path, []RuleConfig{{Pattern: "ls"}}, nil); err != nil {
		t.Fatalf("WriteRules: %v", err)
	}

	cfg, err := Load(LoadOptions{ProjectDir: project})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Rules.Allow) != 1 || cfg.Rules.Allow[0].Pattern != "ls" {
		t.Errorf("allow rules = %+v, want replaced set", cfg.Rules.Allow)
	}
	if len(cfg.Rules.Deny) != 0 {
		t.Errorf("deny rules = %+v, want empty", cfg.Rules.Deny)
	}
	// Other sections survive the rewrite.
	if cfg.General.SafetyMode != "auto" {
		t.Errorf("safety_mode = %q, want auto", cfg.General.SafetyMode)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		key    string
		raw    string
		expect any
		ok     bool
	}{
		{"history.retention_days", "30", 30, true},
		{"history.retention_days", "soon", nil, false},
		{"prompt.assume_yes", "true", true, true},
		{"prompt.assume_yes", "maybe", nil, false},
		{"general.safety_mode", "auto", "auto", true},
		{"unknown.key", "x", nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.key+"="+tc.raw, func(t *testing.T) {
			got, err := ParseValue(tc.key, tc.raw)
			if tc.ok {
				if err != nil {
					t.Fatalf("ParseValue: %v", err)
				}
				if got != tc.expect {
					t.Errorf("ParseValue(%q, %q) = %v, want %v", tc.key, tc.raw, got, tc.expect)
				}
			} else if err == nil {
				t.Errorf("ParseValue(%q, %q) expected error", tc.key, tc.raw)
			}
		})
	}
}

func TestConfigPathsOverride(t *testing.T) {
	_, projectPath := ConfigPaths("/proj", "")
	if projectPath != filepath.Join("/proj", ".cmdgate", "config.toml") {
		t.Errorf("projectPath = %q", projectPath)
	}
	_, overridden := ConfigPaths("/proj", "/elsewhere/config.toml")
	if overridden != "/elsewhere/config.toml" {
		t.Errorf("override = %q", overridden)
	}
}

func TestGetValueKeysCovered(t *testing.T) {
	cfg := DefaultConfig()
	for _, key := range Keys() {
		if _, ok := GetValue(cfg, key); !ok {
			t.Errorf("GetValue missing key %q", key)
		}
	}
	if _, ok := GetValue(cfg, "nope"); ok {
		t.Error("GetValue accepted unknown key")
	}
}
