// Package config implements layered TOML configuration for cmdgate.
//
// Precedence, lowest to highest: built-in defaults, user config
// (~/.cmdgate/config.toml), project config (<project>/.cmdgate/config.toml),
// CMDGATE_* environment variables, and explicit flag overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// GeneralConfig holds the core gate settings.
type GeneralConfig struct {
	// SafetyMode is auto, confirm, or readonly.
	SafetyMode string `mapstructure:"safety_mode" json:"safety_mode"`
	// DefaultScope is the approval scope recorded when the interactive
	// prompt approves a command: once, session, or persistent.
	DefaultScope string `mapstructure:"default_scope" json:"default_scope"`
	// StorePath is the durable approval file. Empty means ~/.cmdgate/approvals.json.
	StorePath string `mapstructure:"store_path" json:"store_path"`
	// DBPath is the sqlite audit database. Empty means ~/.cmdgate/cmdgate.db.
	DBPath string `mapstructure:"db_path" json:"db_path"`
}

// PromptConfig controls the interactive approval prompt.
type PromptConfig struct {
	// AssumeYes approves every prompt without asking. Dangerous; intended
	// for unattended test environments only.
	AssumeYes bool `mapstructure:"assume_yes" json:"assume_yes"`
	// Plain disables the full-screen confirm UI and always uses the
	// line-reader prompt.
	Plain bool `mapstructure:"plain" json:"plain"`
}

// HistoryConfig controls the audit trail.
type HistoryConfig struct {
	RetentionDays int `mapstructure:"retention_days" json:"retention_days"`
}

// RuleConfig is one allow or deny pattern from the config file.
type RuleConfig struct {
	Pattern     string `mapstructure:"pattern" json:"pattern"`
	Description string `mapstructure:"description" json:"description,omitempty"`
}

// RulesConfig holds the configured rule lists.
type RulesConfig struct {
	Allow []RuleConfig `mapstructure:"allow" json:"allow"`
	Deny  []RuleConfig `mapstructure:"deny" json:"deny"`
}

// Config is the full cmdgate configuration.
type Config struct {
	General GeneralConfig `mapstructure:"general" json:"general"`
	Prompt  PromptConfig  `mapstructure:"prompt" json:"prompt"`
	History HistoryConfig `mapstructure:"history" json:"history"`
	Rules   RulesConfig   `mapstructure:"rules" json:"rules"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			SafetyMode:   "confirm",
			DefaultScope: "once",
		},
		History: HistoryConfig{
			RetentionDays: 90,
		},
	}
}

// Validate checks a loaded configuration, aggregating every problem into one
// error.
func Validate(cfg Config) error {
	var problems []string

	switch cfg.General.SafetyMode {
	case "auto", "confirm", "readonly":
	default:
		problems = append(problems, fmt.Sprintf("general.safety_mode: unknown mode %q", cfg.General.SafetyMode))
	}
	switch cfg.General.DefaultScope {
	case "once", "session", "persistent":
	default:
		problems = append(problems, fmt.Sprintf("general.default_scope: unknown scope %q", cfg.General.DefaultScope))
	}
	if cfg.History.RetentionDays < 0 {
		problems = append(problems, "history.retention_days: must be >= 0")
	}
	for _, r := range append(append([]RuleConfig{}, cfg.Rules.Allow...), cfg.Rules.Deny...) {
		if strings.TrimSpace(r.Pattern) == "" {
			problems = append(problems, "rules: empty pattern")
			break
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// LoadOptions configures Load.
type LoadOptions struct {
	// ProjectDir is the project root. Empty means the current directory.
	ProjectDir string
	// ConfigPath overrides the project config file location.
	ConfigPath string
	// FlagOverrides are dotted-key values from CLI flags, applied last.
	FlagOverrides map[string]any
}

// envBindings maps config keys to their environment variables.
var envBindings = map[string]string{
	"general.safety_mode":    "CMDGATE_SAFETY_MODE",
	"general.default_scope":  "CMDGATE_DEFAULT_SCOPE",
	"general.store_path":     "CMDGATE_STORE_PATH",
	"general.db_path":        "CMDGATE_DB_PATH",
	"prompt.assume_yes":      "CMDGATE_ASSUME_YES",
	"prompt.plain":           "CMDGATE_PLAIN_PROMPT",
	"history.retention_days": "CMDGATE_RETENTION_DAYS",
}

// Load builds the effective configuration for a project.
func Load(opts LoadOptions) (Config, error) {
	projectDir := opts.ProjectDir
	if projectDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("resolving working directory: %w", err)
		}
		projectDir = cwd
	}

	v := newConfigViper()

	userPath, projectPath := ConfigPaths(projectDir, opts.ConfigPath)
	if err := mergeConfigFile(v, userPath); err != nil {
		return Config{}, err
	}
	if err := mergeConfigFile(v, projectPath); err != nil {
		return Config{}, err
	}

	for key, env := range envBindings {
		if val, ok := os.LookupEnv(env); ok {
			parsed, err := ParseValue(key, val)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", env, err)
			}
			v.Set(key, parsed)
		}
	}
	for key, val := range opts.FlagOverrides {
		v.Set(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// newConfigViper creates a viper instance seeded with defaults.
func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")

	def := DefaultConfig()
	v.SetDefault("general.safety_mode", def.General.SafetyMode)
	v.SetDefault("general.default_scope", def.General.DefaultScope)
	v.SetDefault("general.store_path", def.General.StorePath)
	v.SetDefault("general.db_path", def.General.DBPath)
	v.SetDefault("prompt.assume_yes", def.Prompt.AssumeYes)
	v.SetDefault("prompt.plain", def.Prompt.Plain)
	v.SetDefault("history.retention_days", def.History.RetentionDays)
	return v
}

// ConfigPaths returns the user and project config file paths. A non-empty
// override replaces the project path.
func ConfigPaths(projectDir, override string) (userPath, projectPath string) {
	home, err := os.UserHomeDir()
	if err == nil {
		userPath = filepath.Join(home, ".cmdgate", "config.toml")
	}
	projectPath = filepath.Join(projectDir, ".cmdgate", "config.toml")
	if override != "" {
		projectPath = override
	}
	return userPath, projectPath
}

// mergeConfigFile merges a TOML file into v. Empty paths and missing files
// are no-ops; unreadable or invalid files are errors.
func mergeConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("opening config %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("inspecting config %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}

	if err := v.MergeConfig(f); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// GetValue looks up a dotted config key on a loaded Config.
func GetValue(cfg Config, key string) (any, bool) {
	switch key {
	case "general.safety_mode":
		return cfg.General.SafetyMode, true
	case "general.default_scope":
		return cfg.General.DefaultScope, true
	case "general.store_path":
		return cfg.General.StorePath, true
	case "general.db_path":
		return cfg.General.DBPath, true
	case "prompt.assume_yes":
		return cfg.Prompt.AssumeYes, true
	case "prompt.plain":
		return cfg.Prompt.Plain, true
	case "history.retention_days":
		return cfg.History.RetentionDays, true
	default:
		return nil, false
	}
}

// ParseValue converts a raw CLI string into the typed value for a key.
func ParseValue(key, raw string) (any, error) {
	switch key {
	case "history.retention_days":
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: expected integer, got %q", key, raw)
		}
		return n, nil
	case "prompt.assume_yes", "prompt.plain":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: expected boolean, got %q", key, raw)
		}
		return b, nil
	case "general.safety_mode", "general.default_scope", "general.store_path", "general.db_path":
		return raw, nil
	default:
		return nil, fmt.Errorf("unknown key %q", key)
	}
}

// WriteValue sets one dotted key in a TOML config file, creating the file and
// its directory if needed.
func WriteValue(path, key string, value any) error {
	doc, err := readConfigDoc(path)
	if err != nil {
		return err
	}

	parts := strings.Split(key, ".")
	node := doc
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value

	return writeConfigDoc(path, doc)
}

// ruleSection returns the "allow" or "deny" list name.
func ruleSection(allow bool) string {
	if allow {
		return "allow"
	}
	return "deny"
}

// AppendRule adds one rule to the allow or deny list in a TOML config file,
// creating the file if needed. Adding a pattern that is already present is a
// no-op.
func AppendRule(path string, allow bool, r RuleConfig) error {
	return editRules(path, allow, func(rules []map[string]any) ([]map[string]any, error) {
		for _, existing := range rules {
			if existing["pattern"] == r.Pattern {
				return rules, nil
			}
		}
		entry := map[string]any{"pattern": r.Pattern}
		if r.Description != "" {
			entry["description"] = r.Description
		}
		return append(rules, entry), nil
	})
}

// RemoveRule deletes a rule pattern from the allow or deny list in a TOML
// config file. It reports an error when the pattern is not present.
func RemoveRule(path string, allow bool, pattern string) error {
	return editRules(path, allow, func(rules []map[string]any) ([]map[string]any, error) {
		out := rules[:0]
		for _, r := range rules {
			if r["pattern"] != pattern {
				out = append(out, r)
			}
		}
		if len(out) == len(rules) {
			return nil, fmt.Errorf("no %s rule with pattern %q", ruleSection(allow), pattern)
		}
		return out, nil
	})
}

// WriteRules replaces both rule lists in a TOML config file, preserving every
// other section.
func WriteRules(path string, allow, deny []RuleConfig) error {
	doc, err := readConfigDoc(path)
	if err != nil {
		return err
	}
	rules := map[string]any{
		"allow": rulesToMaps(allow),
		"deny":  rulesToMaps(deny),
	}
	doc["rules"] = rules
	return writeConfigDoc(path, doc)
}

// editRules applies an in-place transformation to one rule list of a config
// file.
func editRules(path string, allow bool, edit func([]map[string]any) ([]map[string]any, error)) error {
	doc, err := readConfigDoc(path)
	if err != nil {
		return err
	}

	rules, ok := doc["rules"].(map[string]any)
	if !ok {
		rules = map[string]any{}
		doc["rules"] = rules
	}
	section := ruleSection(allow)

	edited, err := edit(ruleList(rules[section]))
	if err != nil {
		return err
	}
	rules[section] = edited

	return writeConfigDoc(path, doc)
}

// ruleList normalizes the decoded TOML array-of-tables forms into a uniform
// slice of maps.
func ruleList(v any) []map[string]any {
	switch list := v.(type) {
	case []map[string]any:
		return list
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func rulesToMaps(rules []RuleConfig) []map[string]any {
	out := make([]map[string]any, 0, len(rules))
	for _, r := range rules {
		entry := map[string]any{"pattern": r.Pattern}
		if r.Description != "" {
			entry["description"] = r.Description
		}
		out = append(out, entry)
	}
	return out
}

func readConfigDoc(path string) (map[string]any, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	doc := map[string]any{}
	if _, err := toml.DecodeFile(path, &doc); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return doc, nil
}

func writeConfigDoc(path string, doc map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(doc); err != nil {
		return fmt.Errorf("encoding config %s: %w", path, err)
	}
	return nil
}

// Keys returns the known dotted config keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(envBindings))
	for k := range envBindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultStorePath is the fallback durable approval file location.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cmdgate", "approvals.json")
	}
	return filepath.Join(home, ".cmdgate", "approvals.json")
}

// DefaultDBPath is the fallback audit database location.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cmdgate", "cmdgate.db")
	}
	return filepath.Join(home, ".cmdgate", "cmdgate.db")
}
