package cli

import (
	"fmt"

	"github.com/Dicklesworthstone/cmdgate/internal/config"
	"github.com/Dicklesworthstone/cmdgate/internal/db"
	"github.com/Dicklesworthstone/cmdgate/internal/gate"
	"github.com/Dicklesworthstone/cmdgate/internal/store"
	"github.com/Dicklesworthstone/cmdgate/internal/tui"
)

// loadConfig builds the effective configuration for the current invocation.
func loadConfig() (config.Config, error) {
	return config.Load(config.LoadOptions{ConfigPath: flagConfig})
}

// storePath resolves the durable approvals file.
// Precedence: --store flag > config > default.
func storePath(cfg config.Config) string {
	if flagStore != "" {
		return flagStore
	}
	if cfg.General.StorePath != "" {
		return cfg.General.StorePath
	}
	return config.DefaultStorePath()
}

// dbPath resolves the audit database path.
// Precedence: --db flag > config > default.
func dbPath(cfg config.Config) string {
	if flagDB != "" {
		return flagDB
	}
	if cfg.General.DBPath != "" {
		return cfg.General.DBPath
	}
	return config.DefaultDBPath()
}

// buildEngine creates a rule engine from the configured allow/deny lists.
func buildEngine(cfg config.Config) *gate.Engine {
	engine := gate.NewEngine()
	for _, r := range cfg.Rules.Allow {
		engine.AddRule(gate.Rule{Pattern: r.Pattern, Allow: true, Description: r.Description})
	}
	for _, r := range cfg.Rules.Deny {
		engine.AddRule(gate.Rule{Pattern: r.Pattern, Allow: false, Description: r.Description})
	}
	return engine
}

// openStore creates the file-backed approval store for this invocation.
func openStore(cfg config.Config) *store.Store {
	return store.NewFile(storePath(cfg))
}

// openDB opens (and migrates) the audit database.
func openDB(cfg config.Config) (*db.DB, error) {
	return db.OpenAndMigrate(dbPath(cfg))
}

// newManager assembles the full decision stack: engine from config rules,
// file-backed store, prompt, safety mode, and the sqlite audit sink. The
// returned cleanup must be called before the process exits.
func newManager(cfg config.Config) (*gate.Manager, func(), error) {
	mode, err := gate.ParseSafetyMode(cfg.General.SafetyMode)
	if err != nil {
		return nil, nil, err
	}

	st := openStore(cfg)

	database, err := openDB(cfg)
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("opening audit db: %w", err)
	}

	prompt := tui.Prompt(cfg.Prompt.Plain)
	if cfg.Prompt.AssumeYes {
		prompt = func(gate.Validation) bool { return true }
	}

	mgr := gate.NewManager(buildEngine(cfg), st,
		gate.WithMode(mode),
		gate.WithPrompt(prompt),
		gate.WithAudit(database),
	)

	cleanup := func() {
		_ = database.Close()
		_ = st.Close()
	}
	return mgr, cleanup, nil
}

// defaultGrantScope resolves the scope recorded when a prompt approves a
// command, honoring a per-command flag over the configured default.
func defaultGrantScope(cfg config.Config, flagValue string) (store.Scope, error) {
	raw := flagValue
	if raw == "" {
		raw = cfg.General.DefaultScope
	}
	return store.ParseScope(raw)
}
