package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/cmdgate/internal/output"
	"github.com/Dicklesworthstone/cmdgate/internal/store"
)

var (
	flagApprovalScope      string
	flagApprovalOutputFile string
)

func init() {
	approvalsGrantCmd.Flags().StringVar(&flagApprovalScope, "scope", "", "approval scope: once, session, persistent (default: configured default)")
	approvalsExportCmd.Flags().StringVarP(&flagApprovalOutputFile, "file", "f", "", "output file (default: stdout)")

	approvalsCmd.AddCommand(approvalsListCmd)
	approvalsCmd.AddCommand(approvalsGrantCmd)
	approvalsCmd.AddCommand(approvalsRevokeCmd)
	approvalsCmd.AddCommand(approvalsStatsCmd)
	approvalsCmd.AddCommand(approvalsExportCmd)
	approvalsCmd.AddCommand(approvalsImportCmd)
	approvalsCmd.AddCommand(approvalsClearSessionCmd)
	approvalsCmd.AddCommand(approvalsCleanupCmd)
	approvalsCmd.AddCommand(approvalsWatchCmd)

	rootCmd.AddCommand(approvalsCmd)
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Manage stored command approvals",
	Long: `Manage approvals granted for commands that require them.

Approvals come in three scopes:
  once        - consumed by the first check that matches it
  session     - lives for a session and vanishes when it ends
  persistent  - written to the durable approvals file

Only persistent approvals survive process restarts; once- and session-scoped
approvals are never written to disk.`,
}

// approvalsExport is the serialized form of "approvals export".
type approvalsExport struct {
	Approvals []store.Record `json:"approvals"`
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored approvals",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st := openStore(cfg)
		defer st.Close()

		records := st.List()
		out := output.New(output.Format(GetOutput()))

		switch GetOutput() {
		case "json", "yaml":
			return out.Write(approvalsExport{Approvals: records})
		default:
			if len(records) == 0 {
				fmt.Println("no stored approvals")
				return nil
			}
			for _, r := range records {
				if r.SessionID != "" {
					fmt.Printf("  %-12s %-36s %s\n", r.Scope, r.SessionID, r.Pattern)
				} else {
					fmt.Printf("  %-12s %s\n", r.Scope, r.Pattern)
				}
			}
			return nil
		}
	},
}

var approvalsGrantCmd = &cobra.Command{
	Use:   "grant <pattern>",
	Short: "Grant an approval for a command or glob pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		scope, err := defaultGrantScope(cfg, flagApprovalScope)
		if err != nil {
			return err
		}

		st := openStore(cfg)
		defer st.Close()

		if err := st.Add(args[0], scope, GetSessionID()); err != nil {
			return err
		}
		output.New(output.Format(GetOutput())).Success(fmt.Sprintf("granted %s approval for %q", scope, args[0]))
		return nil
	},
}

var approvalsRevokeCmd = &cobra.Command{
	Use:   "revoke <pattern>",
	Short: "Revoke an approval from every scope it appears in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st := openStore(cfg)
		defer st.Close()

		if err := st.Remove(args[0]); err != nil {
			return err
		}
		output.New(output.Format(GetOutput())).Success(fmt.Sprintf("revoked approval for %q", args[0]))
		return nil
	},
}

var approvalsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show approval counts by scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st := openStore(cfg)
		defer st.Close()

		stats := st.Stats()
		out := output.New(output.Format(GetOutput()))

		switch GetOutput() {
		case "json", "yaml":
			return out.Write(stats)
		default:
			fmt.Printf("total: %d\n", stats.Total)
			for _, scope := range []store.Scope{store.ScopeOnce, store.ScopeSession, store.ScopePersistent} {
				fmt.Printf("  %-12s %d\n", scope, stats.ByScope[scope])
			}
			return nil
		}
	},
}

var approvalsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored approvals as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st := openStore(cfg)
		defer st.Close()

		data, err := json.MarshalIndent(approvalsExport{Approvals: st.List()}, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding approvals: %w", err)
		}
		data = append(data, '\n')

		if flagApprovalOutputFile != "" {
			if err := os.WriteFile(flagApprovalOutputFile, data, 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", flagApprovalOutputFile, err)
			}
			output.New(output.Format(GetOutput())).Success("exported approvals to " + flagApprovalOutputFile)
			return nil
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var approvalsImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import approvals produced by export",
	Long: `Import approvals previously produced by "approvals export". Records with an
unrecognized scope are imported at session scope rather than failing the whole
import. Reads stdin when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
		} else {
			data, err = io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
		}

		var export approvalsExport
		if err := json.Unmarshal(data, &export); err != nil {
			return fmt.Errorf("parsing approvals export: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		mgr, cleanup, err := newManager(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := mgr.Import(export.Approvals); err != nil {
			return err
		}
		output.New(output.Format(GetOutput())).Success(fmt.Sprintf("imported %d approvals", len(export.Approvals)))
		return nil
	},
}

var approvalsClearSessionCmd = &cobra.Command{
	Use:   "clear-session",
	Short: "Clear all session- and once-scoped approvals",
	Long: `Clear every session- and once-scoped approval. Persistent approvals are
untouched; the durable approvals file is never deleted by this command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st := openStore(cfg)
		defer st.Close()

		st.ClearSessionScoped()
		output.New(output.Format(GetOutput())).Success("cleared session-scoped approvals")
		return nil
	},
}

var approvalsCleanupCmd = &cobra.Command{
	Use:   "cleanup <session-id>",
	Short: "Drop all approvals keyed to one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st := openStore(cfg)
		defer st.Close()

		st.CleanupSession(args[0])
		output.New(output.Format(GetOutput())).Success("cleaned up approvals for session " + args[0])
		return nil
	},
}

var approvalsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream changes to the durable approvals file",
	Long: `Watch the durable approvals file and stream debounced change events as
newline-delimited JSON. Another process rewriting the file (there is no file
locking; last writer wins) shows up here so long-running consumers can reload.`,
	RunE: runApprovalsWatch,
}

func runApprovalsWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := storePath(cfg)

	watcher, err := store.NewWatcher(path)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	out := output.New(output.Format(GetOutput()))
	fmt.Fprintf(os.Stderr, "watching %s (ctrl-c to stop)\n", path)

	for {
		select {
		case <-sig:
			return nil
		case err, ok := <-watcher.Errors():
			if !ok {
				return nil
			}
			out.Error(err)
		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			st := store.NewFile(path)
			stats := st.Stats()
			_ = st.Close()

			payload := map[string]any{
				"event":      "approvals_changed",
				"path":       ev.Path,
				"op":         ev.Op.String(),
				"at":         ev.At,
				"persistent": stats.ByScope[store.ScopePersistent],
			}
			if err := out.WriteNDJSON(payload); err != nil {
				return err
			}
		}
	}
}
