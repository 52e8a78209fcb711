package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/cmdgate/internal/db"
	"github.com/Dicklesworthstone/cmdgate/internal/output"
)

var (
	flagSessionAgent   string
	flagSessionProgram string
	flagSessionStale   time.Duration
)

func init() {
	sessionStartCmd.Flags().StringVarP(&flagSessionAgent, "agent", "a", "", "agent name (required)")
	sessionStartCmd.Flags().StringVar(&flagSessionProgram, "program", "", "program the agent is running under")
	_ = sessionStartCmd.MarkFlagRequired("agent")
	sessionGCCmd.Flags().DurationVar(&flagSessionStale, "stale", 2*time.Hour, "inactivity threshold for garbage collection")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionHeartbeatCmd)
	sessionCmd.AddCommand(sessionGCCmd)

	rootCmd.AddCommand(sessionCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage agent sessions",
	Long: `Manage agent sessions. A session identifies one agent working in one project;
session-scoped approvals are keyed by the session ID and dropped when the
session ends. One active session is allowed per agent and project.`,
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a session for an agent in the current project",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		project, err := projectPath()
		if err != nil {
			return err
		}

		session := &db.Session{
			ID:          GetSessionID(),
			AgentName:   flagSessionAgent,
			Program:     flagSessionProgram,
			ProjectPath: project,
		}
		if err := database.CreateSession(session); err != nil {
			if errors.Is(err, db.ErrActiveSessionExists) {
				existing, lookupErr := database.GetActiveSession(flagSessionAgent, project)
				if lookupErr == nil {
					return fmt.Errorf("%w (id: %s)", err, existing.ID)
				}
			}
			return err
		}

		out := output.New(output.Format(GetOutput()))
		switch GetOutput() {
		case "json", "yaml":
			return out.Write(session)
		default:
			fmt.Printf("session %s started for %s\n", session.ID, session.AgentName)
			return nil
		}
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a session and drop its approvals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := database.EndSession(args[0]); err != nil {
			return err
		}

		st := openStore(cfg)
		st.CleanupSession(args[0])
		_ = st.Close()

		output.New(output.Format(GetOutput())).Success("session " + args[0] + " ended")
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		sessions, err := database.ListActiveSessions()
		if err != nil {
			return err
		}

		out := output.New(output.Format(GetOutput()))
		switch GetOutput() {
		case "json", "yaml":
			return out.Write(map[string]any{"sessions": sessions})
		default:
			if len(sessions) == 0 {
				fmt.Println("no active sessions")
				return nil
			}
			for _, s := range sessions {
				fmt.Printf("  %s  %-20s %s (active %s ago)\n",
					s.ID, s.AgentName, s.ProjectPath,
					time.Since(s.LastActiveAt).Round(time.Second))
			}
			return nil
		}
	},
}

var sessionHeartbeatCmd = &cobra.Command{
	Use:   "heartbeat <session-id>",
	Short: "Mark a session as still active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := database.UpdateSessionHeartbeat(args[0]); err != nil {
			return err
		}
		output.New(output.Format(GetOutput())).Success("heartbeat recorded for " + args[0])
		return nil
	},
}

var sessionGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "End stale sessions and drop their approvals",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		stale, err := database.FindStaleSessions(flagSessionStale)
		if err != nil {
			return err
		}

		st := openStore(cfg)
		defer st.Close()

		ended := make([]string, 0, len(stale))
		for _, s := range stale {
			if err := database.EndSession(s.ID); err != nil {
				return fmt.Errorf("ending stale session %s: %w", s.ID, err)
			}
			st.CleanupSession(s.ID)
			ended = append(ended, s.ID)
		}

		out := output.New(output.Format(GetOutput()))
		switch GetOutput() {
		case "json", "yaml":
			return out.Write(map[string]any{"ended": ended})
		default:
			fmt.Printf("ended %d stale sessions\n", len(ended))
			return nil
		}
	},
}
