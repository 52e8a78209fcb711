package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/cmdgate/internal/output"
)

var (
	flagHistoryLimit int
	flagHistoryDays  int
)

func init() {
	historyCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 50, "maximum number of entries (0 for all)")
	historyPruneCmd.Flags().IntVar(&flagHistoryDays, "older-than", 0, "prune entries older than this many days (default: configured retention)")

	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the authorization audit trail",
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

		decisions, err := database.ListDecisions(flagHistoryLimit)
		if err != nil {
			return err
		}

		out := output.New(output.Format(GetOutput()))
		switch GetOutput() {
		case "json", "yaml":
			return out.Write(map[string]any{"decisions": decisions})
		default:
			if len(decisions) == 0 {
				fmt.Println("no recorded decisions")
				return nil
			}
			for _, d := range decisions {
				mark := "✗"
				if d.Approved {
					mark = "✓"
				}
				fmt.Printf("%s  %s  %-18s %-8s %s\n",
					d.At.Local().Format(time.DateTime), mark, d.Verdict, d.Risk, d.Command)
			}
			return nil
		}
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit entries past the retention window",
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

		days := flagHistoryDays
		if days <= 0 {
			days = cfg.History.RetentionDays
		}
		if days <= 0 {
			return fmt.Errorf("retention window is disabled; pass --older-than")
		}

		cutoff := time.Now().AddDate(0, 0, -days)
		n, err := database.PruneDecisions(cutoff)
		if err != nil {
			return err
		}
		output.New(output.Format(GetOutput())).Success(fmt.Sprintf("pruned %d audit entries older than %d days", n, days))
		return nil
	},
}
