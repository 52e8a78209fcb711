package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/cmdgate/internal/config"
	"github.com/Dicklesworthstone/cmdgate/internal/output"
)

var flagConfigUser bool

func init() {
	configSetCmd.Flags().BoolVar(&flagConfigUser, "user", false, "write to the user config instead of the project config")

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configPathCmd)

	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit configuration",
	Long: `Inspect and edit cmdgate configuration.

Values are resolved with the following precedence, lowest to highest:
built-in defaults, user config (~/.cmdgate/config.toml), project config
(<project>/.cmdgate/config.toml), CMDGATE_* environment variables, flags.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one effective config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		value, ok := config.GetValue(cfg, args[0])
		if !ok {
			return fmt.Errorf("unknown config key %q", args[0])
		}

		out := output.New(output.Format(GetOutput()))
		switch GetOutput() {
		case "json", "yaml":
			return out.Write(map[string]any{"key": args[0], "value": value})
		default:
			fmt.Printf("%v\n", value)
			return nil
		}
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one config value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, raw := args[0], args[1]
		value, err := config.ParseValue(key, raw)
		if err != nil {
			return err
		}

		project, err := projectPath()
		if err != nil {
			return err
		}
		userPath, projectPath := configPaths(project)
		path := projectPath
		if flagConfigUser {
			if userPath == "" {
				return fmt.Errorf("cannot resolve user config path")
			}
			path = userPath
		}

		if err := config.WriteValue(path, key, value); err != nil {
			return err
		}
		output.New(output.Format(GetOutput())).Success(fmt.Sprintf("set %s = %v in %s", key, value, path))
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all effective config values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		values := map[string]any{}
		for _, key := range config.Keys() {
			if v, ok := config.GetValue(cfg, key); ok {
				values[key] = v
			}
		}

		out := output.New(output.Format(GetOutput()))
		switch GetOutput() {
		case "json", "yaml":
			return out.Write(values)
		default:
			for _, key := range config.Keys() {
				fmt.Printf("%-26s %v\n", key, values[key])
			}
			return nil
		}
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file locations",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := projectPath()
		if err != nil {
			return err
		}
		userPath, projectPath := configPaths(project)

		out := output.New(output.Format(GetOutput()))
		switch GetOutput() {
		case "json", "yaml":
			return out.Write(map[string]any{"user": userPath, "project": projectPath})
		default:
			fmt.Printf("user:    %s\n", userPath)
			fmt.Printf("project: %s\n", projectPath)
			return nil
		}
	},
}
