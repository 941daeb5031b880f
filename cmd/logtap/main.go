package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/logtap/cmd/logtap/commands"
	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/logger"
)

var rootCmd = &cobra.Command{
	Use:   "logtap",
	Short: "LogTap - run detection rules against log datasets",
	Long: `LogTap - run detection rules against log datasets.

A scan runs every rule of a rule file as a query against a dataset, in
batches, and reports the rules whose query produced output.

Available commands:
  scan   - Scan a log file or a stored dataset with a rule file
  data   - Manage stored datasets
  rules  - Validate, list and fetch rule files
  server - Serve scans over WebSocket
  am     - Show LogTap configuration

Examples:
  logtap scan -r rules/ssh_auth.yaml /var/log/auth.log
  logtap data put /var/log/nginx/access.log --key nginx
  logtap scan -r web_attacks.yaml --key nginx
  logtap server --port 8770`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonLogs); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		logger.SetVerbosity(verbosity)

		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			pterm.DisableColor()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().String("config", "", "Read configuration from this file only")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(commands.ScanCmd)
	rootCmd.AddCommand(commands.DataCmd)
	rootCmd.AddCommand(commands.RulesCmd)
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err != nil {
		pterm.Error.Println(err)
		for _, hint := range errors.GetAllHints(err) {
			pterm.Info.Println(hint)
		}
		os.Exit(1)
	}
}
