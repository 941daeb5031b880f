package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/logtap/am"
	"github.com/teranos/logtap/errors"
)

// AmCmd shows LogTap configuration ("I am")
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Show LogTap configuration",
	Long: `Display LogTap configuration.

Configuration sources (in order of precedence):
1. Environment variables (LOGTAP_* prefix)
2. Project config (./am.toml or ./config.toml, searched upwards)
3. User config (~/.logtap/am.toml)
4. System config (/etc/logtap/config.toml)
5. Default values

Examples:
  logtap am show                  # Effective configuration as TOML
  logtap am show --format json    # Same, as JSON`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runAmShow,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json")
	AmCmd.AddCommand(amShowCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, err := renderConfig(cfg, configFormat)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func renderConfig(cfg *am.Config, format string) (string, error) {
	switch format {
	case "toml":
		body, err := am.Render(cfg)
		if err != nil {
			return "", err
		}
		return "# LogTap configuration\n" + body, nil
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to JSON")
		}
		return string(data) + "\n", nil
	default:
		return "", errors.NewInvalidRequestError("unsupported format %q (supported: toml, json)", format)
	}
}
