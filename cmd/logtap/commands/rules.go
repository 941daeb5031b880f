package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/logger"
	"github.com/teranos/logtap/ruleset"
)

// RulesCmd works with YAML rule files
var RulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Validate, list and fetch rule files",
	Long: `Rule files are YAML documents with a top-level "rules" list:

  rules:
    - name: Failed SSH logins
      query: grep("Failed password")

Predefined rule files live in rules.dir (default ./rules).

Examples:
  logtap rules ls
  logtap rules validate rules/*.yaml
  logtap rules fetch https://example.com/rules/web_attacks.yaml
  logtap rules fetch git::https://github.com/org/rules//ssh_auth.yaml`,
}

var rulesLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List predefined rule files",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return listRuleFiles(cfg.Rules.Dir, cmd.OutOrStdout())
	},
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check that rule files parse",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateRuleFiles(args, cmd.OutOrStdout())
	},
}

var rulesFetchCmd = &cobra.Command{
	Use:   "fetch <source>",
	Short: "Download a rule file into rules.dir",
	Long: `Download a rule file from any go-getter source: a local path, http(s),
git, s3 or gcs URL. The file is validated after download and removed again
if it does not parse.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Rules.Dir
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return fetchRuleFile(ctx, args[0], dir, cmd.OutOrStdout())
	},
}

func init() {
	rulesFetchCmd.Flags().String("dir", "", "Destination directory (default: rules.dir)")

	RulesCmd.AddCommand(rulesLsCmd)
	RulesCmd.AddCommand(rulesValidateCmd)
	RulesCmd.AddCommand(rulesFetchCmd)
}

func listRuleFiles(dir string, out io.Writer) error {
	entries, err := ruleset.Dir(dir)
	if errors.IsNotFoundError(err) {
		fmt.Fprint(out, pterm.Info.Sprintfln("No rules directory at %s.", dir))
		return nil
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprint(out, pterm.Info.Sprintfln("No rule files in %s.", dir))
		return nil
	}

	data := pterm.TableData{{"File", "Name", "Rules"}}
	for _, e := range entries {
		count := "invalid"
		if set, err := ruleset.LoadFile(e.Path); err == nil {
			count = strconv.Itoa(len(set.Rules))
		}
		data = append(data, []string{e.File, e.Name, count})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, table)
	return nil
}

// validateRuleFiles reports every file and fails if any is unusable
func validateRuleFiles(paths []string, out io.Writer) error {
	failed := 0
	for _, path := range paths {
		set, err := ruleset.LoadFile(path)
		if err != nil {
			failed++
			fmt.Fprint(out, pterm.Error.Sprintfln("%s: %v", path, err))
			continue
		}
		if len(set.Rules) == 0 {
			failed++
			fmt.Fprint(out, pterm.Error.Sprintfln("%s: no usable rules", path))
			continue
		}
		fmt.Fprint(out, pterm.Success.Sprintfln("%s: %d rule(s)", path, len(set.Rules)))
		if set.Dropped > 0 {
			fmt.Fprint(out, pterm.Warning.Sprintfln("%s: skipped %d rule(s) without a name or query", path, set.Dropped))
		}
	}
	if failed > 0 {
		return errors.NewInvalidRequestError("%d of %d rule file(s) invalid", failed, len(paths))
	}
	return nil
}

func fetchRuleFile(ctx context.Context, src, dir string, out io.Writer) error {
	path, set, err := ruleset.Fetch(ctx, src, dir, logger.ComponentLogger("rules.fetch"))
	if err != nil {
		return err
	}
	fmt.Fprint(out, pterm.Success.Sprintfln("Saved %s (%d rule(s))", path, len(set.Rules)))
	return nil
}
