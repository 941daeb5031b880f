package commands

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teranos/logtap/blobstore"
	"github.com/teranos/logtap/engine"
	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/logger"
	"github.com/teranos/logtap/ruleset"
	"github.com/teranos/logtap/scanner"
	"github.com/teranos/logtap/scanner/protocol"
)

// ScanCmd runs a rule file against a log file or a stored dataset
var ScanCmd = &cobra.Command{
	Use:   "scan [file|-]",
	Short: "Scan a log file or a stored dataset with a rule file",
	Long: `Run every rule against the dataset and report the rules whose query
produced output.

The dataset is a file argument ("-" reads stdin), or a dataset stored with
'logtap data put' selected by --key. --stage stores the file first and scans
the stored copy, which keeps memory flat for large logs.

Rules come from --rules (a path, or a file name inside rules.dir) and any
number of --rule "Name=query" flags.

Press Ctrl+C once to cancel after the current batch, twice to abort.

Examples:
  logtap scan -r ssh_auth.yaml /var/log/auth.log
  logtap scan -r web_attacks.yaml --key nginx
  cat app.log | logtap scan --rule "Errors=level == 'error'" -
  logtap scan -r ssh_auth.yaml --stage big.log --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

var (
	scanRulesFile   string
	scanRuleFlags   []string
	scanKey         string
	scanStage       bool
	scanInputFormat string
	scanEngine      string
	scanJSON        bool
)

func init() {
	ScanCmd.Flags().StringVarP(&scanRulesFile, "rules", "r", "", "Rule file (path, or name inside rules.dir)")
	ScanCmd.Flags().StringArrayVar(&scanRuleFlags, "rule", nil, `Extra rule as "Name=query" (repeatable)`)
	ScanCmd.Flags().StringVarP(&scanKey, "key", "k", "", "Scan the stored dataset with this key")
	ScanCmd.Flags().BoolVar(&scanStage, "stage", false, "Store the file as a dataset and scan the stored copy")
	ScanCmd.Flags().StringVarP(&scanInputFormat, "input-format", "f", "line", "Input format passed to the query engine")
	ScanCmd.Flags().StringVarP(&scanEngine, "engine", "e", "", "Query engine (*.wasm module or command line); overrides scanner.engine_path")
	ScanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print raw events as JSON lines")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rules, err := collectRules(cfg.Rules.Dir, scanRulesFile, scanRuleFlags, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// A store is only opened when a stored dataset is involved
	var store *blobstore.Store
	if scanKey != "" || scanStage {
		s, database, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		store = s
	}

	start, cleanup, err := buildStart(ctx, datasetChoice{
		Key:         scanKey,
		Stage:       scanStage,
		InputFormat: scanInputFormat,
	}, cmd.InOrStdin(), args, rules, store)
	if err != nil {
		return err
	}
	defer cleanup()

	sc, err := scanner.ConfigFromAm(cfg.Scanner)
	if err != nil {
		return err
	}
	engOpts := engine.OptionsFromConfig(cfg.Scanner)
	engOpts.Logger = logger.ComponentLogger("engine")

	opts := scanner.WorkerOptions{
		EnginePath: firstNonEmpty(scanEngine, cfg.Scanner.EnginePath),
		Factory:    scanner.DefaultEngineFactory(engOpts),
		Config:     sc,
		Logger:     logger.ComponentLogger("scan"),
	}
	if store != nil {
		opts.Store = store
	}

	var sink eventSink
	if scanJSON {
		sink = newJSONSink(cmd.OutOrStdout())
	} else {
		sink = newPrettySink(cmd.OutOrStdout(), len(rules))
	}

	interrupts := make(chan os.Signal, 2)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)

	outcome, err := executeScan(ctx, opts, start, sink, interrupts)
	if err != nil {
		return err
	}
	return outcome.err()
}

// collectRules merges the rule file and --rule flags. Warnings about dropped
// entries go to warn.
func collectRules(rulesDir, file string, flags []string, warn io.Writer) ([]protocol.Rule, error) {
	var rules []protocol.Rule

	if file != "" {
		path, err := resolveRuleFile(rulesDir, file)
		if err != nil {
			return nil, err
		}
		set, err := ruleset.LoadFile(path)
		if err != nil {
			return nil, err
		}
		if set.Dropped > 0 {
			printWarning(warn, "%s: skipped %d rule(s) without a name or query", file, set.Dropped)
		}
		rules = append(rules, set.Rules...)
	}

	for _, f := range flags {
		rule, err := parseRuleFlag(f)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	if len(rules) == 0 {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("no rules to run"),
			`Pass a rule file with --rules or a rule with --rule "Name=query"`,
		)
	}
	return rules, nil
}

// resolveRuleFile accepts a path, or a bare file name inside rulesDir
func resolveRuleFile(rulesDir, file string) (string, error) {
	if _, err := os.Stat(file); err == nil {
		return file, nil
	}
	if rulesDir != "" {
		if path, err := ruleset.Lookup(rulesDir, file); err == nil {
			return path, nil
		}
	}
	return "", errors.WithHintf(
		errors.NewNotFoundError("rule file %s", file),
		"Run 'logtap rules ls' to see the rule files in %s", rulesDir,
	)
}

// parseRuleFlag splits "Name=query" at the first '='
func parseRuleFlag(s string) (protocol.Rule, error) {
	name, query, ok := strings.Cut(s, "=")
	name, query = strings.TrimSpace(name), strings.TrimSpace(query)
	if !ok || name == "" || query == "" {
		return protocol.Rule{}, errors.NewInvalidRequestError(`--rule %q must look like "Name=query"`, s)
	}
	return protocol.Rule{Name: name, Query: query}, nil
}

// datasetChoice is what the scan flags say about the dataset
type datasetChoice struct {
	Key         string
	Stage       bool
	InputFormat string
}

// buildStart chooses the dataset for the scan. The returned cleanup removes
// a dataset staged for this scan only.
func buildStart(ctx context.Context, choice datasetChoice, stdin io.Reader, args []string, rules []protocol.Rule, store *blobstore.Store) (protocol.Start, func(), error) {
	noop := func() {}

	if choice.Key != "" {
		if len(args) > 0 {
			return protocol.Start{}, noop, errors.NewInvalidRequestError("pass either a file or --key, not both")
		}
		ok, err := store.Has(ctx, choice.Key)
		if err != nil {
			return protocol.Start{}, noop, err
		}
		if !ok {
			return protocol.Start{}, noop, errors.WithHint(
				errors.NewNotFoundError("dataset %s", choice.Key),
				"Run 'logtap data ls' to see stored datasets",
			)
		}
		return protocol.StartStored(rules, choice.InputFormat, choice.Key), noop, nil
	}

	if len(args) == 0 {
		return protocol.Start{}, noop, errors.WithHint(
			errors.NewInvalidRequestError("no dataset to scan"),
			`Pass a log file, "-" for stdin, or --key for a stored dataset`,
		)
	}

	src, closeSrc, err := openInput(stdin, args[0])
	if err != nil {
		return protocol.Start{}, noop, err
	}
	defer closeSrc()

	if choice.Stage {
		key := "scan-" + uuid.NewString()
		if _, err := store.PutStream(ctx, key, src); err != nil {
			return protocol.Start{}, noop, err
		}
		cleanup := func() {
			if err := store.Delete(context.Background(), key); err != nil {
				logger.Warnw("Failed to remove staged dataset", logger.FieldDatasetKey, key, logger.FieldError, err)
			}
		}
		return protocol.StartStored(rules, choice.InputFormat, key), cleanup, nil
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return protocol.Start{}, noop, errors.Wrapf(err, "failed to read %s", args[0])
	}
	return protocol.StartInMemory(rules, choice.InputFormat, string(data)), noop, nil
}

// openInput opens a file argument; "-" is stdin
func openInput(stdin io.Reader, name string) (io.Reader, func(), error) {
	if name == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(name)
	if os.IsNotExist(err) {
		return nil, nil, errors.NewNotFoundError("log file %s", name)
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open %s", name)
	}
	return f, func() { f.Close() }, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
