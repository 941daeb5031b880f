package engine

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/logger"
)

// Placeholders substituted into each argument of a command engine
const (
	PlaceholderQuery        = "{query}"
	PlaceholderInputFormat  = "{input_format}"
	PlaceholderOutputFormat = "{output_format}"
)

// CommandEngine runs an external program once per query. The query and
// formats are substituted into the argument list and the dataset view is
// written to the program's stdin. A zero exit status is success and stdout
// is the result.
type CommandEngine struct {
	argv        []string
	parallelism int
	logger      *zap.SugaredLogger
}

// NewCommandEngine parses commandLine with shell quoting rules, e.g.
//
//	zq -i {input_format} -f {output_format} {query} -
func NewCommandEngine(commandLine string, opts Options) (*CommandEngine, error) {
	opts = opts.withDefaults()

	argv, err := shellquote.Split(commandLine)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "cannot parse engine command %q: %v", commandLine, err)
	}
	if len(argv) == 0 {
		return nil, errors.NewInvalidRequestError("engine command is empty")
	}

	resolved, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, errors.WithHint(
			errors.NewNotFoundError("engine command %s", argv[0]),
			"scanner.engine_path must be a .wasm module or a command on PATH")
	}
	argv[0] = resolved

	opts.Logger.Infow("Command query engine ready",
		"command", argv[0],
		"parallelism", opts.Parallelism,
	)
	return &CommandEngine{argv: argv, parallelism: opts.Parallelism, logger: opts.Logger}, nil
}

// RunBatch runs every spec with at most parallelism processes at once
func (c *CommandEngine) RunBatch(ctx context.Context, specs []QuerySpec) ([]BatchItemResult, error) {
	defer closeInputs(specs)

	results := make([]BatchItemResult, len(specs))

	g := new(errgroup.Group)
	g.SetLimit(c.parallelism)
	for i, spec := range specs {
		g.Go(func() error {
			results[i] = c.runOne(ctx, spec)
			return nil
		})
	}
	_ = g.Wait()

	// Processes killed by teardown do not produce meaningful per-query errors
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "batch interrupted")
	}
	return results, nil
}

func (c *CommandEngine) runOne(ctx context.Context, spec QuerySpec) BatchItemResult {
	if err := ctx.Err(); err != nil {
		return BatchItemResult{Index: spec.Index, Error: err.Error()}
	}

	replacer := strings.NewReplacer(
		PlaceholderQuery, spec.Query,
		PlaceholderInputFormat, spec.InputFormat,
		PlaceholderOutputFormat, spec.OutputFormat,
	)
	args := make([]string, len(c.argv)-1)
	for i, arg := range c.argv[1:] {
		args[i] = replacer.Replace(arg)
	}

	cmd := exec.CommandContext(ctx, c.argv[0], args...)
	if spec.Input != nil {
		cmd.Stdin = spec.Input
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		logger.LoggerFromContext(ctx, c.logger).Debugw("Query failed", "index", spec.Index, logger.FieldError, msg)
		return BatchItemResult{Index: spec.Index, Error: msg}
	}

	data := stdout.String()
	return BatchItemResult{
		Index:   spec.Index,
		Success: true,
		HasData: strings.TrimSpace(data) != "",
		Data:    data,
	}
}

// Close is a no-op; processes do not outlive RunBatch
func (c *CommandEngine) Close() error {
	return nil
}
