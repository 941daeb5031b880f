package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/logtap/blobstore"
)

// DataCmd manages datasets in the blob store
var DataCmd = &cobra.Command{
	Use:   "data",
	Short: "Manage stored datasets",
	Long: `Store log datasets once and scan them by key.

Stored datasets are streamed to the query engine in chunks, so they can be
much larger than what fits in a single in-memory scan.

Examples:
  logtap data put access.log --key nginx   # Store a file under a key
  cat app.log | logtap data put -          # Store stdin under a generated key
  logtap data ls                           # List stored datasets
  logtap data get nginx | head             # Print a dataset
  logtap data rm nginx                     # Delete a dataset`,
}

var dataPutCmd = &cobra.Command{
	Use:   "put <file|->",
	Short: "Store a file (or stdin) as a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store *blobstore.Store) error {
			key, _ := cmd.Flags().GetString("key")
			return putDataset(ctx, store, cmd.InOrStdin(), args[0], key, cmd.OutOrStdout())
		})
	},
}

var dataGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a stored dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store *blobstore.Store) error {
			return getDataset(ctx, store, args[0], cmd.OutOrStdout())
		})
	},
}

var dataRmCmd = &cobra.Command{
	Use:     "rm <key>...",
	Aliases: []string{"delete"},
	Short:   "Delete stored datasets",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store *blobstore.Store) error {
			for _, key := range args {
				if err := store.Delete(ctx, key); err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), pterm.Success.Sprintfln("Deleted %s", key))
			}
			return nil
		})
	},
}

var dataLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List stored datasets",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store *blobstore.Store) error {
			return listDatasets(ctx, store, cmd.OutOrStdout())
		})
	},
}

func init() {
	dataPutCmd.Flags().String("key", "", "Dataset key (default: a generated UUID)")

	DataCmd.AddCommand(dataPutCmd)
	DataCmd.AddCommand(dataGetCmd)
	DataCmd.AddCommand(dataRmCmd)
	DataCmd.AddCommand(dataLsCmd)
}

// withStore opens the configured store for the duration of fn
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store *blobstore.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, database, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, store)
}

func putDataset(ctx context.Context, store *blobstore.Store, stdin io.Reader, name, key string, out io.Writer) error {
	src, closeSrc, err := openInput(stdin, name)
	if err != nil {
		return err
	}
	defer closeSrc()

	if key == "" {
		key = uuid.NewString()
	}
	size, err := store.PutStream(ctx, key, src)
	if err != nil {
		return err
	}
	fmt.Fprint(out, pterm.Success.Sprintfln("Stored %s under key %s", formatBytes(size), key))
	return nil
}

func getDataset(ctx context.Context, store *blobstore.Store, key string, out io.Writer) error {
	stream, err := store.GetStream(ctx, key)
	if err != nil {
		return err
	}
	defer stream.Close()
	_, err = io.Copy(out, stream)
	return err
}

func listDatasets(ctx context.Context, store *blobstore.Store, out io.Writer) error {
	entries, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprint(out, pterm.Info.Sprintln("No stored datasets."))
		return nil
	}

	data := pterm.TableData{{"Key", "Size", "Updated"}}
	for _, e := range entries {
		data = append(data, []string{e.Key, formatBytes(e.Size), e.UpdatedAt.Local().Format("2006-01-02 15:04:05")})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, table)
	return nil
}

// formatBytes renders n with a binary unit, e.g. "1.5 MiB"
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
