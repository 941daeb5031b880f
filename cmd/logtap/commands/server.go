package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/logtap/logger"
	"github.com/teranos/logtap/server"
)

// ServerCmd starts the WebSocket scan host
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Serve scans over WebSocket",
	Long: `Start the LogTap scan host.

  GET    /ws/scan               one scan channel per connection
  GET    /api/rules             predefined rule files
  GET    /api/rules/{file}      rules of one file
  GET    /api/datasets          stored datasets
  POST   /api/datasets          store the body under a generated key
  PUT    /api/datasets/{key}    store the body under key
  GET    /api/datasets/{key}    read a dataset
  DELETE /api/datasets/{key}    delete a dataset`,
	RunE: runServer,
}

func init() {
	ServerCmd.Flags().Int("port", 0, "Port to listen on (default: server.port)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// The server logs at info unless asked for more
	if verbosity, _ := cmd.Flags().GetCount("verbose"); verbosity == 0 {
		logger.SetVerbosity(logger.VerbosityInfo)
	}

	port, _ := cmd.Flags().GetInt("port")
	if port == 0 {
		port = cfg.Server.Port
	}

	store, database, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	srv, err := server.New(server.Options{
		Config: cfg,
		Store:  store,
		Logger: logger.ComponentLogger("server"),
	})
	if err != nil {
		return err
	}

	pterm.DefaultHeader.WithFullWidth().Printf("LogTap scan host")
	pterm.Info.Printfln("WebSocket: ws://localhost:%d/ws/scan", port)
	pterm.Info.Printfln("Engine:    %s", cfg.Scanner.EnginePath)
	pterm.Info.Printfln("Database:  %s", cfg.Database.Path)
	pterm.Info.Printfln("Rules:     %s", cfg.Rules.Dir)
	pterm.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Start(ctx, port)
}
