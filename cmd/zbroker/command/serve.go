package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dermesser/zbroker/config"
	"github.com/dermesser/zbroker/dispatcher"
	"github.com/dermesser/zbroker/handlers"
	"github.com/dermesser/zbroker/log"
	smgr "github.com/dermesser/zbroker/securitymanager"
	"github.com/dermesser/zbroker/server"

	"github.com/spf13/cobra"
)

var (
	serveHost    string
	servePort    uint
	serveWorkers uint
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broker and its workers",
	Long: `Run the broker and its workers until SIGINT or SIGTERM.

SIGUSR1 puts the server into lameduck mode (__health fails, requests are still
served), SIGUSR2 takes it out again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err = applyServeFlags(cmd, cfg); err != nil {
			return err
		}

		logger, err := newLogger(cfg, "zbroker")
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runServer(ctx, cfg, logger)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "bind address (overrides ZBROKER_HOST)")
	serveCmd.Flags().UintVar(&servePort, "port", 0, "bind port (overrides ZBROKER_PORT)")
	serveCmd.Flags().UintVar(&serveWorkers, "workers", 0, "number of workers (overrides ZBROKER_WORKERS)")

	rootCmd.AddCommand(serveCmd)
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("host") {
		cfg.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = serveWorkers
	}
	return cfg.Validate()
}

func runServer(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	cipher, err := smgr.LoadCipher(cfg.Cipher, cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}

	d := dispatcher.New(cfg, logger)
	if err = handlers.Register(d); err != nil {
		return err
	}

	srv, err := server.NewServer(cfg, cipher, d, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	if err = writePidFile(cfg.PidFile); err != nil {
		return err
	}
	defer removePidFile(cfg.PidFile)

	lameduck := make(chan os.Signal, 1)
	signal.Notify(lameduck, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(lameduck)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-lameduck:
				srv.SetLameduck(sig == syscall.SIGUSR1)
				logger.Log(log.LOGLEVEL_INFO, "Lameduck mode:", sig == syscall.SIGUSR1)
			}
		}
	}()

	logger.Log(log.LOGLEVEL_INFO, "Serving", cipher.Name(), "requests on", srv.Endpoint(), "with", cfg.Workers, "workers")
	return srv.Serve(ctx)
}
