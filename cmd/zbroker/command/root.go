package command

// root.go defines the root command and the flags shared by all subcommands.

import (
	"fmt"
	"os"

	"github.com/dermesser/zbroker/config"
	"github.com/dermesser/zbroker/log"

	"github.com/spf13/cobra"
)

var (
	envFile  string // .env file with ZBROKER_* settings
	logLevel string // overrides ZBROKER_LOG_LEVEL
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "zbroker",
	Short: "zbroker - encrypted request/reply broker",
	Long: `zbroker routes encrypted JSON commands from clients to a pool of workers
and returns each worker's reply to the client that asked.

Settings are read from ZBROKER_* environment variables, optionally from a .env
file (see --env-file). Use "zbroker command --help" for details on a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with ZBROKER_* settings (ignored if missing)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "none, error, warn, info or debug")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFile)

	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, component string) (*log.Logger, error) {
	ll, err := log.ParseLevel(cfg.LogLevel)

	if err != nil {
		return nil, err
	}
	return log.NewStderr(component, ll, cfg.LogFormat), nil
}
