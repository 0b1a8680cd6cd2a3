package command

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dermesser/zbroker/client"
	"github.com/dermesser/zbroker/dispatcher"
	smgr "github.com/dermesser/zbroker/securitymanager"

	"github.com/spf13/cobra"
)

const (
	STRATEGY_POLL     = "poll"
	STRATEGY_RCVTIMEO = "rcvtimeo"
)

var (
	requestStrategy string
	requestCommand  string
	requestParams   []string
	requestName     string
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Send one command to a broker and print the reply",
	Long: `Send one command to the broker at ZBROKER_HOST:ZBROKER_PORT and print the
reply as JSON. Parameters are given as --param key=value; values that parse as
JSON (numbers, true, lists...) are sent as such, everything else as a string.

Strategies:
  poll      resend on a fresh connection up to ZBROKER_RETRIES times
  rcvtimeo  send once, wait at most ZBROKER_TIMEOUT`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(requestParams)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg, "zbroker-client")
		if err != nil {
			return err
		}

		cipher, err := smgr.LoadCipher(cfg.Cipher, cfg.KeyFile)
		if err != nil {
			return fmt.Errorf("load key: %w", err)
		}

		var reply dispatcher.Reply

		switch requestStrategy {
		case STRATEGY_POLL:
			cl, err := client.NewClientFromConfig(requestName, cfg, cipher, logger)
			if err != nil {
				return err
			}
			defer cl.Close()
			reply, err = cl.Request(requestCommand, params)
			if err != nil {
				return err
			}
		case STRATEGY_RCVTIMEO:
			cl, err := client.NewTimeoutClientFromConfig(requestName, cfg, cipher, logger)
			if err != nil {
				return err
			}
			reply, err = cl.Request(requestCommand, params)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown strategy %q (want %s or %s)", requestStrategy, STRATEGY_POLL, STRATEGY_RCVTIMEO)
		}

		out, err := json.MarshalIndent(reply, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	requestCmd.Flags().StringVar(&requestStrategy, "strategy", STRATEGY_POLL, "poll or rcvtimeo")
	requestCmd.Flags().StringVarP(&requestCommand, "command", "c", "", "command to run, e.g. getdata_1")
	requestCmd.Flags().StringArrayVarP(&requestParams, "param", "p", nil, "request parameter key=value (repeatable)")
	requestCmd.Flags().StringVar(&requestName, "name", "", "client name used in log lines")
	requestCmd.MarkFlagRequired("command")

	rootCmd.AddCommand(requestCmd)
}

func parseParams(kvs []string) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(kvs))

	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("bad parameter %q, want key=value", kv)
		}

		var decoded interface{}
		if err := dispatcher.DecodeJSON([]byte(value), &decoded); err == nil {
			params[key] = decoded
		} else {
			params[key] = value
		}
	}
	return params, nil
}
