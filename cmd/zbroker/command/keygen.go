package command

import (
	"fmt"
	"os"

	smgr "github.com/dermesser/zbroker/securitymanager"

	"github.com/spf13/cobra"
)

var (
	keyOut   string
	keySize  int
	keyForce bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a shared key file",
	Long: `Generate a random key and write it base64-encoded to a file readable only by
its owner. Brokers and clients need the same key file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keyOut == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			keyOut = cfg.KeyFile
		}

		if _, err := os.Stat(keyOut); err == nil && !keyForce {
			return fmt.Errorf("%s exists; use --force to overwrite it", keyOut)
		}

		key, err := smgr.GenerateKey(keySize)
		if err != nil {
			return err
		}
		// Every size usable with aes-cbc; 32 also fits xchacha20poly1305
		if _, err = smgr.NewAESCipher(key); err != nil {
			return err
		}
		if err = smgr.WriteKey(keyOut, key); err != nil {
			return fmt.Errorf("write key: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d byte key to %s\n", keySize, keyOut)
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVarP(&keyOut, "out", "o", "", "key file (default: ZBROKER_KEY_FILE)")
	keygenCmd.Flags().IntVar(&keySize, "size", smgr.DEFAULT_KEY_SIZE, "key size in bytes (16, 24 or 32 for aes-cbc, 32 for xchacha20poly1305)")
	keygenCmd.Flags().BoolVarP(&keyForce, "force", "f", false, "overwrite an existing key file")

	rootCmd.AddCommand(keygenCmd)
}
