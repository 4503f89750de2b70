package main

import (
	"fmt"

	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print a random key for store.encryption_key",
	Long: `Prints a base64 AES-256 key. Set it as PARLEY_STORE_ENCRYPTION_KEY to seal
session data at rest. Move the previous key to store.fallback_keys when rotating.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := middleware.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
