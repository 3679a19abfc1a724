package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"ArbusChat/internal/credential"

	"github.com/spf13/cobra"
)

func newKeyCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored Anthropic API key",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Store a new API key, replacing the current one",
		Long: `Store a new API key, replacing the current one.

The key is read without echo from the terminal, or as the first line of
standard input when it is piped in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}

			value, err := readKey(cmd)
			if err != nil {
				return err
			}
			value = strings.TrimSpace(value)

			creds, closeDB, err := openCredentials(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := creds.Set(cmd.Context(), value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key saved (fingerprint %s)\n", credential.Fingerprint(value))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether an API key is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}

			creds, closeDB, err := openCredentials(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			value, ok, err := creds.Get(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No API key stored. Run `arbuschat key set` or start a chat to add one.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key stored (fingerprint %s)\n", credential.Fingerprint(value))
			return nil
		},
	})

	return cmd
}

func readKey(cmd *cobra.Command) (string, error) {
	if read := secretReader(cmd.InOrStdin()); read != nil {
		fmt.Fprint(cmd.OutOrStdout(), "API key: ")
		value, err := read()
		fmt.Fprintln(cmd.OutOrStdout())
		return value, err
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return line, nil
}
