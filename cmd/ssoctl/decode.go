package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrEthical07/goSSO/deserializer"
	"github.com/MrEthical07/goSSO/identity"
	"github.com/spf13/cobra"
)

const maxStdinPayload = 1 << 20

type decodeResult struct {
	Provider string         `json:"provider"`
	Identity *identity.User `json:"identity,omitempty"`
	Error    string         `json:"error,omitempty"`
	Kind     string         `json:"kind,omitempty"`
	Field    string         `json:"field,omitempty"`
}

func newDecodeCmd(root *rootOptions) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "decode [payload|-]",
		Short: "Convert a payload into an identity",
		Long: `Convert a payload with the named provider and print the identity as JSON.

The payload is read from standard input when omitted or given as "-".
Conversion failures are printed with their kind and exit non-zero.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			client, err := root.conversionClient()
			if err != nil {
				return err
			}
			defer client.Close()

			res := decodeResult{Provider: provider}
			if res.Provider == "" {
				res.Provider = client.DefaultProvider()
			}

			ident, convErr := client.Deserialize(cmd.Context(), provider, payload)
			if convErr == nil {
				res.Identity, err = identity.Clone(ident)
				if err != nil {
					return err
				}
			} else {
				res.Error = convErr.Error()
				var derr *deserializer.Error
				if errors.As(convErr, &derr) {
					res.Kind = derr.Kind.String()
					res.Field = derr.Field
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if convErr != nil {
				return fmt.Errorf("conversion failed: %w", convErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "provider name (default provider when empty)")
	return cmd
}

func readPayload(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(io.LimitReader(stdin, maxStdinPayload+1))
	if err != nil {
		return "", fmt.Errorf("reading payload: %w", err)
	}
	if len(data) > maxStdinPayload {
		return "", fmt.Errorf("payload exceeds %d bytes", maxStdinPayload)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
