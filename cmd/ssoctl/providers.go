package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProvidersCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := root.conversionClient()
			if err != nil {
				return err
			}
			defer client.Close()

			formats := make(map[string]string, len(root.config.Providers))
			for _, p := range root.config.Providers {
				formats[p.Name] = string(p.Format)
			}

			w := cmd.OutOrStdout()
			def := client.DefaultProvider()
			for _, name := range client.Providers() {
				marker := " "
				if name == def {
					marker = "*"
				}
				fmt.Fprintf(w, "%s %-16s %s\n", marker, name, formats[name])
			}
			return nil
		},
	}
}
