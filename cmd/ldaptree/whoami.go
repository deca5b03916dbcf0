package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWhoAmICommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the identity the server associates with this connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.client.WhoAmI(cmd.Context())
			if err != nil {
				return err
			}
			if id == "" {
				id = "anonymous"
			}
			_, err = fmt.Fprintln(a.stdout, id)
			return err
		},
	}
}
