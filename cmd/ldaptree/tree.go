package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/isometry/ldaptree/internal/directory"
)

func newTreeCommand(a *app) *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "tree [name]",
		Short: "Print the subtree below an entry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			base, rdn, err := a.split(name)
			if err != nil {
				return err
			}
			return tree(cmd.Context(), a.stdout, a.dir, base, rdn, depth, a.entryOptions()...)
		},
	}

	cmd.Flags().IntVarP(&depth, "depth", "d", -1, "maximum depth below the starting entry; negative for no limit")
	return cmd
}

func tree(ctx context.Context, w io.Writer, dir directory.Directory, base, rdn string, depth int, opts ...directory.Option) error {
	root, err := directory.Open(ctx, dir, base, rdn, opts...)
	if err != nil {
		return err
	}
	defer root.Discard()

	return directory.Walk(ctx, root, depth, func(_ context.Context, e *directory.Entry, level int) error {
		label := e.RDN()
		if level == 0 {
			label = e.DN()
		}
		_, err := fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", level), label)
		return err
	})
}
