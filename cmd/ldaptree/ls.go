package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/isometry/ldaptree/internal/directory"
)

func newLsCommand(a *app) *cobra.Command {
	var (
		selector string
		count    bool
	)

	cmd := &cobra.Command{
		Use:   "ls [name]",
		Short: "List the children of an entry",
		Long: `List the immediate children of an entry. With --type only children named
by that attribute are listed; otherwise every child type is listed in turn.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			base, rdn, err := a.split(name)
			if err != nil {
				return err
			}
			return ls(cmd.Context(), a.stdout, a.dir, base, rdn, selector, count, a.entryOptions()...)
		},
	}

	cmd.Flags().StringVarP(&selector, "type", "t", "", "naming attribute of the children to list, such as uid or ou")
	cmd.Flags().BoolVarP(&count, "count", "c", false, "print only the number of children")
	return cmd
}

func ls(ctx context.Context, w io.Writer, dir directory.Directory, base, rdn, selector string, count bool, opts ...directory.Option) error {
	var collections []*directory.Collection
	if selector != "" {
		collections = append(collections, directory.NewCollection(dir, base, rdn, selector, opts...))
	} else {
		parent, err := directory.Open(ctx, dir, base, rdn, opts...)
		if err != nil {
			return err
		}
		defer parent.Discard()

		if collections, err = parent.Children(ctx); err != nil {
			return err
		}
	}

	total := 0
	for _, c := range collections {
		n, err := list(ctx, w, c, count)
		if err != nil {
			return err
		}
		total += n
	}

	if count {
		_, err := fmt.Fprintln(w, total)
		return err
	}
	return nil
}

func list(ctx context.Context, w io.Writer, c *directory.Collection, countOnly bool) (n int, err error) {
	defer func() {
		err = errors.Join(err, c.Close(ctx))
	}()

	if countOnly {
		return c.Count(ctx)
	}

	if err := c.Rewind(ctx); err != nil {
		return 0, err
	}
	for ; c.Valid(); n++ {
		if _, err := fmt.Fprintln(w, c.Key()); err != nil {
			return n, err
		}
		if err := c.Next(ctx); err != nil {
			return n, err
		}
	}
	return n, nil
}
