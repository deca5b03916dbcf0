package directory

import (
	"context"
	"errors"
)

// SkipChildren is returned by a WalkFunc to leave an entry's children out of
// the walk. It is not returned by Walk.
var SkipChildren = errors.New("skip children")

// WalkFunc is called for each entry visited by Walk. depth is 0 for the root.
type WalkFunc func(ctx context.Context, e *Entry, depth int) error

// Walk visits root and its descendants depth-first, children grouped by
// naming attribute in the order the directory lists them. A negative
// maxDepth means no limit. Entries handed to fn are saved as the walk
// moves past them.
func Walk(ctx context.Context, root *Entry, maxDepth int, fn WalkFunc) error {
	return walk(ctx, root, 0, maxDepth, fn)
}

func walk(ctx context.Context, e *Entry, depth, maxDepth int, fn WalkFunc) error {
	if err := fn(ctx, e, depth); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}

	if maxDepth >= 0 && depth >= maxDepth {
		return nil
	}

	return walkChildren(ctx, e, depth, maxDepth, fn)
}

func walkChildren(ctx context.Context, node ChildBearing, depth, maxDepth int, fn WalkFunc) error {
	collections, err := node.Children(ctx)
	if err != nil {
		return err
	}

	for _, c := range collections {
		if err := walkCollection(ctx, c, depth, maxDepth, fn); err != nil {
			return err
		}
	}
	return nil
}

func walkCollection(ctx context.Context, c IterableScope, depth, maxDepth int, fn WalkFunc) (err error) {
	defer func() {
		err = errors.Join(err, c.Close(ctx))
	}()

	if err := c.Rewind(ctx); err != nil {
		return err
	}

	for c.Valid() {
		child, err := c.Current(ctx)
		if err != nil {
			return err
		}
		if err := walk(ctx, child, depth+1, maxDepth, fn); err != nil {
			return err
		}
		if err := c.Next(ctx); err != nil {
			return err
		}
	}
	return nil
}
