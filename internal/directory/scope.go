package directory

import (
	"context"
	"errors"
)

// ChildBearing is anything whose immediate children can be listed by naming
// attribute.
type ChildBearing interface {
	HasChildren(ctx context.Context) (bool, error)
	Children(ctx context.Context) ([]*Collection, error)
}

// IterableScope is a forward-only cursor over sibling entries.
type IterableScope interface {
	ChildBearing

	Rewind(ctx context.Context) error
	Valid() bool
	Key() string
	Current(ctx context.Context) (*Entry, error)
	Next(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Close(ctx context.Context) error
}

var (
	_ ChildBearing  = (*Entry)(nil)
	_ IterableScope = (*Collection)(nil)
)

// WithEntry opens the entry rdn below base, passes it to fn and saves it on
// every exit path. The save runs even when fn fails, and both errors are
// returned. If fn panics the entry is closed, so the save is attempted and
// any failure goes to the ErrorHandler, before the panic continues.
func WithEntry(ctx context.Context, dir Directory, base, rdn string, fn func(*Entry) error, opts ...Option) error {
	e, err := Open(ctx, dir, base, rdn, opts...)
	if err != nil {
		return err
	}

	done := false
	defer func() {
		if !done {
			e.Close(ctx)
		}
	}()

	fnErr := fn(e)
	saveErr := e.Save(ctx)
	e.Discard()
	done = true

	return errors.Join(fnErr, saveErr)
}
