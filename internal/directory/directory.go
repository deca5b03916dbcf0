package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/isometry/ldaptree/internal/ldap"
	"github.com/isometry/ldaptree/internal/metrics"
)

// Directory is the part of the client the tree layer drives.
type Directory interface {
	Search(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchWithPaging(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Add(ctx context.Context, req *ldap.AddRequest) error
	Modify(ctx context.Context, req *ldap.ModifyRequest) error
}

var (
	// ErrNotFound is returned when an entry is absent and creation was not requested.
	ErrNotFound = errors.New("entry not found")

	// ErrNotImplemented is returned by rename, subtree move and indexed
	// mutation of a collection.
	ErrNotImplemented = errors.New("not implemented")

	// ErrInvalidSelector is returned by collections whose selector is not an
	// attribute type.
	ErrInvalidSelector = errors.New("invalid selector")

	// ErrEntryClosed is returned by Save after Close.
	ErrEntryClosed = errors.New("entry is closed")
)

// OperationError is a directory request that failed while saving an entry.
// Bucket is "create", "add", "delete" or "replace".
type OperationError struct {
	Bucket string
	Code   uint16
	DN     string
	Err    error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s of %s failed (code %d): %v", e.Bucket, e.DN, e.Code, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// ErrorHandler receives failures that cannot be returned, such as those of
// the save performed by Close.
type ErrorHandler func(ctx context.Context, dn string, err error)

type options struct {
	create     bool
	deferred   bool
	attributes []string
	metrics    metrics.DirectoryMetrics
	onError    ErrorHandler
}

// Option configures entries and collections.
type Option func(*options)

// WithCreate makes Open return a new, not yet existing entry instead of
// ErrNotFound. The first Save creates it.
func WithCreate() Option {
	return func(o *options) { o.create = true }
}

// Deferred disables save-before-advance on collections.
func Deferred() Option {
	return func(o *options) { o.deferred = true }
}

// WithAttributes limits the attributes loaded into an entry's baseline.
func WithAttributes(names ...string) Option {
	return func(o *options) { o.attributes = names }
}

// WithMetrics records applied change counts.
func WithMetrics(m metrics.DirectoryMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithErrorHandler sets the side channel for implicit save failures.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) { o.onError = h }
}

func buildOptions(opts []Option) options {
	o := options{
		metrics: metrics.NewNoopDirectoryMetrics(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// childOptions strips per-entry options before handing them to descendants.
func (o options) childOptions() []Option {
	inherited := o
	inherited.create = false
	return []Option{func(dst *options) { *dst = inherited }}
}

// probe reports whether dn exists.
func probe(ctx context.Context, dir Directory, dn string) (bool, error) {
	res, err := dir.Search(ctx, &ldap.SearchRequest{
		BaseDN:     dn,
		Scope:      ldap.ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{"1.1"},
	})
	if ldap.IsNoSuchObject(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(res.Entries) > 0, nil
}
