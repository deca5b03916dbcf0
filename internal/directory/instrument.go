package directory

import (
	"context"
	"time"

	"github.com/isometry/ldaptree/internal/ldap"
	"github.com/isometry/ldaptree/internal/metrics"
)

type instrumented struct {
	next    Directory
	metrics metrics.DirectoryMetrics
}

// Instrument wraps dir so that every request is timed and counted in m.
func Instrument(dir Directory, m metrics.DirectoryMetrics) Directory {
	return &instrumented{next: dir, metrics: m}
}

func (d *instrumented) Search(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	start := time.Now()
	res, err := d.next.Search(ctx, req)
	d.metrics.RecordOperation("search", time.Since(start), err)
	return res, err
}

func (d *instrumented) SearchWithPaging(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	start := time.Now()
	res, err := d.next.SearchWithPaging(ctx, req)
	d.metrics.RecordOperation("search", time.Since(start), err)
	return res, err
}

func (d *instrumented) Add(ctx context.Context, req *ldap.AddRequest) error {
	start := time.Now()
	err := d.next.Add(ctx, req)
	d.metrics.RecordOperation("add", time.Since(start), err)
	return err
}

func (d *instrumented) Modify(ctx context.Context, req *ldap.ModifyRequest) error {
	start := time.Now()
	err := d.next.Modify(ctx, req)
	d.metrics.RecordOperation("modify", time.Since(start), err)
	return err
}
