package metrics

import "time"

// DirectoryMetrics records directory round trips and applied changes.
type DirectoryMetrics interface {
	// RecordOperation records one directory request: op is "search",
	// "add" or "modify".
	RecordOperation(op string, duration time.Duration, err error)

	// RecordChanges records count attribute changes applied in one bucket
	// ("create", "add", "delete", "replace").
	RecordChanges(bucket string, count int)
}

type noopDirectoryMetrics struct{}

// NewNoopDirectoryMetrics returns a DirectoryMetrics that discards everything.
func NewNoopDirectoryMetrics() DirectoryMetrics {
	return noopDirectoryMetrics{}
}

func (noopDirectoryMetrics) RecordOperation(string, time.Duration, error) {}

func (noopDirectoryMetrics) RecordChanges(string, int) {}
