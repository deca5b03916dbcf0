package metrics

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopDirectoryMetrics(t *testing.T) {
	m := NewNoopDirectoryMetrics()

	assert.NotPanics(t, func() {
		m.RecordOperation("search", time.Second, errors.New("boom"))
		m.RecordChanges("add", 3)
	})
}

func TestWriteTextfileDisabled(t *testing.T) {
	if IsEnabled() {
		t.Skip("registry already initialised in this process")
	}

	path := filepath.Join(t.TempDir(), "ldaptree.prom")
	assert.NoError(t, WriteTextfile(path))
	assert.NoFileExists(t, path)
}
