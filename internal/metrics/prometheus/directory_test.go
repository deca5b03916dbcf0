package prometheus

import (
	"errors"
	"testing"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDirectoryMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newDirectoryMetrics(reg)

	m.RecordOperation("modify", 10*time.Millisecond, nil)
	m.RecordOperation("modify", 20*time.Millisecond, goldap.NewError(goldap.LDAPResultNoSuchObject, errors.New("gone")))
	m.RecordOperation("search", time.Millisecond, nil)
	m.RecordChanges("replace", 2)
	m.RecordChanges("replace", 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("modify", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("modify", "not_found")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.changesTotal.WithLabelValues("replace")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.operationDuration))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "success", status(nil))
	assert.Equal(t, "unknown", status(errors.New("boom")))
}
