package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/ldaptree/internal/ldap"
)

type recordedOp struct {
	op     string
	failed bool
}

type recordingMetrics struct {
	ops     []recordedOp
	changes map[string]int
}

func (m *recordingMetrics) RecordOperation(op string, _ time.Duration, err error) {
	m.ops = append(m.ops, recordedOp{op: op, failed: err != nil})
}

func (m *recordingMetrics) RecordChanges(bucket string, count int) {
	if m.changes == nil {
		m.changes = map[string]int{}
	}
	m.changes[bucket] += count
}

func TestInstrument(t *testing.T) {
	ctx := context.Background()
	rec := &recordingMetrics{}
	dir := Instrument(peopleDirectory(), rec)

	e, err := Open(ctx, dir, people, "uid=alice", WithMetrics(rec))
	require.NoError(t, err)
	require.NoError(t, e.Set(ctx, "mail", "alice@x.org"))
	require.NoError(t, e.Unset(ctx, "uid"))
	require.NoError(t, e.Save(ctx))

	_, err = Open(ctx, dir, people, "uid=nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = dir.SearchWithPaging(ctx, &ldap.SearchRequest{BaseDN: people, Filter: "(uid=*)"})
	require.NoError(t, err)

	require.NoError(t, dir.Add(ctx, &ldap.AddRequest{
		DN:         "uid=carol," + people,
		Attributes: []ldap.Attribute{{Name: "uid", Values: []string{"carol"}}},
	}))

	assert.Equal(t, []recordedOp{
		{op: "search"},               // probe
		{op: "search"},               // baseline
		{op: "modify"},               // add bucket
		{op: "modify"},               // delete bucket
		{op: "search", failed: true}, // missing entry
		{op: "search"},
		{op: "add"},
	}, rec.ops)
	assert.Equal(t, map[string]int{"add": 1, "delete": 1}, rec.changes)
}
