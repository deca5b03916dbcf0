package directory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func treeDirectory() *memDirectory {
	return newMemDirectory(
		testBase,
		people,
		"uid=alice,"+people,
		"cn=laptop,uid=alice,"+people,
		"ou=Groups,"+testBase,
		"cn=admins,ou=Groups,"+testBase,
	)
}

func TestWalk(t *testing.T) {
	tests := []struct {
		name     string
		maxDepth int
		skip     string
		want     []string
	}{
		{
			name:     "unlimited",
			maxDepth: -1,
			want: []string{
				"0 " + testBase,
				"1 " + people,
				"2 uid=alice," + people,
				"3 cn=laptop,uid=alice," + people,
				"1 ou=Groups," + testBase,
				"2 cn=admins,ou=Groups," + testBase,
			},
		},
		{
			name:     "depth one",
			maxDepth: 1,
			want: []string{
				"0 " + testBase,
				"1 " + people,
				"1 ou=Groups," + testBase,
			},
		},
		{
			name:     "root only",
			maxDepth: 0,
			want:     []string{"0 " + testBase},
		},
		{
			name:     "skip people",
			maxDepth: -1,
			skip:     people,
			want: []string{
				"0 " + testBase,
				"1 " + people,
				"1 ou=Groups," + testBase,
				"2 cn=admins,ou=Groups," + testBase,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			root, err := Open(ctx, treeDirectory(), testBase, "")
			require.NoError(t, err)

			var got []string
			err = Walk(ctx, root, tt.maxDepth, func(_ context.Context, e *Entry, depth int) error {
				got = append(got, fmt.Sprintf("%d %s", depth, e.DN()))
				if e.DN() == tt.skip {
					return SkipChildren
				}
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWalk_StopsOnError(t *testing.T) {
	ctx := context.Background()
	root, err := Open(ctx, treeDirectory(), testBase, "")
	require.NoError(t, err)

	errStop := errors.New("stop")
	visited := 0
	err = Walk(ctx, root, -1, func(_ context.Context, e *Entry, _ int) error {
		visited++
		if e.RDN() == "uid=alice" {
			return errStop
		}
		return nil
	})

	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 3, visited)
}

func TestWalk_SavesEdits(t *testing.T) {
	ctx := context.Background()
	dir := treeDirectory()
	root, err := Open(ctx, dir, testBase, "")
	require.NoError(t, err)

	err = Walk(ctx, root, -1, func(ctx context.Context, e *Entry, depth int) error {
		if depth == 2 {
			return e.Set(ctx, "description", "visited")
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"visited"}, dir.find("uid=alice," + people).attrs["description"])
	assert.Equal(t, []string{"visited"}, dir.find("cn=admins,ou=Groups," + testBase).attrs["description"])
}
