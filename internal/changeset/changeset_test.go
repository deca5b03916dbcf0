package changeset

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/ldaptree/internal/nested"
)

func aliceBaseline() map[string][]string {
	return map[string][]string{
		"cn":   {"Alice"},
		"mail": {"a@x.org"},
	}
}

func TestChangeSet_SetNewAttributeGoesToAdd(t *testing.T) {
	cs := New("uid=alice", aliceBaseline())

	cs.Set("telephoneNumber", "555-0100")

	assert.Equal(t, []string{"555-0100"}, cs.Get("telephoneNumber"))
	assert.True(t, cs.Exists("telephoneNumber"))
	assert.Equal(t, Batch{
		{Kind: ChangeAdd, Attribute: "telephoneNumber", Values: []string{"555-0100"}},
	}, cs.Diff())
}

func TestChangeSet_SetExistingAttributeGoesToReplace(t *testing.T) {
	cs := New("uid=alice", aliceBaseline())

	cs.Set("mail", "b@x.org")

	assert.Equal(t, Batch{
		{Kind: ChangeReplace, Attribute: "mail", Values: []string{"b@x.org"}},
	}, cs.Diff())
	assert.Equal(t, []string{"a@x.org"}, cs.Baseline()["mail"], "baseline must not move before commit")
	assert.Equal(t, []string{"b@x.org"}, cs.Get("mail"))
}

func TestChangeSet_Unset(t *testing.T) {
	cs := New("uid=alice", aliceBaseline())

	cs.Unset("cn")

	assert.False(t, cs.Exists("cn"))
	assert.Nil(t, cs.Get("cn"))
	assert.Equal(t, Delete, cs.State("cn"))
	assert.Equal(t, Batch{{Kind: ChangeDelete, Attribute: "cn"}}, cs.Diff())
}

func TestChangeSet_LastWriteWins(t *testing.T) {
	tests := []struct {
		name     string
		apply    func(cs *ChangeSet)
		expected Batch
	}{
		{
			name: "set then unset",
			apply: func(cs *ChangeSet) {
				cs.Set("mail", "b@x.org")
				cs.Unset("mail")
			},
			expected: Batch{{Kind: ChangeDelete, Attribute: "mail"}},
		},
		{
			name: "unset then set",
			apply: func(cs *ChangeSet) {
				cs.Unset("mail")
				cs.Set("mail", "c@x.org")
			},
			expected: Batch{{Kind: ChangeReplace, Attribute: "mail", Values: []string{"c@x.org"}}},
		},
		{
			name: "set twice",
			apply: func(cs *ChangeSet) {
				cs.Set("mail", "b@x.org", "bb@x.org")
				cs.Set("mail", "c@x.org")
			},
			expected: Batch{{Kind: ChangeReplace, Attribute: "mail", Values: []string{"c@x.org"}}},
		},
		{
			name: "add values then set",
			apply: func(cs *ChangeSet) {
				cs.AddValues("mail", "b@x.org")
				cs.Set("mail", "c@x.org")
			},
			expected: Batch{{Kind: ChangeReplace, Attribute: "mail", Values: []string{"c@x.org"}}},
		},
		{
			name: "set then unset of a new attribute",
			apply: func(cs *ChangeSet) {
				cs.Set("description", "temp")
				cs.Unset("description")
			},
			expected: Batch{{Kind: ChangeDelete, Attribute: "description"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := New("uid=alice", aliceBaseline())
			tt.apply(cs)
			assert.Equal(t, tt.expected, cs.Diff())
		})
	}
}

func TestChangeSet_AliceScenario(t *testing.T) {
	cs := New("uid=alice", aliceBaseline())

	cs.Set("mail", "b@x.org")
	cs.Unset("cn")

	assert.Equal(t, Batch{
		{Kind: ChangeDelete, Attribute: "cn"},
		{Kind: ChangeReplace, Attribute: "mail", Values: []string{"b@x.org"}},
	}, cs.Diff())
}

func TestChangeSet_DiffBucketOrder(t *testing.T) {
	cs := New("uid=alice", map[string][]string{
		"cn":          {"Alice"},
		"mail":        {"a@x.org"},
		"sn":          {"Liddell"},
		"description": {"old"},
	})

	cs.Set("mail", "b@x.org")
	cs.Unset("sn")
	cs.Set("title", "Engineer")
	cs.Unset("description")
	cs.Set("cn", "Alice L")
	cs.AddValues("objectClass", "extensibleObject")

	diff := cs.Diff()
	assert.Equal(t, Batch{
		{Kind: ChangeAdd, Attribute: "title", Values: []string{"Engineer"}},
		{Kind: ChangeAdd, Attribute: "objectClass", Values: []string{"extensibleObject"}},
		{Kind: ChangeDelete, Attribute: "sn"},
		{Kind: ChangeDelete, Attribute: "description"},
		{Kind: ChangeReplace, Attribute: "mail", Values: []string{"b@x.org"}},
		{Kind: ChangeReplace, Attribute: "cn", Values: []string{"Alice L"}},
	}, diff)

	assert.Equal(t, []string{"sn", "description"}, diff.Bucket(ChangeDelete).Attributes())
}

func TestChangeSet_EmptyButPresentBaselineIsReplace(t *testing.T) {
	cs := New("uid=alice", map[string][]string{"seeAlso": {}})

	cs.Set("seeAlso", "cn=bob")

	assert.Equal(t, Batch{
		{Kind: ChangeReplace, Attribute: "seeAlso", Values: []string{"cn=bob"}},
	}, cs.Diff())
}

func TestChangeSet_EmptiedReplace(t *testing.T) {
	cs := New("uid=alice", aliceBaseline())

	cs.Set("description", "draft")
	require.NoError(t, cs.Attribute("description").Delete(0))
	assert.Empty(t, cs.Get("description"))
	assert.True(t, cs.Diff().Empty(), "a never-written attribute emptied again sends nothing")
	assert.False(t, cs.Dirty())

	require.NoError(t, cs.Attribute("mail").Delete(0))
	assert.Equal(t, Batch{
		{Kind: ChangeDelete, Attribute: "mail"},
	}, cs.Diff())
	assert.True(t, cs.Dirty())
}

func TestChangeSet_EmptyDiff(t *testing.T) {
	cs := New("uid=alice", aliceBaseline())

	assert.False(t, cs.Dirty())
	assert.True(t, cs.Diff().Empty())
	assert.Equal(t, []string{"cn", "mail"}, cs.Names())
}

func TestChangeSet_Names(t *testing.T) {
	cs := New("uid=alice", aliceBaseline())
	cs.Unset("cn")
	cs.Set("sn", "Liddell")

	assert.Equal(t, []string{"mail", "sn"}, cs.Names())
}

func TestChangeSet_CommitFoldsIntoBaseline(t *testing.T) {
	cs := New("uid=alice", aliceBaseline())
	cs.Set("mail", "b@x.org")
	cs.Unset("cn")
	cs.Set("sn", "Liddell")

	diff := cs.Diff()
	cs.Commit(diff.Bucket(ChangeAdd)...)

	assert.Equal(t, []string{"Liddell"}, cs.Baseline()["sn"])
	assert.Equal(t, Unchanged, cs.State("sn"))
	assert.Equal(t, Batch{
		{Kind: ChangeDelete, Attribute: "cn"},
		{Kind: ChangeReplace, Attribute: "mail", Values: []string{"b@x.org"}},
	}, cs.Diff(), "uncommitted buckets remain pending")

	cs.Commit(cs.Diff()...)

	assert.False(t, cs.Dirty())
	assert.Equal(t, map[string][]string{
		"mail": {"b@x.org"},
		"sn":   {"Liddell"},
	}, cs.Baseline())
}

func TestChangeSet_CommitAddAppends(t *testing.T) {
	cs := New("uid=alice", aliceBaseline())
	cs.AddValues("mail", "alice@x.org")

	assert.Equal(t, Batch{
		{Kind: ChangeAdd, Attribute: "mail", Values: []string{"alice@x.org"}},
	}, cs.Diff())

	cs.Commit(cs.Diff()...)
	assert.Equal(t, []string{"a@x.org", "alice@x.org"}, cs.Get("mail"))
}

func TestChangeSet_RebaseKeepsPending(t *testing.T) {
	cs := New("uid=alice", aliceBaseline())
	cs.Set("mail", "b@x.org")

	cs.Rebase(map[string][]string{"cn": {"Alice"}})

	assert.Equal(t, []string{"b@x.org"}, cs.Get("mail"))
	assert.Equal(t, Batch{
		{Kind: ChangeAdd, Attribute: "mail", Values: []string{"b@x.org"}},
	}, cs.Diff(), "bucket follows the new baseline")
}

func TestChangeSet_RevertAndReset(t *testing.T) {
	cs := New("uid=alice", aliceBaseline())
	cs.Set("mail", "b@x.org")
	cs.Unset("cn")

	cs.Revert("mail")
	assert.Equal(t, []string{"a@x.org"}, cs.Get("mail"))
	assert.Equal(t, Batch{{Kind: ChangeDelete, Attribute: "cn"}}, cs.Diff())

	cs.Reset()
	assert.False(t, cs.Dirty())
	assert.True(t, cs.Exists("cn"))
}

func TestChangeSet_GetReturnsCopy(t *testing.T) {
	cs := New("uid=alice", aliceBaseline())

	v := cs.Get("mail")
	v[0] = "mutated"

	assert.Equal(t, []string{"a@x.org"}, cs.Get("mail"))
	assert.False(t, cs.Dirty())
}

func TestChangeSet_AttributeProxy(t *testing.T) {
	cs := New("uid=alice", map[string][]string{
		"mail": {"a@x.org", "alice@x.org"},
	})

	mail := cs.Attribute("mail")
	require.NoError(t, mail.Set(1, "liddell@x.org"))
	require.NoError(t, mail.Set(2, "al@x.org"))

	assert.Equal(t, []string{"a@x.org", "liddell@x.org", "al@x.org"}, cs.Get("mail"))
	assert.Equal(t, Replace, cs.State("mail"))

	first, err := mail.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "a@x.org", first)

	require.NoError(t, mail.Delete(0))
	assert.Equal(t, []string{"liddell@x.org", "al@x.org"}, cs.Get("mail"))
}

func TestChangeSet_AttributeProxyErrors(t *testing.T) {
	cs := New("uid=alice", aliceBaseline())

	_, err := cs.Attribute("missing").Get(0)
	assert.ErrorIs(t, err, nested.ErrNotComposite)

	require.ErrorIs(t, cs.Attribute("mail").Set(0, 42), nested.ErrInvalidValue)
	assert.Equal(t, []string{"a@x.org"}, cs.Get("mail"))

	mail := cs.Attribute("mail")
	cs.Discard()
	_, err = mail.Get(0)
	assert.ErrorIs(t, err, nested.ErrDanglingProxy)
	assert.ErrorIs(t, mail.Set(0, "x"), nested.ErrDanglingProxy)
	assert.True(t, cs.Discarded())
}

func ldifLines(t *testing.T, record string, err error) []string {
	t.Helper()
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(record, "\n"), "\n")
}

func TestBatch_LDIF(t *testing.T) {
	cs := New("uid=alice", aliceBaseline())
	cs.Set("mail", "b@x.org")
	cs.Unset("cn")

	record, err := cs.Diff().LDIF("uid=alice,ou=People")
	assert.Equal(t, []string{
		"dn: uid=alice,ou=People",
		"changetype: modify",
		"delete: cn",
		"-",
		"replace: mail",
		"mail: b@x.org",
		"-",
	}, ldifLines(t, record, err))

	empty, err := Batch(nil).LDIF("uid=alice,ou=People")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestBatch_LDIFEncodesUnsafeValues(t *testing.T) {
	injected := "line1\ndn: cn=evil\nchangetype: delete"

	cs := New("uid=alice", aliceBaseline())
	cs.Set("description", injected)
	cs.Set("cn", " leading space")

	record, err := cs.Diff().LDIF("uid=alice,ou=People")
	lines := ldifLines(t, record, err)

	assert.NotContains(t, lines, "dn: cn=evil")
	assert.NotContains(t, lines, "changetype: delete")
	assert.Contains(t, lines, "description:: "+base64.StdEncoding.EncodeToString([]byte(injected)))
	assert.Contains(t, lines, "cn:: "+base64.StdEncoding.EncodeToString([]byte(" leading space")))
}

func TestBatch_AddLDIF(t *testing.T) {
	cs := New("uid=bob", nil)
	cs.Set("objectClass", "top", "inetOrgPerson")
	cs.Set("cn", "Bob")
	cs.Set("jpegPhoto", "\xff\xd8\xff")

	record, err := cs.Diff().AddLDIF("uid=bob,ou=People")
	assert.Equal(t, []string{
		"dn: uid=bob,ou=People",
		"changetype: add",
		"objectClass: top",
		"objectClass: inetOrgPerson",
		"cn: Bob",
		"jpegPhoto:: /9j/",
	}, ldifLines(t, record, err))

	empty, err := Batch{{Kind: ChangeDelete, Attribute: "cn"}}.AddLDIF("uid=bob")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestChangeKind_String(t *testing.T) {
	assert.Equal(t, "add", ChangeAdd.String())
	assert.Equal(t, "delete", ChangeDelete.String())
	assert.Equal(t, "replace", ChangeReplace.String())
	assert.Equal(t, "unknown", ChangeKind(9).String())
	assert.Equal(t, "replace", Replace.String())
}
