/*
Package directory is a mutable, lazily loaded projection over a directory
tree.

An Entry is one node addressed by a base DN and a relative name. Its
attributes are loaded on first access into a change set; writes are recorded
locally and reach the directory only on Save, reduced to at most one request
per change bucket (add, then delete, then replace). A bucket is committed
locally only after its own request succeeds, so a failed Save can be retried
and resumes where it stopped.

A Collection iterates the children of one entry that share a naming
attribute ("uid" under "ou=People"). In live mode an edited entry is saved
before the cursor moves on; in deferred mode edited entries are kept until
Flush or Close.

	err := directory.WithEntry(ctx, dir, "ou=People,dc=example,dc=com", "uid=alice",
		func(e *directory.Entry) error {
			return e.Set(ctx, "mail", "alice@example.com")
		})

Nothing here is safe for concurrent use; each Entry and Collection belongs to
one goroutine.
*/
package directory
