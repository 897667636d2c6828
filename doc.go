/*
Package spdb provides an embedded, ordered key/value store with an explicit
handle lifecycle.

A DB owns one engine environment and, while open, one engine database. Keys
are ordered by a comparator: the default compares the common prefix bytewise
and sorts the shorter key first, and a custom CompareFunc can be installed
while the database is closed.

# Usage

	db, err := spdb.New(spdb.DefaultOptions())
	if err != nil { ... }
	defer db.Destroy()

	if _, err := db.Open("/var/lib/app/db"); err != nil { ... }
	_ = db.Set([]byte("a"), []byte("1"))

	c, err := db.Items(&spdb.ScanOptions{Order: spdb.OrderGTE})
	if err != nil { ... }
	for k, v := range c.All() {
		fmt.Printf("%s=%s\n", k, v)
	}

For runnable examples, see the repository's examples directory.

# Deferred close

Closing a DB while cursors are attached does not invalidate them. Close
returns false, the DB stays usable for reads and writes, new cursors are
refused with ErrClosed, and the database is closed as soon as the last
cursor is exhausted or closed. Destroy defers the same way and releases the
environment after the database.

# Custom comparators

A custom comparator runs inside the engine's sort paths, where a failure
cannot be reported. When the function panics or returns an error the
comparison falls back to the default ordering and the failure is recorded:
see DB.ComparatorErr and Options.OnComparatorFailure.

# Concurrency

A DB and its cursors are not safe for concurrent use. SyncDB serializes
access for programs that share a database between goroutines.

# Backends

BackendJournal (default) keeps records in a skip list backed by a
compressed journal and snapshot. BackendBolt stores them in a bbolt file and
supports only the default ordering.
*/
package spdb
