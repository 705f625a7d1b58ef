/*
Package storage persists subscriptions in an embedded BoltDB file so that
the registry survives restarts.

# Layout

BoltStore keeps a single file, <dataDir>/wikifeed.db, with one bucket:

	subscriptions   key: subscriber id   value: JSON-encoded types.Subscription

Writes run in db.Update and reads in db.View, so the registry loaded on
start always sees a consistent set. Only one process may hold the file; a
second open fails after one second instead of blocking.

# Usage

	store, err := storage.NewBoltStore(cfg.Store.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := storage.Load(store, reg)

The store is the durable copy; the registry is the copy the dispatcher
reads. Callers that change subscriptions at runtime write the store first
and then the registry.
*/
package storage
