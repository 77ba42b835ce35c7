// Package stores provides the persistence layer for mangasync.
//
// It includes a SQLite-based store (WAL mode, embedded golang-migrate
// migrations) and an in-memory store with the same contract. Both enforce a
// single persisted manga per (source id, key) pair and notify in-process
// watchers after every write that touches a manga.
package stores
