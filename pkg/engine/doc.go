// Package engine provides the interactors that reconcile remote manga sources
// with the local store, and the error taxonomy they report through.
//
// # Interactors
//
//   - GetOrAddMangaFromSource: get-or-create by (source id, key). At most one
//     local manga exists per pair; a lost create race is resolved by a single
//     retried lookup.
//   - DeleteCategory: idempotent delete. Interact swallows every failure,
//     InteractStrict reports storage failures and still treats a missing row
//     as success.
//   - SubscribeManga / SubscribeChapters: replay-current then live views over
//     store rows, driven by the store's change notifications.
//   - MangaInitializer: fetches full details for a newly added manga once.
//   - SyncChaptersFromSource: diffs a remote chapter listing against the
//     stored one and applies added, updated and deleted rows in one transaction.
//
// Collaborators are passed to constructors as narrow interfaces
// (MangaRepository, CategoryRepository, ChapterRepository, SourceManager), so
// both stores.SQLiteStore and stores.MemoryStore satisfy them.
//
// # Errors
//
// Failures are reported as *EngineError with one of four classes:
//
//   - not_found: delete treats it as success, get-or-create as a miss
//   - conflict: duplicate key race, retried once then surfaced
//   - transport: remote source failure, only seen on side-effect paths
//   - storage: any other persistence failure
//
// Every EngineError unwraps to its cause, so errors.Is(err, stores.ErrConflict)
// keeps working through the classification.
package engine
