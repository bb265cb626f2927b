// Package store provides persistent storage for the gateway.
//
// # Architecture
//
// The store package splits persistence into small interfaces:
//
//   - IdentityStore: identity records keyed by ID with a unique email
//   - TranscriptStore: one conversation document per identity
//   - UsageStore: completion token usage records and totals
//
// Store embeds all three plus Ping and Close. SQLStore implements Store on
// top of database/sql and has two flavours:
//
//   - NewSQLiteStore: modernc.org/sqlite, schema created on open
//   - NewPostgresStore: pgx stdlib driver, schema managed by goose
//
// # Data Models
//
//   - Identity: credentials, role, age, gender and a transcript back-pointer
//   - Transcript: ordered list of Messages stored as a single JSON document
//   - CompletionUsage: tokens consumed by one assistant reply
//
// The store performs no business logic beyond existence and uniqueness
// checks. Saving a transcript replaces the whole message list, so
// concurrent writers resolve as last-writer-wins.
//
// # Error Handling
//
//   - ErrNotFound: requested document does not exist
//   - ErrDuplicate: email already registered, or identity already has a transcript
//
// # Testing
//
// Use NewMockStore() for unit tests. Use NewSQLiteStore(":memory:") or a
// file under t.TempDir() for integration tests with real SQLite.
package store
