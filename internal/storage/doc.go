// Package storage provides the flat key→bool flag store behind the engine's
// persisted state.
//
// It currently holds:
//   - Escalation "prompted" flags, one per permission step
//   - Channel registration ledger entries (id + descriptor fingerprint)
//
// Flags are set-once: SetFlag is idempotent and there is no way to unset a
// key. Readers and writers in one process need no external locking.
package storage
