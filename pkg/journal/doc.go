// Package journal persists deployment run history in SQLite: one row per
// run, per-step results, and the structured event stream. The journal is
// observability, not state: idempotence comes from re-probing the provider,
// never from replaying journal rows. Writes are best-effort from the
// engine's perspective; a failed journal write never aborts a deployment.
package journal
