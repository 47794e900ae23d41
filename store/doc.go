// Package store contains implementations of core.Store: a volatile
// in-memory store and a Retrying decorator that bounds transient failures
// with exponential backoff. A durable SQLite backend lives in store/sqlite.
//
// Callers should depend on the core interfaces and pick an implementation at
// wiring time.
package store
