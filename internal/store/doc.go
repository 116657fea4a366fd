// Package store keeps a SQLite log of scheduling runs.
//
// A run is one Generate call against one kernel. The run row holds the
// kernel hash, the versions in effect, the outcome and the search counters.
// Each schedule the run yielded is a child row carrying its dump, barrier
// count and any owed writers.
//
// Listing is deterministic: runs sort by seq, a counter local to the
// database file, and schedules by idx within their run, with the UUIDv7 id
// as tie-break.
//
// Open turns on WAL with synchronous=NORMAL, a 5s busy timeout and foreign
// keys, then brings the schema up to date through PRAGMA user_version.
package store
