// Package idempotency deduplicates retried payment requests by caller-supplied
// key and canonical payload hash.
//
// A record moves through pending, completed, and failed states. The decision
// function Decide is pure; Manager drives it against a Store and implements
// the resilience executor's Admitter. Two stores ship with the package: an
// in-memory one for single-process use and a Redis one whose SET NX gives the
// atomic insert-if-absent required when attempts race across processes.
//
// The request hash is hex SHA-256 over a key-sorted JSON serialization, so
// logically equal payloads hash identically regardless of field order. A
// replayed request is recognized, and a reused key with a different payload
// is rejected as a conflict rather than served a stale response.
package idempotency
