// Package health folds subsystem health checks into one composite status for
// the platform's monitoring endpoint.
//
// Fold is the pure aggregation: healthy only when every subsystem is, "up" /
// "degraded" / "down" depending on how many are, and the mean response time.
// Registry runs registered Checkers concurrently under a timeout, and the
// HTTP handlers expose liveness, readiness, and detailed JSON views.
package health
