// Package resilience holds the fault tolerance building blocks used by the
// provider clients and the database layer.
//
// Subpackages:
//   - circuitbreaker: gobreaker wrappers for provider calls and for every
//     database statement (DBCircuitBreaker)
//   - retry: exponential backoff for transient failures; the notify
//     processors plug in their own Sleep to honour provider Retry-After
package resilience
