// Package governance implements resilience primitives around the fetch
// path: a bounded retry policy that refuses to retry authentication
// failures, and a circuit breaker protecting the transport collaborator.
package governance
