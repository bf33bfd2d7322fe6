// Package domain contains the shared vocabulary of the guarded
// data-acquisition pipeline: vital-sign domain keys, guard verdicts,
// lifecycle phases, and the errors every layer agrees on.
//
// The package is intentionally dependency-free. Every other package in
// the module imports it, so anything pulled in here would ripple through
// the whole dependency graph.
package domain
