// Package sandbox holds the per-plugin runtime security state: the
// fixed-window rate counters, the parsed network allowlist, and the
// Sandbox object every guard consults before performing I/O.
package sandbox
