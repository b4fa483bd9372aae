// Package host embeds the wazero runtime: one isolated guest instance
// per plugin, host-function registration, and the per-invocation
// resource limiter (instruction budget, memory ceiling, wall-clock
// teardown).
package host
