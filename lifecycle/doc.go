// Package lifecycle implements plugin install validation, signature
// verification, and the first-run approval flow. It is the only path
// by which a plugin package becomes a runnable, sandboxed instance.
package lifecycle
