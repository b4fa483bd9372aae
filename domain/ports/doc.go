// Package ports defines the interfaces the mediation core consumes and
// infrastructure implements: audit sinks, approval persistence,
// interactive consent, and signature verification.
package ports
