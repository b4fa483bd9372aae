// Package hostfuncs implements the mediated host-function surface
// exposed to guests: the network, filesystem, environment, and log
// guards, plus the registry and middleware plumbing that dispatches
// guest calls to them.
package hostfuncs
