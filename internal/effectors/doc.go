// Package effectors implements the built-in remediation actions and their
// compensators. Each effector returns JSON snapshots of the state it changed
// so the matching compensator can restore it without further lookups.
package effectors
