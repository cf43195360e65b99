// Package automation owns the remediation action queue: submissions enter a
// priority-ordered pending queue, a single dispatch loop starts them under a
// bounded concurrency ceiling, and each action's kind-specific effect runs as
// its own goroutine against the simulated device inventory.
package automation
