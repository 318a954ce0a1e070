// Package health provides composable probes and the liveness and readiness
// handlers served on both the public and ops listeners.
//
// Probes combine with [All] (AND) and [Any] (OR); [Fixed] is static and
// [CheckFunc] adapts a plain function.
//
// [ShutdownGate] fails readiness as soon as draining starts so the load
// balancer stops routing before in-flight publishes finish.
package health
