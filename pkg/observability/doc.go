/*
Package observability turns engine lifecycle events into structured logs and
Prometheus metrics.

Both producers return domain.LifecycleHooks, so they compose with domain.Merge
and plug into the engine through runtime.WithLifecycleHooks.
*/
package observability
