/*
Package session implements the Conversation State of each session.

The Manager owns the turn lifecycle (idle, busy, idle), the "new conversation"
reset, and the verification flags. It serializes load-modify-save cycles per
session with reference-counted local locks and, optionally, a distributed lock
so several replicas can share one store. Locks are never held across the
simulated reply delay, so a session stays readable while a turn is in flight.
*/
package session
