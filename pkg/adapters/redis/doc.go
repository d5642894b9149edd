// Package redis provides the go-redis backed conversation store, flag store
// and distributed locker used when several twin3 replicas share sessions.
package redis
