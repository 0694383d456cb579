// Package storage persists what the dial should survive a restart with:
// the last displayed time and a journal of bus events.
package storage
