// Package osal is the small task/queue/timer runtime lampdial is built on.
//
// A Task runs a Body (Setup, Run, Teardown) on its own goroutine and owns a
// cancellation context; Stop cancels it and joins with a bound. A Queue is a
// fixed-capacity FIFO with timeout-bounded Send/Receive. Timers fire on one
// shared TimerService goroutine, so callbacks must stay short.
//
// Handles are single-owner. Task and Queue embed a noCopy guard so
// `go vet` flags accidental copies.
package osal
