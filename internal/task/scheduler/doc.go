// Package scheduler triggers housekeeping jobs on cron or interval schedules:
// periodic time resync and journal pruning. Jobs run on the cron goroutine
// under a per-run timeout; a run that is still in flight when its next
// trigger arrives is skipped.
package scheduler
