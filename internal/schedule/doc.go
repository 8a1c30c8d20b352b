// Package schedule provides utilities for cron expression handling and deferred execution.
//
// Cron functions parse and validate cron expressions and compute upcoming run times,
// and Cron runs a callback on every matching time. RunAt executes a function
// asynchronously at a specified time. Scheduler runs fixed-rate tasks that can be
// cancelled individually.
package schedule
