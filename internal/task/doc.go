// Package task implements the maintenance task orchestrator: scheduling
// with priorities and delays, distributed lock acquisition around dispatch,
// retry with exponential backoff, executor strategies, and the
// status/metrics surface consumed by the admin API.
package task
