// Package api implements the HTTP surface: task scheduling and status
// endpoints plus the maintenance entrypoints an external periodic trigger
// calls. Handlers depend on narrow service interfaces so tests can drive
// them without the full orchestrator wiring.
package api
