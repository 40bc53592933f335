// Package postgres implements the durable stores over PostgreSQL: task
// records for the orchestrator and tenant/backup records for the retention
// jobs. All stores take a store.DBTX, so they run equally against a
// connection pool or an open transaction, and all database errors are
// mapped to the store package's sentinels before they cross the boundary.
package postgres
