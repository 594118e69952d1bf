// Package database provides PostgreSQL connection pools for the optional
// Postgres history cache backend and the price tick recorder.
package database
