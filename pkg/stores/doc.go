// Package stores persists scenarios in SQLite. The schema is managed by
// embedded golang-migrate migrations. Only scenario inputs are stored;
// evaluation results are always recomputed.
package stores
