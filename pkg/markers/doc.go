// Package markers implements the durable marker store: one record per
// completed stage key, written only after confirmed success. The store lives
// in a single root directory that is created on first run and removed only by
// explicit teardown.
package markers
