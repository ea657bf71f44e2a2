// Package testing holds the end-to-end suite: config store, revision
// history, backup, site service and web server wired together the way
// the serve command wires them. Run with -load for the concurrency tests.
package testing
