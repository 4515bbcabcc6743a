// Package results holds the per-run result store. Every leaf step that
// declares an id writes its outcome here once it completes, and conditions
// and dependency checks read it back through the View interface.
package results
