// Package resolver compiles workflow definitions into executable plans. It
// assigns each leaf its progress ordinal and compiles condition expressions
// ahead of the run so malformed workflows fail before any command starts.
package resolver
