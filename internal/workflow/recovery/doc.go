// Package recovery decides what happens after a step fails. Non-interactive
// runs apply the skippable policy directly; interactive runs ask an operator
// to retry, substitute the command, skip, or abort.
package recovery
