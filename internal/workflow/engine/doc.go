// Package engine runs a compiled workflow. Sequences run in declaration
// order, parallel groups fan out and join, every completed attempt is recorded
// for later conditions, and failures are routed through the recovery
// controller. Progress is reported to observers as events.
package engine
