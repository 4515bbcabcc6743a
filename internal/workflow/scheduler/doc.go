// Package scheduler holds the gate consulted before every step. It checks
// that declared dependencies have recorded results and then evaluates the
// step's condition, so the engine only has to act on the decision.
package scheduler
