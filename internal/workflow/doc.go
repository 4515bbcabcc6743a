// Package workflow defines the step graph executed by stepwise: leaf steps
// that run one command and parallel groups whose children run concurrently.
// It also loads workflow files and offers a builder for programmatic graphs.
package workflow
