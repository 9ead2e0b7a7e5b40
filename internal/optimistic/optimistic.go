// Package optimistic applies a local state change ahead of a remote
// mutation and restores the previous state when the mutation fails. The
// same pattern backs bookmark toggles and comment likes.
package optimistic

import "context"

// Change pairs a local state mutation with its exact inverse. Apply runs
// before the remote call; Revert must restore what Apply changed, nothing
// more.
type Change struct {
	Apply  func()
	Revert func()
}

// Run applies the change, executes the remote operation and reverts on
// failure. The operation's error is returned unchanged so callers can
// classify it.
func Run(ctx context.Context, change Change, op func(context.Context) error) error {
	if change.Apply != nil {
		change.Apply()
	}
	if err := op(ctx); err != nil {
		if change.Revert != nil {
			change.Revert()
		}
		return err
	}
	return nil
}
