// Package store archives action records for historical dashboard queries.
// The executor treats archive failures as log-and-continue; the live action
// state always lives in the executor itself.
package store

import (
	"context"

	"github.com/neuroshield/neuroshield/automation"
)

// Store is the action archive contract.
type Store interface {
	// SaveAction inserts a newly submitted action.
	SaveAction(ctx context.Context, a *automation.Action) error
	// UpdateAction records a state transition for an existing action.
	UpdateAction(ctx context.Context, a *automation.Action) error
	// GetAction returns the archived action, or nil when unknown.
	GetAction(ctx context.Context, id string) (*automation.Action, error)
	// ListActions returns up to limit archived actions newest-first,
	// optionally filtered by device.
	ListActions(ctx context.Context, device string, limit int) ([]*automation.Action, error)
	// Close releases backend resources.
	Close() error
}
