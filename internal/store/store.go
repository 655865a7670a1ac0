// Package store defines the narrow persistence contract the pipeline
// consumes. Schema details beyond these operations are opaque to the
// core.
package store

import (
	"context"
	"errors"

	"github.com/capitalize-ai/storebot/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// TenantStore is the backing store for tenant records, knowledge entries
// and conversation turns.
type TenantStore interface {
	// GetTenant reads a tenant record by id.
	GetTenant(ctx context.Context, id string) (*model.Tenant, error)

	// PutTenant writes a tenant record.
	PutTenant(ctx context.Context, t *model.Tenant) error

	// Knowledge reads all knowledge entries for a tenant.
	Knowledge(ctx context.Context, tenantID string) ([]model.KnowledgeEntry, error)

	// PutKnowledge writes one knowledge entry.
	PutKnowledge(ctx context.Context, e *model.KnowledgeEntry) error

	// AppendTurn appends one conversation turn.
	AppendTurn(ctx context.Context, turn *model.Turn) error

	// RecentTurns reads the last limit turns for a (tenant, user) pair,
	// ordered newest-first.
	RecentTurns(ctx context.Context, tenantID, userID string, limit int) ([]model.Turn, error)
}
