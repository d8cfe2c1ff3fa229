// Package storage persists the gateway's identity graph: operators, the
// ghosts they own, and the chat interfaces (Telegram, Discord, Slack, CLI)
// bound to each ghost. Session and message history lives in
// internal/sessions; job transcripts live in internal/jobs.
package storage

import (
	"context"
	"errors"

	"github.com/ghostmesh/gateway/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// OperatorStore persists operator accounts.
type OperatorStore interface {
	Create(ctx context.Context, operator *models.Operator) error
	Get(ctx context.Context, id string) (*models.Operator, error)
	GetByHandle(ctx context.Context, handle string) (*models.Operator, error)
}

// GhostStore persists ghost configurations: identity, workspace, model
// chain, and tool policy.
type GhostStore interface {
	Create(ctx context.Context, ghost *models.Ghost) error
	Get(ctx context.Context, id string) (*models.Ghost, error)
	List(ctx context.Context, operatorID string) ([]*models.Ghost, error)
	Update(ctx context.Context, ghost *models.Ghost) error
	Delete(ctx context.Context, id string) error
}

// InterfaceStore persists the external interfaces bound to a ghost, and the
// pairing workflow that approves or denies a new one.
type InterfaceStore interface {
	Create(ctx context.Context, iface *models.Interface) error
	Get(ctx context.Context, id string) (*models.Interface, error)
	GetByExternalID(ctx context.Context, kind models.InterfaceKind, externalID string) (*models.Interface, error)
	List(ctx context.Context, operatorID string) ([]*models.Interface, error)
	Update(ctx context.Context, iface *models.Interface) error
	Delete(ctx context.Context, id string) error
}

// StoreSet groups storage dependencies wired at startup.
type StoreSet struct {
	Operators  OperatorStore
	Ghosts     GhostStore
	Interfaces InterfaceStore
	closer     func() error
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
