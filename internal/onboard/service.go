// Package onboard implements spec.md §3's Interface pending→approved
// binding: a new external-platform identity (e.g. a Telegram user DMing a
// ghost for the first time) is issued a short human-readable pairing code,
// and an existing Operator later redeems that code to approve the binding.
package onboard

import (
	"context"
	"fmt"
	"time"

	"github.com/ghostmesh/gateway/internal/identity"
	"github.com/ghostmesh/gateway/internal/pairing"
	"github.com/ghostmesh/gateway/internal/storage"
	"github.com/ghostmesh/gateway/pkg/models"
)

// Service binds pairing's one-time-code allowlist to the canonical
// Operator/Interface records in storage, and records the approved binding
// in identity so later messages from any of an operator's linked channels
// resolve to the same canonical identity.
type Service struct {
	Pairing    *pairing.Store
	Interfaces storage.InterfaceStore
	Operators  storage.OperatorStore
	Identities identity.Store
}

// NewService wires a pairing code store to the operator/interface/identity
// stores. dataDir is the pairing store's on-disk directory, kept separate
// from the relational stores so a pending code survives a storage backend
// swap (memory <-> cockroach) during development.
func NewService(dataDir string, interfaces storage.InterfaceStore, operators storage.OperatorStore, identities identity.Store) *Service {
	return &Service{
		Pairing:    pairing.NewStore(dataDir),
		Interfaces: interfaces,
		Operators:  operators,
		Identities: identities,
	}
}

// RequestPairing records an inbound message from an unrecognized external
// identity, creating a pending Interface and returning the short code the
// operator must relay back (e.g. by typing it into an already-paired
// session) to approve it. Calling this again for the same externalID before
// the code is redeemed returns the same code.
func (s *Service) RequestPairing(ctx context.Context, kind models.InterfaceKind, externalID string, meta map[string]string) (code string, created bool, err error) {
	code, created, err = s.Pairing.UpsertRequest(string(kind), externalID, meta)
	if err != nil {
		return "", false, fmt.Errorf("request pairing: %w", err)
	}
	if !created {
		return code, false, nil
	}

	iface, err := s.Interfaces.GetByExternalID(ctx, kind, externalID)
	if err == nil && iface != nil {
		return code, false, nil
	}

	now := time.Now()
	iface = &models.Interface{
		Kind:       kind,
		ExternalID: externalID,
		Status:     models.InterfacePending,
		Code:       code,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Interfaces.Create(ctx, iface); err != nil {
		return "", false, fmt.Errorf("create pending interface: %w", err)
	}
	return code, true, nil
}

// ApproveCode redeems a pairing code on behalf of operatorID, binding the
// pending Interface to that operator and linking its external identity into
// the operator's canonical identity record.
func (s *Service) ApproveCode(ctx context.Context, operatorID string, kind models.InterfaceKind, code string) (*models.Interface, error) {
	operator, err := s.Operators.Get(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("approve code: unknown operator %s: %w", operatorID, err)
	}

	externalID, _, err := s.Pairing.ApproveCode(string(kind), code)
	if err != nil {
		return nil, fmt.Errorf("approve code: %w", err)
	}

	iface, err := s.Interfaces.GetByExternalID(ctx, kind, externalID)
	if err != nil {
		return nil, fmt.Errorf("approve code: interface vanished for %s: %w", externalID, err)
	}
	iface.Status = models.InterfaceApproved
	iface.OperatorID = operator.ID
	iface.Code = ""
	iface.UpdatedAt = time.Now()
	if err := s.Interfaces.Update(ctx, iface); err != nil {
		return nil, fmt.Errorf("approve code: persist interface: %w", err)
	}

	if err := s.linkIdentity(ctx, operator.ID, kind, externalID); err != nil {
		return nil, err
	}
	return iface, nil
}

// DenyCode marks a pending Interface as denied without consuming it from
// the pairing allowlist, so the same external identity can retry later with
// a freshly issued code.
func (s *Service) DenyCode(ctx context.Context, kind models.InterfaceKind, externalID string) error {
	iface, err := s.Interfaces.GetByExternalID(ctx, kind, externalID)
	if err != nil {
		return fmt.Errorf("deny code: %w", err)
	}
	iface.Status = models.InterfaceDenied
	iface.UpdatedAt = time.Now()
	return s.Interfaces.Update(ctx, iface)
}

// linkIdentity ensures operatorID has a canonical identity record and links
// kind:externalID to it, creating the identity on first approval.
func (s *Service) linkIdentity(ctx context.Context, operatorID string, kind models.InterfaceKind, externalID string) error {
	channel := string(kind)
	if _, err := s.Identities.Get(ctx, operatorID); err != nil {
		if createErr := s.Identities.Create(ctx, &identity.Identity{CanonicalID: operatorID}); createErr != nil {
			return fmt.Errorf("link identity: create %s: %w", operatorID, createErr)
		}
	}
	if err := s.Identities.LinkPeer(ctx, operatorID, channel, externalID); err != nil {
		return fmt.Errorf("link identity: link peer %s:%s: %w", channel, externalID, err)
	}
	return nil
}

// ResolveOperator resolves an inbound message's external identity to the
// operator that owns it, or models.ErrNotFound via storage.ErrNotFound if
// the Interface is still pending or was never approved.
func (s *Service) ResolveOperator(ctx context.Context, kind models.InterfaceKind, externalID string) (*models.Operator, *models.Interface, error) {
	iface, err := s.Interfaces.GetByExternalID(ctx, kind, externalID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve operator: %w", err)
	}
	if iface.Status != models.InterfaceApproved || iface.OperatorID == "" {
		return nil, iface, storage.ErrNotFound
	}
	operator, err := s.Operators.Get(ctx, iface.OperatorID)
	if err != nil {
		return nil, iface, fmt.Errorf("resolve operator: %w", err)
	}
	return operator, iface, nil
}
