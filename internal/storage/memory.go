package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghostmesh/gateway/pkg/models"
)

// MemoryOperatorStore is an in-memory OperatorStore.
type MemoryOperatorStore struct {
	mu        sync.RWMutex
	operators map[string]*models.Operator
	byHandle  map[string]string
}

// NewMemoryOperatorStore returns an empty MemoryOperatorStore.
func NewMemoryOperatorStore() *MemoryOperatorStore {
	return &MemoryOperatorStore{
		operators: make(map[string]*models.Operator),
		byHandle:  make(map[string]string),
	}
}

func (s *MemoryOperatorStore) Create(ctx context.Context, operator *models.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byHandle[operator.Handle]; exists {
		return ErrAlreadyExists
	}
	if operator.ID == "" {
		operator.ID = uuid.NewString()
	}
	if operator.CreatedAt.IsZero() {
		operator.CreatedAt = time.Now()
	}
	clone := *operator
	s.operators[clone.ID] = &clone
	s.byHandle[clone.Handle] = clone.ID
	return nil
}

func (s *MemoryOperatorStore) Get(ctx context.Context, id string) (*models.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.operators[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *op
	return &clone, nil
}

func (s *MemoryOperatorStore) GetByHandle(ctx context.Context, handle string) (*models.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHandle[handle]
	if !ok {
		return nil, ErrNotFound
	}
	op, ok := s.operators[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *op
	return &clone, nil
}

// MemoryGhostStore is an in-memory GhostStore.
type MemoryGhostStore struct {
	mu     sync.RWMutex
	ghosts map[string]*models.Ghost
}

// NewMemoryGhostStore returns an empty MemoryGhostStore.
func NewMemoryGhostStore() *MemoryGhostStore {
	return &MemoryGhostStore{ghosts: make(map[string]*models.Ghost)}
}

func (s *MemoryGhostStore) Create(ctx context.Context, ghost *models.Ghost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ghost.ID == "" {
		ghost.ID = uuid.NewString()
	}
	now := time.Now()
	if ghost.CreatedAt.IsZero() {
		ghost.CreatedAt = now
	}
	ghost.UpdatedAt = now
	s.ghosts[ghost.ID] = cloneGhost(ghost)
	return nil
}

func (s *MemoryGhostStore) Get(ctx context.Context, id string) (*models.Ghost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ghost, ok := s.ghosts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneGhost(ghost), nil
}

func (s *MemoryGhostStore) List(ctx context.Context, operatorID string) ([]*models.Ghost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Ghost
	for _, ghost := range s.ghosts {
		if operatorID != "" && ghost.OperatorID != operatorID {
			continue
		}
		out = append(out, cloneGhost(ghost))
	}
	return out, nil
}

func (s *MemoryGhostStore) Update(ctx context.Context, ghost *models.Ghost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.ghosts[ghost.ID]
	if !ok {
		return ErrNotFound
	}
	clone := cloneGhost(ghost)
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now()
	s.ghosts[clone.ID] = clone
	return nil
}

func (s *MemoryGhostStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ghosts[id]; !ok {
		return ErrNotFound
	}
	delete(s.ghosts, id)
	return nil
}

func cloneGhost(ghost *models.Ghost) *models.Ghost {
	if ghost == nil {
		return nil
	}
	clone := *ghost
	if ghost.ModelChain != nil {
		clone.ModelChain = append([]string{}, ghost.ModelChain...)
	}
	if ghost.ToolPolicy != nil {
		clone.ToolPolicy = append([]string{}, ghost.ToolPolicy...)
	}
	if ghost.Config != nil {
		cfg := make(map[string]any, len(ghost.Config))
		for k, v := range ghost.Config {
			cfg[k] = v
		}
		clone.Config = cfg
	}
	return &clone
}

// MemoryInterfaceStore is an in-memory InterfaceStore.
type MemoryInterfaceStore struct {
	mu         sync.RWMutex
	interfaces map[string]*models.Interface
	byExternal map[string]string // kind+":"+externalID -> id
}

// NewMemoryInterfaceStore returns an empty MemoryInterfaceStore.
func NewMemoryInterfaceStore() *MemoryInterfaceStore {
	return &MemoryInterfaceStore{
		interfaces: make(map[string]*models.Interface),
		byExternal: make(map[string]string),
	}
}

func externalKey(kind models.InterfaceKind, externalID string) string {
	return string(kind) + ":" + externalID
}

func (s *MemoryInterfaceStore) Create(ctx context.Context, iface *models.Interface) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := externalKey(iface.Kind, iface.ExternalID)
	if _, exists := s.byExternal[key]; exists {
		return ErrAlreadyExists
	}
	if iface.ID == "" {
		iface.ID = uuid.NewString()
	}
	now := time.Now()
	if iface.CreatedAt.IsZero() {
		iface.CreatedAt = now
	}
	iface.UpdatedAt = now
	clone := *iface
	s.interfaces[clone.ID] = &clone
	s.byExternal[key] = clone.ID
	return nil
}

func (s *MemoryInterfaceStore) Get(ctx context.Context, id string) (*models.Interface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iface, ok := s.interfaces[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *iface
	return &clone, nil
}

func (s *MemoryInterfaceStore) GetByExternalID(ctx context.Context, kind models.InterfaceKind, externalID string) (*models.Interface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[externalKey(kind, externalID)]
	if !ok {
		return nil, ErrNotFound
	}
	iface, ok := s.interfaces[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *iface
	return &clone, nil
}

func (s *MemoryInterfaceStore) List(ctx context.Context, operatorID string) ([]*models.Interface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Interface
	for _, iface := range s.interfaces {
		if operatorID != "" && iface.OperatorID != operatorID {
			continue
		}
		clone := *iface
		out = append(out, &clone)
	}
	return out, nil
}

func (s *MemoryInterfaceStore) Update(ctx context.Context, iface *models.Interface) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.interfaces[iface.ID]
	if !ok {
		return ErrNotFound
	}
	clone := *iface
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now()
	s.interfaces[clone.ID] = &clone
	s.byExternal[externalKey(clone.Kind, clone.ExternalID)] = clone.ID
	return nil
}

func (s *MemoryInterfaceStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	iface, ok := s.interfaces[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.interfaces, id)
	delete(s.byExternal, externalKey(iface.Kind, iface.ExternalID))
	return nil
}
