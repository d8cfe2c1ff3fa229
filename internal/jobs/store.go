// Package jobs persists the transcript and outcome of every heartbeat and
// reflection run the scheduler executes, so an operator can inspect what a
// ghost did while unattended and the reflection job can read back the prior
// run's handoff note.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghostmesh/gateway/pkg/models"
)

// Store persists JobLog records.
type Store interface {
	Create(ctx context.Context, log *models.JobLog) error
	Get(ctx context.Context, id string) (*models.JobLog, error)
	// LastByKind returns the most recent JobLog for ghostID/kind, or nil if
	// none exists yet. The reflection job uses this to read back the prior
	// run's HandoffNote.
	LastByKind(ctx context.Context, ghostID string, kind models.JobKind) (*models.JobLog, error)
	List(ctx context.Context, ghostID string, limit, offset int) ([]*models.JobLog, error)
	// Prune removes logs older than the given duration. Returns count pruned.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// MemoryStore keeps job logs in memory, keyed by ghost so LastByKind doesn't
// need to scan every ghost's history.
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string]*models.JobLog
	// order preserves insertion order for List/Prune.
	order []string
}

// NewMemoryStore returns a new in-memory job-log store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string]*models.JobLog)}
}

func (s *MemoryStore) Create(ctx context.Context, log *models.JobLog) error {
	if log == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if _, exists := s.logs[log.ID]; !exists {
		s.order = append(s.order, log.ID)
	}
	s.logs[log.ID] = cloneJobLog(log)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.JobLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.logs[id]
	if !ok {
		return nil, nil
	}
	return cloneJobLog(log), nil
}

func (s *MemoryStore) LastByKind(ctx context.Context, ghostID string, kind models.JobKind) (*models.JobLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.JobLog
	for i := len(s.order) - 1; i >= 0; i-- {
		log, ok := s.logs[s.order[i]]
		if !ok || log.GhostID != ghostID || log.Kind != kind {
			continue
		}
		latest = log
		break
	}
	if latest == nil {
		return nil, nil
	}
	return cloneJobLog(latest), nil
}

func (s *MemoryStore) List(ctx context.Context, ghostID string, limit, offset int) ([]*models.JobLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.JobLog
	for i := len(s.order) - 1; i >= 0; i-- {
		log, ok := s.logs[s.order[i]]
		if !ok {
			continue
		}
		if ghostID != "" && log.GhostID != ghostID {
			continue
		}
		matched = append(matched, log)
	}

	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]*models.JobLog, 0, end-offset)
	for _, log := range matched[offset:end] {
		out = append(out, cloneJobLog(log))
	}
	return out, nil
}

func (s *MemoryStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var pruned int64
	var newOrder []string
	for _, id := range s.order {
		log, ok := s.logs[id]
		if !ok {
			continue
		}
		if log.StartedAt.Before(cutoff) {
			delete(s.logs, id)
			pruned++
			continue
		}
		newOrder = append(newOrder, id)
	}
	s.order = newOrder
	return pruned, nil
}

func cloneJobLog(log *models.JobLog) *models.JobLog {
	if log == nil {
		return nil
	}
	clone := *log
	if log.TODOList != nil {
		clone.TODOList = append([]string{}, log.TODOList...)
	}
	return &clone
}
