package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/ghostmesh/gateway/pkg/models"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	log := &models.JobLog{
		GhostID:   "ghost-1",
		Kind:      models.JobHeartbeat,
		Status:    models.RunRan,
		StartedAt: time.Now(),
	}
	if err := store.Create(ctx, log); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if log.ID == "" {
		t.Fatal("expected generated ID")
	}

	got, err := store.Get(ctx, log.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.GhostID != "ghost-1" {
		t.Fatalf("GhostID = %q", got.GhostID)
	}
}

func TestMemoryStoreLastByKind(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	older := &models.JobLog{GhostID: "ghost-1", Kind: models.JobReflection, Status: models.RunRan, HandoffNote: "first", StartedAt: time.Now()}
	newer := &models.JobLog{GhostID: "ghost-1", Kind: models.JobReflection, Status: models.RunRan, HandoffNote: "second", StartedAt: time.Now()}
	if err := store.Create(ctx, older); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, newer); err != nil {
		t.Fatalf("Create: %v", err)
	}

	last, err := store.LastByKind(ctx, "ghost-1", models.JobReflection)
	if err != nil {
		t.Fatalf("LastByKind: %v", err)
	}
	if last == nil || last.HandoffNote != "second" {
		t.Fatalf("expected the second log, got %+v", last)
	}

	noneFound, err := store.LastByKind(ctx, "ghost-1", models.JobHeartbeat)
	if err != nil {
		t.Fatalf("LastByKind: %v", err)
	}
	if noneFound != nil {
		t.Fatal("expected nil for kind with no prior runs")
	}
}

func TestMemoryStorePrune(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	old := &models.JobLog{GhostID: "ghost-1", Kind: models.JobHeartbeat, StartedAt: time.Now().Add(-48 * time.Hour)}
	recent := &models.JobLog{GhostID: "ghost-1", Kind: models.JobHeartbeat, StartedAt: time.Now()}
	if err := store.Create(ctx, old); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, recent); err != nil {
		t.Fatalf("Create: %v", err)
	}

	pruned, err := store.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}

	remaining, err := store.List(ctx, "ghost-1", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != recent.ID {
		t.Fatalf("expected only the recent log to remain, got %+v", remaining)
	}
}
