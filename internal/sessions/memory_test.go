package sessions

import (
	"context"
	"testing"

	"github.com/ghostmesh/gateway/pkg/models"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := &models.Session{GhostID: "ghost-1", Key: "ghost-1:cli:op-1"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.ID == "" {
		t.Fatal("expected generated session ID")
	}

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.GhostID != "ghost-1" {
		t.Fatalf("GhostID = %q, want ghost-1", got.GhostID)
	}

	byKey, err := store.GetByKey(ctx, session.Key)
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	if byKey.ID != session.ID {
		t.Fatalf("GetByKey returned wrong session")
	}
}

func TestMemoryStoreGetOrCreateIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := models.SessionKey("ghost-1", "cli", "op-1")

	first, err := store.GetOrCreate(ctx, "ghost-1", "iface-1", key)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	second, err := store.GetOrCreate(ctx, "ghost-1", "iface-1", key)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same session, got %s and %s", first.ID, second.ID)
	}
}

func TestMemoryStoreAppendAndGetHistory(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := &models.Session{GhostID: "ghost-1"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}

	msg := &models.Message{
		Role:   models.RoleOperator,
		Blocks: []models.ContentBlock{models.TextBlock{Text: "hello"}},
	}
	if err := store.AppendMessage(ctx, session.ID, msg); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	history, err := store.GetHistory(ctx, session.ID, 10)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history))
	}
	if history[0].Text() != "hello" {
		t.Fatalf("Text() = %q, want hello", history[0].Text())
	}
}

func TestMemoryStoreAppendMessageTrimsOldMessages(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := &models.Session{GhostID: "ghost-1"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < maxMessagesPerSession+10; i++ {
		msg := &models.Message{
			Role:   models.RoleOperator,
			Blocks: []models.ContentBlock{models.TextBlock{Text: "msg"}},
		}
		if err := store.AppendMessage(ctx, session.ID, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	history, err := store.GetHistory(ctx, session.ID, maxMessagesPerSession+100)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != maxMessagesPerSession {
		t.Fatalf("len(history) = %d, want %d", len(history), maxMessagesPerSession)
	}
}

func TestMemoryStoreDeleteRemovesMessages(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := &models.Session{GhostID: "ghost-1", Key: "k1"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Delete(ctx, session.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, session.ID); err == nil {
		t.Fatal("expected error getting deleted session")
	}
	if _, err := store.GetByKey(ctx, "k1"); err == nil {
		t.Fatal("expected error getting deleted session by key")
	}
}
