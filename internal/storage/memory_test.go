package storage

import (
	"context"
	"testing"

	"github.com/ghostmesh/gateway/pkg/models"
)

func TestMemoryOperatorStoreCreateAndLookup(t *testing.T) {
	store := NewMemoryOperatorStore()
	ctx := context.Background()

	op := &models.Operator{Handle: "alice"}
	if err := store.Create(ctx, op); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if op.ID == "" {
		t.Fatal("expected generated ID")
	}

	if err := store.Create(ctx, &models.Operator{Handle: "alice"}); err != ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	byHandle, err := store.GetByHandle(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByHandle: %v", err)
	}
	if byHandle.ID != op.ID {
		t.Fatal("GetByHandle returned wrong operator")
	}
}

func TestMemoryGhostStoreLifecycle(t *testing.T) {
	store := NewMemoryGhostStore()
	ctx := context.Background()

	ghost := &models.Ghost{
		OperatorID: "op-1",
		Name:       "scout",
		ModelChain: []string{"anthropic", "openrouter"},
		ToolPolicy: []string{"read_file"},
	}
	if err := store.Create(ctx, ghost); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ghost.Name = "scout-renamed"
	if err := store.Update(ctx, ghost); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get(ctx, ghost.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "scout-renamed" {
		t.Fatalf("Name = %q, want scout-renamed", got.Name)
	}

	listed, err := store.List(ctx, "op-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("len(listed) = %d, want 1", len(listed))
	}

	if err := store.Delete(ctx, ghost.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, ghost.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryInterfaceStorePairingFlow(t *testing.T) {
	store := NewMemoryInterfaceStore()
	ctx := context.Background()

	iface := &models.Interface{
		Kind:       models.InterfaceTelegram,
		ExternalID: "123456",
		Status:     models.InterfacePending,
		Code:       "ABCD",
	}
	if err := store.Create(ctx, iface); err != nil {
		t.Fatalf("Create: %v", err)
	}

	found, err := store.GetByExternalID(ctx, models.InterfaceTelegram, "123456")
	if err != nil {
		t.Fatalf("GetByExternalID: %v", err)
	}
	if found.ID != iface.ID {
		t.Fatal("GetByExternalID returned wrong interface")
	}

	found.Status = models.InterfaceApproved
	found.OperatorID = "op-1"
	if err := store.Update(ctx, found); err != nil {
		t.Fatalf("Update: %v", err)
	}

	listed, err := store.List(ctx, "op-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 1 || listed[0].Status != models.InterfaceApproved {
		t.Fatalf("unexpected list result: %+v", listed)
	}
}
