package task

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"
)

func sampleTask(description string) *Task {
	return &Task{
		Description: description,
		Steps: []Step{
			{To: "0x1111111111111111111111111111111111111111", Data: "0x", Value: "0"},
		},
		FromToken:  TokenInfo{Symbol: "USDC", Decimals: 6},
		ToToken:    TokenInfo{Symbol: "Aave", Decimals: 18},
		FromAmount: "100",
	}
}

func TestMemoryStoreCreateAssignsIdentity(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.Create(ctx, sampleTask("Deposit 100 USDC into Aave"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ID == "" {
		t.Fatalf("expected assigned id")
	}
	if first.CreatedAt == 0 {
		t.Fatalf("expected created_at to be set")
	}

	second, err := store.Create(ctx, sampleTask("Deposit 100 USDC into Aave"))
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("create must always assign a fresh identity")
	}
}

func TestMemoryStoreUpdatePreservesIdentityAndCreatedAt(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	stored, err := store.Create(ctx, sampleTask("Deposit 100 USDC into Aave"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	time.Sleep(1100 * time.Millisecond)

	updated := sampleTask("Deposit 250 USDC into Aave")
	updated.ID = stored.ID
	updated.FromAmount = "250"
	updated.CreatedAt = 12345 // 必须被忽略

	result, err := store.Update(ctx, updated)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if result.ID != stored.ID {
		t.Fatalf("identity changed on update: %s != %s", result.ID, stored.ID)
	}
	if result.CreatedAt != stored.CreatedAt {
		t.Fatalf("created_at changed on update: %d != %d", result.CreatedAt, stored.CreatedAt)
	}
	if result.FromAmount != "250" {
		t.Fatalf("content not replaced: %+v", result)
	}
	if result.UpdatedAt <= stored.UpdatedAt {
		t.Fatalf("updated_at not advanced")
	}
}

func TestMemoryStoreUpdateMissingTask(t *testing.T) {
	store := NewMemoryStore()
	missing := sampleTask("Deposit 1 USDC into Aave")
	missing.ID = "does-not-exist"
	if _, err := store.Update(context.Background(), missing); !stdErrors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestMemoryStoreGetMissingTask(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "gone"); !stdErrors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	stored, err := store.Create(ctx, sampleTask("Deposit 100 USDC into Aave"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Delete(ctx, stored.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, stored.ID); err != nil {
		t.Fatalf("second delete must be a no-op, got %v", err)
	}
	if err := store.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("deleting unknown id must be a no-op, got %v", err)
	}
}

func TestMemoryStoreRejectsEmptySteps(t *testing.T) {
	store := NewMemoryStore()
	empty := sampleTask("Deposit 100 USDC into Aave")
	empty.Steps = nil
	if _, err := store.Create(context.Background(), empty); err == nil {
		t.Fatalf("expected validation failure for empty steps")
	}
}

func TestMemoryStoreListOrdersByCreation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, description := range []string{"first", "second", "third"} {
		task := sampleTask("Deposit 1 USDC into Aave")
		task.Description = description
		if _, err := store.Create(ctx, task); err != nil {
			t.Fatalf("create %s: %v", description, err)
		}
	}

	listed, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(listed))
	}
}
