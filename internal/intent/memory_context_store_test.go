package intent

import (
	"context"
	"fmt"
	"testing"
)

func TestMemoryContextStoreRoundTrip(t *testing.T) {
	store := NewMemoryContextStore()
	ctx := context.Background()

	if err := store.AppendMessage(ctx, "tenant-a", "conv-1", Message{Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := store.AppendDetection(ctx, "tenant-a", "conv-1", Detection{Intent: "greeting", Confidence: 0.9}); err != nil {
		t.Fatalf("AppendDetection: %v", err)
	}

	conv, err := store.Get(ctx, "tenant-a", "conv-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Content != "hi" {
		t.Fatalf("messages = %+v", conv.Messages)
	}
	if len(conv.Detections) != 1 || conv.Detections[0].Intent != "greeting" {
		t.Fatalf("detections = %+v", conv.Detections)
	}
	if conv.Messages[0].Timestamp.IsZero() || conv.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be stamped")
	}

	other, err := store.Get(ctx, "tenant-b", "conv-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(other.Messages) != 0 {
		t.Fatalf("tenant-b sees tenant-a messages: %+v", other.Messages)
	}
}

func TestMemoryContextStoreCopiesState(t *testing.T) {
	store := NewMemoryContextStore()
	ctx := context.Background()

	if err := store.AppendMessage(ctx, "tenant-a", "conv-1", Message{Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	conv, _ := store.Get(ctx, "tenant-a", "conv-1")
	conv.Messages[0].Content = "mutated"

	again, _ := store.Get(ctx, "tenant-a", "conv-1")
	if again.Messages[0].Content != "hi" {
		t.Fatalf("stored state mutated through returned copy: %q", again.Messages[0].Content)
	}
}

func TestMemoryContextStoreClear(t *testing.T) {
	store := NewMemoryContextStore()
	ctx := context.Background()

	if err := store.AppendMessage(ctx, "tenant-a", "conv-1", Message{Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := store.Clear(ctx, "tenant-a", "conv-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	conv, _ := store.Get(ctx, "tenant-a", "conv-1")
	if len(conv.Messages) != 0 {
		t.Fatalf("expected cleared context, got %+v", conv.Messages)
	}
}

func TestMemoryContextStoreCapsHistory(t *testing.T) {
	store := NewMemoryContextStore()
	ctx := context.Background()

	for i := 0; i < maxStoredDetections+3; i++ {
		det := Detection{Intent: fmt.Sprintf("intent%d", i), Confidence: 0.5}
		if err := store.AppendDetection(ctx, "tenant-a", "conv-1", det); err != nil {
			t.Fatalf("AppendDetection %d: %v", i, err)
		}
	}

	conv, _ := store.Get(ctx, "tenant-a", "conv-1")
	if len(conv.Detections) != maxStoredDetections {
		t.Fatalf("detections = %d, want %d", len(conv.Detections), maxStoredDetections)
	}
	if conv.Detections[0].Intent != "intent3" {
		t.Fatalf("oldest detection = %q, want oldest dropped", conv.Detections[0].Intent)
	}
}
