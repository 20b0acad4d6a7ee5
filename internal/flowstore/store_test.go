package flowstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/schedule"
)

func newFlow(agentID, provider string) *Flow {
	return &Flow{
		AgentID:      agentID,
		Name:         "Agent " + agentID,
		Provider:     provider,
		Instructions: "Sell flowers.",
		Schedule:     schedule.Config{Enabled: true, Monday: true, StartTime: "09:00", EndTime: "12:00", SlotMinutes: 30},
		Holidays:     []schedule.Holiday{{Date: "2025-12-25", Description: "Christmas"}},
		Workflow:     json.RawMessage(`{"nodes":[],"connections":{}}`),
		WebhookURL:   "https://hooks.example.com/webhook/abc",
		WebhookPath:  "abc",
		Deployable:   true,
	}
}

// runStoreContract exercises the behavior every FlowStore shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) FlowStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		created, err := store.Create(ctx, newFlow("agent-1", "openai"))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if created.Revision != 1 {
			t.Errorf("expected revision 1, got %d", created.Revision)
		}
		if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
			t.Error("timestamps should be set")
		}

		got, err := store.Get(ctx, "agent-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Instructions != "Sell flowers." {
			t.Errorf("unexpected instructions %q", got.Instructions)
		}
		if !got.Schedule.Enabled || len(got.Holidays) != 1 {
			t.Errorf("schedule not persisted: %+v %+v", got.Schedule, got.Holidays)
		}
		if string(got.Workflow) != `{"nodes":[],"connections":{}}` {
			t.Errorf("unexpected workflow %s", got.Workflow)
		}
	})

	t.Run("generates agent id", func(t *testing.T) {
		store := newStore(t)
		created, err := store.Create(ctx, newFlow("", "gemini"))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if created.AgentID == "" {
			t.Error("expected agent id to be generated")
		}
	})

	t.Run("duplicate agent", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Create(ctx, newFlow("dup", "openai")); err != nil {
			t.Fatalf("first create failed: %v", err)
		}
		if _, err := store.Create(ctx, newFlow("dup", "openai")); !errors.Is(err, ErrFlowExists) {
			t.Errorf("expected ErrFlowExists, got %v", err)
		}
	})

	t.Run("validates", func(t *testing.T) {
		store := newStore(t)
		f := newFlow("bad", "openai")
		f.Workflow = nil
		if _, err := store.Create(ctx, f); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("update bumps revision", func(t *testing.T) {
		store := newStore(t)
		created, err := store.Create(ctx, newFlow("agent-2", "openai"))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		next := newFlow("ignored", "gemini")
		next.Instructions = "Sell plants."
		updated, err := store.Update(ctx, "agent-2", next)
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if updated.AgentID != "agent-2" {
			t.Errorf("agent id changed to %q", updated.AgentID)
		}
		if updated.Revision != 2 {
			t.Errorf("expected revision 2, got %d", updated.Revision)
		}
		if !updated.CreatedAt.Equal(created.CreatedAt) {
			t.Error("CreatedAt should be preserved")
		}

		got, _ := store.Get(ctx, "agent-2")
		if got.Provider != "gemini" || got.Instructions != "Sell plants." {
			t.Errorf("update not persisted: %+v", got)
		}
	})

	t.Run("update missing", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Update(ctx, "nope", newFlow("nope", "openai")); !errors.Is(err, ErrFlowNotFound) {
			t.Errorf("expected ErrFlowNotFound, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Create(ctx, newFlow("gone", "openai")); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := store.Delete(ctx, "gone"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := store.Get(ctx, "gone"); !errors.Is(err, ErrFlowNotFound) {
			t.Errorf("expected ErrFlowNotFound, got %v", err)
		}
		if err := store.Delete(ctx, "gone"); !errors.Is(err, ErrFlowNotFound) {
			t.Errorf("expected ErrFlowNotFound on second delete, got %v", err)
		}
	})

	t.Run("list filters and pages", func(t *testing.T) {
		store := newStore(t)
		for _, f := range []*Flow{
			newFlow("c", "openai"),
			newFlow("a", "openai"),
			newFlow("b", "gemini"),
		} {
			if _, err := store.Create(ctx, f); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}

		all, err := store.List(ctx, nil)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if ids := agentIDs(all); ids != "a,b,c" {
			t.Errorf("expected a,b,c, got %s", ids)
		}

		openai, _ := store.List(ctx, &ListOptions{Provider: "openai"})
		if ids := agentIDs(openai); ids != "a,c" {
			t.Errorf("expected a,c, got %s", ids)
		}

		page, _ := store.List(ctx, &ListOptions{Offset: 1, Limit: 1})
		if ids := agentIDs(page); ids != "b" {
			t.Errorf("expected b, got %s", ids)
		}

		empty, _ := store.List(ctx, &ListOptions{Offset: 10})
		if len(empty) != 0 {
			t.Errorf("expected empty page, got %d", len(empty))
		}
	})
}

func agentIDs(flows []*Flow) string {
	out := ""
	for i, f := range flows {
		if i > 0 {
			out += ","
		}
		out += f.AgentID
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) FlowStore {
		s := NewMemoryStore()
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, newFlow("agent", "openai")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, _ := store.Get(ctx, "agent")
	got.Issues = append(got.Issues, "mutated")
	got.Workflow[0] = '['

	again, _ := store.Get(ctx, "agent")
	if len(again.Issues) != 0 || again.Workflow[0] != '{' {
		t.Error("stored flow was mutated through a returned copy")
	}
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) FlowStore {
		s, err := NewSQLiteStore(SQLiteConfig{Path: filepath.Join(t.TempDir(), "flows.db")})
		if err != nil {
			t.Fatalf("NewSQLiteStore failed: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLiteStore(SQLiteConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := s.Create(context.Background(), newFlow("mem", "openai")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Get(context.Background(), "mem"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(SQLiteConfig{}); err == nil {
		t.Error("expected error for empty path")
	}
}
