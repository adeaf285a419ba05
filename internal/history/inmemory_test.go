package history

import (
	"context"
	"testing"
)

func TestInMemoryStoreRecentOrderAndLimit(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	questions := []string{"q1", "q2", "q3"}
	for _, q := range questions {
		if err := s.SaveExchange(ctx, Exchange{SessionID: "s1", Question: q, Answer: "a"}); err != nil {
			t.Fatalf("SaveExchange(%q) error = %v", q, err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Recent) = %d, want 2", len(got))
	}
	if got[0].Question != "q2" || got[1].Question != "q3" {
		t.Fatalf("Recent order = [%q, %q], want [q2, q3]", got[0].Question, got[1].Question)
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Fatalf("SaveExchange did not assign ID/CreatedAt: %+v", got[0])
	}
}

func TestInMemoryStoreRecentEmpty(t *testing.T) {
	s := NewInMemoryStore()
	got, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Recent() = %v, want nil for empty store", got)
	}
}
