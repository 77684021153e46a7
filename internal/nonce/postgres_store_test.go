package nonce

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbd888/payguard/internal/testutil"
)

func TestPostgresStoreRegisterAndSweep(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now()

	if err := s.Register(ctx, "pg-n1", now); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := s.Register(ctx, "pg-n1", now); !errors.Is(err, ErrNonceUsed) {
		t.Fatalf("replay: got %v, want ErrNonceUsed", err)
	}

	if err := s.Register(ctx, "pg-old", now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("register old: %v", err)
	}

	removed, err := s.Sweep(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if err := s.Register(ctx, "pg-old", now); err != nil {
		t.Errorf("swept nonce should be free: %v", err)
	}
}
