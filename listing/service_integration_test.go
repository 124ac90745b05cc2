package listing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestCatalog_Integration connects to a real PostgreSQL via DATABASE_URL
// and exercises the catalog against the live schema: ids grow with
// insertion order, ownership sticks to the caller, and unlisting is a
// one-shot operation.
func TestCatalog_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	for _, table := range []string{"users", "properties", "timeline_events", "outbox"} {
		if !catalogTableExists(ctx, t, pool, table) {
			t.Skip("database schema missing; run migrations: migrate -path migrations -database \"$DATABASE_URL\" up")
		}
	}

	var ownerID string
	nano := time.Now().UnixNano()
	if err := pool.QueryRow(ctx, `
INSERT INTO users (email, display_name, password_hash) VALUES ($1, 'Olga Owner', 'x') RETURNING id
`, fmt.Sprintf("owner+%d@example.com", nano)).Scan(&ownerID); err != nil {
		t.Fatalf("seed owner: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM timeline_events WHERE entity_kind = 'property' AND entity_id IN (SELECT id::text FROM properties WHERE owner_id = $1)`, ownerID)
		pool.Exec(ctx2, `DELETE FROM properties WHERE owner_id = $1`, ownerID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id = $1`, ownerID)
	})

	svc := NewService(pool)

	first, err := svc.List(ctx, ownerID, Fields{
		Location:        "3 Harbor Row",
		MonthlyRent:     120,
		SecurityDeposit: 240,
		MinRentalMonths: 2,
	})
	if err != nil {
		t.Fatalf("list first: %v", err)
	}
	second, err := svc.List(ctx, ownerID, Fields{
		Location:        "4 Harbor Row",
		MonthlyRent:     130,
		SecurityDeposit: 260,
		MinRentalMonths: 2,
	})
	if err != nil {
		t.Fatalf("list second: %v", err)
	}

	// Ids come from a sequence: later listings get larger ids.
	if second.ID <= first.ID {
		t.Errorf("ids not increasing: first = %d, second = %d", first.ID, second.ID)
	}
	if first.OwnerID != ownerID || second.OwnerID != ownerID {
		t.Errorf("owner = %q / %q, want caller %q", first.OwnerID, second.OwnerID, ownerID)
	}
	if !first.IsListed || !first.IsAvailable {
		t.Errorf("fresh listing not listed/available: %+v", first)
	}

	if err := svc.Unlist(ctx, ownerID, first.ID); err != nil {
		t.Fatalf("unlist: %v", err)
	}
	if err := svc.Unlist(ctx, ownerID, first.ID); !errors.Is(err, ErrNotListed) {
		t.Fatalf("expected ErrNotListed on second unlist, got %v", err)
	}

	got, err := svc.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.IsListed || got.IsAvailable {
		t.Errorf("unlisted property still listed/available: %+v", got)
	}
}

func catalogTableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	if err := pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, name).Scan(&exists); err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
