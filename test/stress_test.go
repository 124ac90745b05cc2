package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"rentflow/dispute"
	"rentflow/escrow"
	"rentflow/identity"
	"rentflow/listing"
	"rentflow/rental"
	"rentflow/test/actors"
	"rentflow/test/chaos"
	"rentflow/test/infra"
	"rentflow/test/oracles"
)

var (
	flDuration = flag.Duration("duration", 60*time.Second, "how long to run stress")
	flSeed     = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN      = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
	flChaos    = flag.Bool("chaos", false, "kill random database backends while running")
)

func TestRentalPlatformConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	rand.Seed(seed)

	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	switch {
	case *flDSN != "":
		dsn, usedShared, pgC = *flDSN, true, &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn, usedShared, pgC = os.Getenv("STRESS_TEST_PG_DSN"), true, &infra.PGContainer{}
	default:
		if !dockerAvailable(ctx) {
			t.Skip("no Docker and no STRESS_TEST_PG_DSN; skipping stress run")
		}
		pgC, dsn, err = infra.StartPostgres16(ctx, "")
		if err != nil {
			t.Fatalf("start postgres: %v", err)
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	ids := mustSeed(t, ctx, pool)

	ledger := escrow.NewLedger(pool)
	if err := ledger.Grant(escrow.CallerRentalEngine); err != nil {
		t.Fatalf("grant rental engine: %v", err)
	}
	if err := ledger.Grant(escrow.CallerArbitration); err != nil {
		t.Fatalf("grant arbitration: %v", err)
	}
	ledger.Seal()

	listingSvc := listing.NewService(pool)
	rentalSvc := rental.NewService(pool, rental.NewRepository(pool), ledger)
	disputeSvc := dispute.NewService(pool, dispute.NewRepository(pool), ledger, ids.admin)

	if err := disputeSvc.AddArbitrator(ctx, ids.admin, ids.arbitrator); err != nil {
		t.Fatalf("add arbitrator: %v", err)
	}

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	g.Go(func() error { return actors.Landlord(ctx2, listingSvc, ids.landlord, stop) })
	g.Go(func() error { return actors.Tenant(ctx2, pool, rentalSvc, ids.tenant, stop) })
	g.Go(func() error { return actors.Payer(ctx2, pool, rentalSvc, ids.tenant, stop) })
	g.Go(func() error { return actors.Payer(ctx2, pool, rentalSvc, ids.tenant, stop) })
	g.Go(func() error { return actors.Withdrawer(ctx2, pool, rentalSvc, ids.landlord, stop) })
	g.Go(func() error { return actors.Disputer(ctx2, pool, disputeSvc, ids.tenant, ids.arbitrator, stop) })
	if *flChaos {
		go chaos.TerminateRandomBackend(ctx2, pool, stop)
	}

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx2.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("oracle %s failed, first row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v (seed=%d)", err, seed)
		}
	}

	// One final pass on the quiesced database.
	name, row, err := oracles.Run(context.Background(), pool)
	if err != nil {
		t.Fatalf("final oracle error: %v", err)
	}
	if name != "" {
		dumpRecent(t, context.Background(), pool)
		t.Fatalf("final oracle %s failed, first row: %s (seed=%d)", name, row, seed)
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	admin      string
	landlord   string
	tenant     string
	arbitrator string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	svc := identity.NewService(identity.NewRepository(pool), "stress-secret", time.Hour)

	register := func(role string) string {
		user, err := svc.Register(ctx, identity.RegisterRequest{
			Email:       fmt.Sprintf("%s+%d@example.com", role, rand.Int63()),
			Password:    "stress-password",
			DisplayName: "Stress " + role,
		})
		if err != nil {
			t.Fatalf("seed %s: %v", role, err)
		}
		return user.ID
	}

	return seedIDs{
		admin:      register("admin"),
		landlord:   register("landlord"),
		tenant:     register("tenant"),
		arbitrator: register("arbitrator"),
	}
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	dumps := []struct {
		name string
		sql  string
	}{
		{"rentals", `SELECT id, property_id, status, rent_paid_until FROM rentals ORDER BY created_at DESC LIMIT 50`},
		{"escrow_balances", `SELECT rental_id, bucket, amount FROM escrow_balances ORDER BY updated_at DESC LIMIT 50`},
		{"escrow_payouts", `SELECT rental_id, bucket, payee_id, amount, caller FROM escrow_payouts ORDER BY created_at DESC LIMIT 50`},
		{"timeline_events", `SELECT entity_kind, entity_id, seq, type, ts FROM timeline_events ORDER BY id DESC LIMIT 50`},
		{"disputes", `SELECT id, rental_id, status, outcome FROM disputes ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
