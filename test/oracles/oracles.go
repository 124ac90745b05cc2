// Package oracles holds the invariants checked while the actors run.
// Each oracle is a query that must return zero rows.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_occupied_property_not_available",
			SQL: `SELECT p.id FROM properties p
                  JOIN rentals r ON r.property_id = p.id
                  WHERE r.status IN ('active','deposit_release_pending') AND p.is_available`,
		},
		{
			Name: "O2_single_live_rental_per_property",
			SQL: `SELECT property_id, COUNT(*) FROM rentals
                  WHERE status IN ('active','deposit_release_pending')
                  GROUP BY property_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_timeline_seq_dense",
			SQL: `WITH seqs AS (
                      SELECT entity_kind, entity_id, seq,
                             LAG(seq) OVER (PARTITION BY entity_kind, entity_id ORDER BY seq) AS prev
                      FROM timeline_events)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND seq <> prev + 1`,
		},
		{
			Name: "O4_escrow_never_negative",
			SQL:  `SELECT * FROM escrow_balances WHERE amount < 0`,
		},
		{
			Name: "O5_escrow_conservation",
			SQL: `SELECT r.id FROM rentals r
                  LEFT JOIN (SELECT rental_id, SUM(amount) AS total FROM escrow_payouts GROUP BY rental_id) pay
                    ON pay.rental_id = r.id
                  LEFT JOIN (SELECT rental_id, SUM(amount) AS total FROM escrow_balances GROUP BY rental_id) bal
                    ON bal.rental_id = r.id
                  WHERE r.monthly_rent *
                          ROUND(EXTRACT(EPOCH FROM (r.rent_paid_until - r.start_date)) / 2592000)::bigint
                        + r.security_deposit
                        <> COALESCE(pay.total, 0) + COALESCE(bal.total, 0)`,
		},
		{
			Name: "O6_ended_rental_holds_no_deposit",
			SQL: `SELECT b.rental_id FROM escrow_balances b
                  JOIN rentals r ON r.id = b.rental_id
                  WHERE r.status = 'ended' AND b.bucket = 'deposit' AND b.amount > 0`,
		},
		{
			Name: "O7_resolution_write_once",
			SQL: `SELECT id FROM disputes
                  WHERE (status = 'resolved') <> (outcome IS NOT NULL AND resolver_id IS NOT NULL AND resolved_at IS NOT NULL)`,
		},
		{
			Name: "O8_rent_paid_never_behind_start",
			SQL:  `SELECT id FROM rentals WHERE rent_paid_until < start_date`,
		},
		{
			Name: "O9_payouts_positive",
			SQL:  `SELECT id FROM escrow_payouts WHERE amount <= 0`,
		},
	}
}

// Run executes every oracle and returns the first failing oracle's
// name with a sample row, or an empty name when all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
