package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Bucket segregates funds held for one rental by purpose.
type Bucket string

const (
	BucketRent    Bucket = "rent"
	BucketDeposit Bucket = "deposit"
)

// Caller identifies a component authorized to move funds.
type Caller string

const (
	CallerRentalEngine Caller = "rental_engine"
	CallerArbitration  Caller = "dispute_arbitration"
)

var (
	// ErrUnauthorizedCaller signals the component is not granted
	// escrow access.
	ErrUnauthorizedCaller = errors.New("escrow: caller not authorized")
	// ErrSealed signals the grant window has closed.
	ErrSealed = errors.New("escrow: ledger already sealed")
	// ErrInvalidAmount signals a non-positive amount.
	ErrInvalidAmount = errors.New("escrow: amount must be positive")
	// ErrNothingHeld signals a withdrawal against an empty bucket.
	ErrNothingHeld = errors.New("escrow: nothing held in bucket")
)

// Ledger is the only component that holds funds. Callers are granted
// during bootstrap and the grant set is sealed before serving traffic,
// mirroring deploy-time wiring: no runtime path widens access.
type Ledger struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	granted map[Caller]bool
	sealed  bool
}

// NewLedger creates a ledger with no authorized callers.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{
		pool:    pool,
		granted: make(map[Caller]bool),
	}
}

// Grant authorizes a component. Fails once the ledger is sealed.
func (l *Ledger) Grant(c Caller) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sealed {
		return ErrSealed
	}
	l.granted[c] = true
	return nil
}

// Seal closes the grant window.
func (l *Ledger) Seal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sealed = true
}

func (l *Ledger) authorize(c Caller) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.granted[c] {
		return ErrUnauthorizedCaller
	}
	return nil
}

// Credit adds funds to a rental's bucket inside the caller's
// transaction.
func (l *Ledger) Credit(ctx context.Context, tx pgx.Tx, caller Caller, rentalID string, bucket Bucket, amount int64) error {
	if err := l.authorize(caller); err != nil {
		return err
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	const q = `
INSERT INTO escrow_balances (rental_id, bucket, amount)
VALUES ($1, $2, $3)
ON CONFLICT (rental_id, bucket)
DO UPDATE SET amount = escrow_balances.amount + EXCLUDED.amount,
              updated_at = get_tx_timestamp()
`
	if _, err := tx.Exec(ctx, q, rentalID, bucket, amount); err != nil {
		return fmt.Errorf("escrow: credit %s/%s: %w", rentalID, bucket, err)
	}
	return nil
}

// Withdraw releases the entire bucket to the payee, zeroing it in the
// same transaction. The debit happens before the payout record so the
// same balance can never be paid twice.
func (l *Ledger) Withdraw(ctx context.Context, tx pgx.Tx, caller Caller, rentalID string, bucket Bucket, payeeID string) (int64, error) {
	return l.withdraw(ctx, tx, caller, rentalID, bucket, payeeID, 0)
}

// WithdrawUpTo releases at most limit from the bucket, leaving the
// remainder held. Used by arbitration for partial reallocations.
func (l *Ledger) WithdrawUpTo(ctx context.Context, tx pgx.Tx, caller Caller, rentalID string, bucket Bucket, payeeID string, limit int64) (int64, error) {
	if limit <= 0 {
		return 0, ErrInvalidAmount
	}
	return l.withdraw(ctx, tx, caller, rentalID, bucket, payeeID, limit)
}

func (l *Ledger) withdraw(ctx context.Context, tx pgx.Tx, caller Caller, rentalID string, bucket Bucket, payeeID string, limit int64) (int64, error) {
	if err := l.authorize(caller); err != nil {
		return 0, err
	}

	var held int64
	err := tx.QueryRow(ctx, `
SELECT amount FROM escrow_balances
WHERE rental_id = $1 AND bucket = $2
FOR UPDATE
`, rentalID, bucket).Scan(&held)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNothingHeld
		}
		return 0, fmt.Errorf("escrow: lock balance %s/%s: %w", rentalID, bucket, err)
	}
	if held <= 0 {
		return 0, ErrNothingHeld
	}

	released := held
	if limit > 0 && limit < held {
		released = limit
	}

	if _, err := tx.Exec(ctx, `
UPDATE escrow_balances
SET amount = amount - $3, updated_at = get_tx_timestamp()
WHERE rental_id = $1 AND bucket = $2
`, rentalID, bucket, released); err != nil {
		return 0, fmt.Errorf("escrow: debit %s/%s: %w", rentalID, bucket, err)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO escrow_payouts (rental_id, bucket, payee_id, amount, caller)
VALUES ($1, $2, $3, $4, $5)
`, rentalID, bucket, payeeID, released, string(caller)); err != nil {
		return 0, fmt.Errorf("escrow: record payout: %w", err)
	}

	return released, nil
}

// Held reads a bucket's balance with a row lock inside the caller's
// transaction, so a following withdrawal sees the same amount. Missing
// rows read as zero.
func (l *Ledger) Held(ctx context.Context, tx pgx.Tx, caller Caller, rentalID string, bucket Bucket) (int64, error) {
	if err := l.authorize(caller); err != nil {
		return 0, err
	}
	var amount int64
	err := tx.QueryRow(ctx, `
SELECT amount FROM escrow_balances
WHERE rental_id = $1 AND bucket = $2
FOR UPDATE
`, rentalID, bucket).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("escrow: held %s/%s: %w", rentalID, bucket, err)
	}
	return amount, nil
}

// Balance reads the held amount for one rental and bucket. Missing
// rows read as zero.
func (l *Ledger) Balance(ctx context.Context, rentalID string, bucket Bucket) (int64, error) {
	var amount int64
	err := l.pool.QueryRow(ctx, `
SELECT amount FROM escrow_balances WHERE rental_id = $1 AND bucket = $2
`, rentalID, bucket).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("escrow: balance: %w", err)
	}
	return amount, nil
}
