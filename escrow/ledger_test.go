package escrow

import (
	"context"
	"errors"
	"testing"
)

func TestGrantSeal(t *testing.T) {
	l := NewLedger(nil)

	if err := l.Grant(CallerRentalEngine); err != nil {
		t.Fatalf("grant before seal: %v", err)
	}
	l.Seal()
	if err := l.Grant(CallerArbitration); !errors.Is(err, ErrSealed) {
		t.Fatalf("expected ErrSealed after seal, got %v", err)
	}

	if err := l.authorize(CallerRentalEngine); err != nil {
		t.Fatalf("granted caller rejected: %v", err)
	}
	if err := l.authorize(CallerArbitration); !errors.Is(err, ErrUnauthorizedCaller) {
		t.Fatalf("expected ErrUnauthorizedCaller, got %v", err)
	}
}

func TestCredit_RejectsUnauthorizedCaller(t *testing.T) {
	l := NewLedger(nil)
	l.Seal()

	err := l.Credit(context.Background(), nil, CallerRentalEngine, "rental-1", BucketRent, 100)
	if !errors.Is(err, ErrUnauthorizedCaller) {
		t.Fatalf("expected ErrUnauthorizedCaller, got %v", err)
	}
}

func TestCredit_RejectsNonPositiveAmount(t *testing.T) {
	l := NewLedger(nil)
	if err := l.Grant(CallerRentalEngine); err != nil {
		t.Fatalf("grant: %v", err)
	}

	for _, amount := range []int64{0, -1} {
		err := l.Credit(context.Background(), nil, CallerRentalEngine, "rental-1", BucketRent, amount)
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestWithdrawUpTo_RejectsNonPositiveLimit(t *testing.T) {
	l := NewLedger(nil)
	if err := l.Grant(CallerArbitration); err != nil {
		t.Fatalf("grant: %v", err)
	}

	_, err := l.WithdrawUpTo(context.Background(), nil, CallerArbitration, "rental-1", BucketDeposit, "payee", 0)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
