package listing

import (
	"errors"
	"testing"
)

func TestValidateFields(t *testing.T) {
	valid := Fields{
		Location:        "123 Test Street",
		MonthlyRent:     1_000_000,
		SecurityDeposit: 2_000_000,
		MinRentalMonths: 12,
	}
	if err := validateFields(valid); err != nil {
		t.Fatalf("expected valid fields, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Fields)
	}{
		{"empty location", func(f *Fields) { f.Location = "  " }},
		{"zero rent", func(f *Fields) { f.MonthlyRent = 0 }},
		{"negative rent", func(f *Fields) { f.MonthlyRent = -5 }},
		{"zero deposit", func(f *Fields) { f.SecurityDeposit = 0 }},
		{"zero term", func(f *Fields) { f.MinRentalMonths = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := valid
			tc.mutate(&f)
			if err := validateFields(f); !errors.Is(err, ErrInvalidFields) {
				t.Fatalf("expected ErrInvalidFields, got %v", err)
			}
		})
	}
}
