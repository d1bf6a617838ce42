package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	pgxErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_wallet_transactions_type_reference"}
	pqErr := &pq.Error{Code: "23505", Constraint: "ux_variant_providers_code_sku"}

	cases := []struct {
		name       string
		err        error
		constraint string
		columns    []string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pgx any", err: fmt.Errorf("insert: %w", pgxErr), want: true},
		{name: "pgx matching", err: pgxErr, constraint: "ux_wallet_transactions_type_reference", want: true},
		{name: "pgx other constraint", err: pgxErr, constraint: "ux_orders_invoice_code", want: false},
		{name: "pq matching", err: pqErr, constraint: "ux_variant_providers_code_sku", want: true},
		{name: "pq other code", err: &pq.Error{Code: "23503"}, want: false},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: wallet_transactions.type, wallet_transactions.reference"), want: true},
		{
			name:       "sqlite matching columns",
			err:        errors.New("insert: UNIQUE constraint failed: wallet_transactions.type, wallet_transactions.reference"),
			constraint: "ux_wallet_transactions_type_reference",
			columns:    []string{"wallet_transactions.reference", "wallet_transactions.type"},
			want:       true,
		},
		{
			name:       "sqlite extended code suffix",
			err:        errors.New("UNIQUE constraint failed: wallet_transactions.type, wallet_transactions.reference (2067)"),
			constraint: "ux_wallet_transactions_type_reference",
			columns:    []string{"wallet_transactions.type", "wallet_transactions.reference"},
			want:       true,
		},
		{
			name:       "sqlite other columns",
			err:        errors.New("UNIQUE constraint failed: orders.invoice_code"),
			constraint: "ux_wallet_transactions_type_reference",
			columns:    []string{"wallet_transactions.type", "wallet_transactions.reference"},
			want:       false,
		},
		{
			name:       "sqlite named without columns",
			err:        errors.New("UNIQUE constraint failed: wallet_transactions.type, wallet_transactions.reference"),
			constraint: "ux_wallet_transactions_type_reference",
			want:       false,
		},
		{name: "plain", err: errors.New("connection reset"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolation(tc.err, tc.constraint, tc.columns...); got != tc.want {
				t.Fatalf("IsUniqueViolation() = %v, want %v", got, tc.want)
			}
		})
	}
}
