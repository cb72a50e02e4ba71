// Package repositories implements PostgreSQL data access. Every repository
// runs its statements on the transaction carried by the context when there is
// one, so services can group writes with database.Transactor.
package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// isUniqueViolation reports PostgreSQL error code 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// nullString converts empty strings to nil for nullable columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// decimalText renders a decimal for a ::numeric parameter. pgx has no native
// shopspring codec, so amounts cross the wire as text.
func decimalText(d decimal.Decimal) string {
	return d.String()
}

func nullDecimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseNullDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
