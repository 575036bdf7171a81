package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const (
	discountPercent = "percent"
	discountFlat    = "flat"
)

// ErrPromotionUnavailable is returned for unknown, inactive or out-of-window codes.
var ErrPromotionUnavailable = errors.New("promotion code is not available")

// PromotionRepository evaluates promotion codes stored in PostgreSQL.
type PromotionRepository struct {
	db *sql.DB
}

// NewPromotionRepository creates a new PromotionRepository.
func NewPromotionRepository(db *sql.DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

// Discount returns the amount code takes off amount. Percent codes are
// capped by max_discount when one is set.
func (r *PromotionRepository) Discount(ctx context.Context, code, userID string, amount float64) (float64, error) {
	query := `
		SELECT discount_type, value, max_discount
		FROM promotions
		WHERE code = $1 AND active
		  AND (valid_from IS NULL OR valid_from <= NOW())
		  AND (valid_until IS NULL OR valid_until > NOW())`

	var (
		discountType string
		value        float64
		maxDiscount  sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, query, strings.ToUpper(strings.TrimSpace(code))).
		Scan(&discountType, &value, &maxDiscount)
	if err == sql.ErrNoRows {
		return 0, ErrPromotionUnavailable
	}
	if err != nil {
		return 0, err
	}

	switch discountType {
	case discountPercent:
		discount := amount * value / 100
		if maxDiscount.Valid && discount > maxDiscount.Float64 {
			discount = maxDiscount.Float64
		}
		return discount, nil
	case discountFlat:
		return value, nil
	default:
		return 0, fmt.Errorf("promotion %s has unknown discount type %q", code, discountType)
	}
}
