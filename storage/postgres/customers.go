package pgstore

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CustomerIndex maps provider customer ids to internal users. Rows are
// written as a byproduct of resolution and checkout, never by their own
// write path.
type CustomerIndex struct {
	pg *pgxpool.Pool
}

func NewCustomerIndex(pg *pgxpool.Pool) *CustomerIndex {
	return &CustomerIndex{pg: pg}
}

func (i *CustomerIndex) Lookup(ctx context.Context, customerID string) (string, bool, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return "", false, nil
	}
	var userID string
	err := i.pg.QueryRow(ctx,
		`SELECT user_id FROM billing_customers WHERE customer_id = $1`, customerID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

func (i *CustomerIndex) Save(ctx context.Context, customerID, userID string) error {
	customerID = strings.TrimSpace(customerID)
	userID = strings.TrimSpace(userID)
	if customerID == "" || userID == "" {
		return errors.New("pgstore: customer id and user id required")
	}
	_, err := i.pg.Exec(ctx, `
INSERT INTO billing_customers (customer_id, user_id, created_at)
VALUES ($1, $2, NOW())
ON CONFLICT (customer_id) DO UPDATE SET user_id = EXCLUDED.user_id`, customerID, userID)
	return err
}
