// Package pgstore provides the durable billing stores on Postgres.
package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/fundeddesk/billingkit/billing"
	"github.com/fundeddesk/billingkit/entitlements"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntitlementStore is the single-row-per-user entitlement table. The
// primary key on user_id is the uniqueness constraint every transition
// upserts against; there is no read-modify-write cycle.
type EntitlementStore struct {
	pg *pgxpool.Pool
}

func NewEntitlementStore(pg *pgxpool.Pool) *EntitlementStore {
	return &EntitlementStore{pg: pg}
}

// upsertSQL encodes the precedence rules in one statement so concurrent
// events serialize entirely inside the database:
//   - customer_id is write-once: an existing value is never replaced
//   - subscription_id / price_id are written only when the change flags them
//   - current_period_end never regresses to an earlier instant, and only a
//     lifetime grant clears it
//   - a lifetime row rejects every non-lifetime transition outright
const upsertSQL = `
INSERT INTO billing_entitlements
	(user_id, customer_id, subscription_id, status, price_id, current_period_end, updated_at)
VALUES
	($1, NULLIF($2, ''), CASE WHEN $4 THEN $5 END, $3, CASE WHEN $6 THEN $7 END,
	 CASE WHEN $8 AND NOT $10 THEN $9 END, NOW())
ON CONFLICT (user_id) DO UPDATE SET
	status = EXCLUDED.status,
	customer_id = COALESCE(billing_entitlements.customer_id, EXCLUDED.customer_id),
	subscription_id = CASE WHEN $4 THEN $5 ELSE billing_entitlements.subscription_id END,
	price_id = CASE WHEN $6 THEN $7 ELSE billing_entitlements.price_id END,
	current_period_end = CASE
		WHEN $10 THEN NULL
		WHEN $8 THEN GREATEST(COALESCE(billing_entitlements.current_period_end, $9), $9)
		ELSE billing_entitlements.current_period_end
	END,
	updated_at = NOW()
WHERE billing_entitlements.status <> 'lifetime' OR EXCLUDED.status = 'lifetime'
RETURNING user_id, customer_id, subscription_id, status, price_id, current_period_end, updated_at`

func (s *EntitlementStore) Apply(ctx context.Context, ch billing.Change) (entitlements.Entitlement, error) {
	subSet := ch.ClearSubscription || ch.SubscriptionID != nil
	priceSet := ch.ClearPrice || ch.PriceID != nil
	peSet := ch.PeriodEnd != nil

	var subVal, priceVal *string
	if !ch.ClearSubscription {
		subVal = ch.SubscriptionID
	}
	if !ch.ClearPrice {
		priceVal = ch.PriceID
	}

	row := s.pg.QueryRow(ctx, upsertSQL,
		ch.UserID, ch.CustomerID, string(ch.Status),
		subSet, subVal,
		priceSet, priceVal,
		peSet, ch.PeriodEnd, ch.ClearPeriodEnd,
	)
	rec, err := scanEntitlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// The conflict guard fired: the row is lifetime and the change was
		// not. Return the untouched record.
		return s.get(ctx, ch.UserID)
	}
	if err != nil {
		return entitlements.Entitlement{}, err
	}
	return rec, nil
}

func (s *EntitlementStore) Get(ctx context.Context, userID string) (entitlements.Entitlement, bool, error) {
	rec, err := s.get(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return entitlements.Entitlement{}, false, nil
	}
	if err != nil {
		return entitlements.Entitlement{}, false, err
	}
	return rec, true, nil
}

func (s *EntitlementStore) get(ctx context.Context, userID string) (entitlements.Entitlement, error) {
	row := s.pg.QueryRow(ctx, `
SELECT user_id, customer_id, subscription_id, status, price_id, current_period_end, updated_at
FROM billing_entitlements WHERE user_id = $1`, userID)
	return scanEntitlement(row)
}

// ListLapsed returns active records whose paid-through instant has passed,
// for the lapse sweep.
func (s *EntitlementStore) ListLapsed(ctx context.Context, asOf time.Time) ([]entitlements.Entitlement, error) {
	rows, err := s.pg.Query(ctx, `
SELECT user_id, customer_id, subscription_id, status, price_id, current_period_end, updated_at
FROM billing_entitlements
WHERE status = 'active' AND current_period_end IS NOT NULL AND current_period_end < $1`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entitlements.Entitlement
	for rows.Next() {
		rec, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanEntitlement(row pgx.Row) (entitlements.Entitlement, error) {
	var rec entitlements.Entitlement
	var customerID *string
	var status string
	if err := row.Scan(&rec.UserID, &customerID, &rec.SubscriptionID, &status, &rec.PriceID, &rec.CurrentPeriodEnd, &rec.UpdatedAt); err != nil {
		return entitlements.Entitlement{}, err
	}
	if customerID != nil {
		rec.CustomerID = *customerID
	}
	rec.Status = entitlements.Status(status)
	return rec, nil
}
