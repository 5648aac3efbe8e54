package billing

import (
	"context"
	"time"

	"github.com/fundeddesk/billingkit/entitlements"
)

// Change is a precedence-ranked partial update to a user's entitlement.
// Every field write is absolute (no counters, no deltas) so applying the
// same change twice produces the same row. Fields not flagged are left
// untouched by the upsert.
type Change struct {
	UserID string
	Status entitlements.Status

	// CustomerID is write-once-effective: the store keeps the existing
	// value when one is already recorded.
	CustomerID string

	SubscriptionID    *string
	ClearSubscription bool

	PriceID    *string
	ClearPrice bool

	// PeriodEnd is set only by the invoice-settled family. The store
	// never regresses an existing period end to an earlier instant.
	PeriodEnd      *time.Time
	ClearPeriodEnd bool
}

// Store is the durable single-row-per-user entitlement record. Apply must
// be an idempotent upsert keyed on user identity; it is the sole
// serialization point for concurrent events, there is no read-modify-write
// on an in-memory model.
type Store interface {
	Apply(ctx context.Context, ch Change) (entitlements.Entitlement, error)
	Get(ctx context.Context, userID string) (entitlements.Entitlement, bool, error)
}

// Resolver maps an event's correlation identifiers to an internal user id,
// returning ErrNotFound when nothing matches.
type Resolver interface {
	Resolve(ctx context.Context, c Correlation) (string, error)
}

// CustomerIndex is the persisted customer-to-user mapping, populated as a
// byproduct of resolution and checkout, never by a separate write path.
type CustomerIndex interface {
	Lookup(ctx context.Context, customerID string) (string, bool, error)
	Save(ctx context.Context, customerID, userID string) error
}
