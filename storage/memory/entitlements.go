package memorystore

import (
	"context"
	"sync"
	"time"

	"github.com/fundeddesk/billingkit/billing"
	"github.com/fundeddesk/billingkit/entitlements"
)

// EntitlementStore is an in-memory billing.Store for tests and dev mode.
// Apply mirrors the postgres upsert semantics exactly: absolute field
// writes, write-once customer id, monotonic period end, permanent lifetime.
type EntitlementStore struct {
	mu   sync.Mutex
	rows map[string]entitlements.Entitlement
	now  func() time.Time
}

func NewEntitlementStore() *EntitlementStore {
	return &EntitlementStore{
		rows: make(map[string]entitlements.Entitlement),
		now:  time.Now,
	}
}

// SetClock replaces the update timestamp source. Test hook.
func (s *EntitlementStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *EntitlementStore) Apply(ctx context.Context, ch billing.Change) (entitlements.Entitlement, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rows[ch.UserID]
	if !ok {
		rec = entitlements.Entitlement{UserID: ch.UserID}
	}

	// A lifetime grant is permanent: recurring-plan events that arrive
	// afterwards (late, duplicated, or out of order) must not reintroduce
	// subscription bookkeeping.
	if rec.Status == entitlements.StatusLifetime && ch.Status != entitlements.StatusLifetime {
		return rec, nil
	}

	rec.Status = ch.Status
	if rec.CustomerID == "" {
		rec.CustomerID = ch.CustomerID
	}

	switch {
	case ch.ClearSubscription:
		rec.SubscriptionID = nil
	case ch.SubscriptionID != nil:
		rec.SubscriptionID = cloneString(ch.SubscriptionID)
	}

	switch {
	case ch.ClearPrice:
		rec.PriceID = nil
	case ch.PriceID != nil:
		rec.PriceID = cloneString(ch.PriceID)
	}

	switch {
	case ch.ClearPeriodEnd:
		rec.CurrentPeriodEnd = nil
	case ch.PeriodEnd != nil:
		if rec.CurrentPeriodEnd == nil || ch.PeriodEnd.After(*rec.CurrentPeriodEnd) {
			t := *ch.PeriodEnd
			rec.CurrentPeriodEnd = &t
		}
	}

	rec.UpdatedAt = s.now()
	s.rows[ch.UserID] = rec
	return rec, nil
}

func (s *EntitlementStore) Get(ctx context.Context, userID string) (entitlements.Entitlement, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[userID]
	return rec, ok, nil
}

// ListLapsed returns active records whose period end has passed.
func (s *EntitlementStore) ListLapsed(ctx context.Context, asOf time.Time) ([]entitlements.Entitlement, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entitlements.Entitlement
	for _, rec := range s.rows {
		if rec.Status == entitlements.StatusActive && rec.CurrentPeriodEnd != nil && rec.CurrentPeriodEnd.Before(asOf) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func cloneString(p *string) *string {
	v := *p
	return &v
}
