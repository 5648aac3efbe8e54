package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fundeddesk/billingkit/billing"
	"github.com/sirupsen/logrus"
)

// Resolver maps provider event identifiers to an internal user id.
//
// The lookup order is a deliberate precedence chain, first hit wins:
//  1. explicit user metadata embedded in the event object
//  2. the reference id our checkout flow embedded at session creation
//  3. the persisted customer-to-user index
//  4. one upstream fetch of the customer object, reading its metadata
//
// Any path that learns a customer-to-user pairing writes it back to the
// index so later events for the same customer resolve without a fetch.
type Resolver struct {
	index   billing.CustomerIndex
	fetcher billing.ObjectFetcher
	log     *logrus.Logger
}

func NewResolver(index billing.CustomerIndex, fetcher billing.ObjectFetcher, log *logrus.Logger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{index: index, fetcher: fetcher, log: log}
}

// Resolve returns the internal user id for the event's correlation
// identifiers, or billing.ErrNotFound when every path misses.
func (r *Resolver) Resolve(ctx context.Context, c billing.Correlation) (string, error) {
	customerID := strings.TrimSpace(c.CustomerID)

	if uid := strings.TrimSpace(c.UserID); uid != "" {
		r.backfill(ctx, customerID, uid)
		return uid, nil
	}

	if uid := strings.TrimSpace(c.ClientReference); uid != "" {
		r.backfill(ctx, customerID, uid)
		return uid, nil
	}

	if customerID == "" {
		return "", billing.ErrNotFound
	}

	uid, ok, err := r.index.Lookup(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("customer index lookup: %w: %v", billing.ErrUnavailable, err)
	}
	if ok {
		return uid, nil
	}

	cust, err := r.fetcher.FetchCustomer(ctx, customerID)
	if errors.Is(err, billing.ErrNotFound) {
		// Deleted upstream: the last lookup path is a permanent miss, so
		// the event is unresolvable, not retryable.
		return "", billing.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetch customer %s: %w: %v", customerID, billing.ErrUnavailable, err)
	}
	if uid := strings.TrimSpace(cust.UserID); uid != "" {
		r.backfill(ctx, customerID, uid)
		return uid, nil
	}

	return "", billing.ErrNotFound
}

// backfill records a learned customer-to-user pairing. Best effort: the
// resolution already succeeded, a failed index write only costs a future
// customer fetch.
func (r *Resolver) backfill(ctx context.Context, customerID, userID string) {
	if customerID == "" || userID == "" {
		return
	}
	if err := r.index.Save(ctx, customerID, userID); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"customer_id": customerID,
			"user_id":     userID,
		}).Warn("identity: customer index backfill failed")
	}
}
