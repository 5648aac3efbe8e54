package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fundeddesk/billingkit/entitlements"
	"github.com/sirupsen/logrus"
)

// Engine merges verified, resolved provider events into the entitlement
// store. It holds no mutable state of its own: each event is an independent
// request and the store's upsert is the only serialization point, so
// concurrent events for the same user are safe under any interleaving.
type Engine struct {
	fetcher ObjectFetcher
	res     Resolver
	store   Store
	log     *logrus.Logger
}

func NewEngine(fetcher ObjectFetcher, res Resolver, store Store, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{fetcher: fetcher, res: res, store: store, log: log}
}

// Process resolves the event to a user, computes the transition, and
// upserts it. An event no known user maps to is dropped (logged, success to
// the caller): it belongs to a customer never associated with a user and is
// not recoverable locally. Fetch and write failures surface as
// ErrUnavailable so the webhook endpoint returns non-2xx and the provider
// redelivers.
func (e *Engine) Process(ctx context.Context, evt Event) error {
	corr := evt.EventCorrelation()

	userID, err := e.res.Resolve(ctx, corr)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.log.WithFields(logrus.Fields{
				"customer_id": corr.CustomerID,
				"event":       fmt.Sprintf("%T", evt),
			}).Warn("billing: event dropped, no resolvable user")
			return nil
		}
		return fmt.Errorf("resolve user: %w", err)
	}

	ch, err := e.change(ctx, userID, evt)
	if err != nil {
		return err
	}

	rec, err := e.store.Apply(ctx, ch)
	if err != nil {
		return fmt.Errorf("apply entitlement change: %w: %v", ErrUnavailable, err)
	}

	e.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"customer_id": rec.CustomerID,
		"status":      rec.Status,
	}).Info("billing: entitlement reconciled")
	return nil
}

// change computes the partial update for a resolved event. Dispatch is over
// the sealed variant set; there is no default branch to silently swallow a
// new category.
func (e *Engine) change(ctx context.Context, userID string, evt Event) (Change, error) {
	switch ev := evt.(type) {
	case CheckoutCompleted:
		if ev.Mode == ModePayment {
			// One-time purchase: a permanent grant with no recurring
			// bookkeeping attached.
			return Change{
				UserID:            userID,
				Status:            entitlements.StatusLifetime,
				CustomerID:        ev.CustomerID,
				PriceID:           ptrOrNil(ev.PriceID),
				ClearSubscription: true,
				ClearPeriodEnd:    true,
			}, nil
		}
		// Subscription checkout: the session is not authoritative for the
		// entitlement window, so the period end stays untouched until an
		// invoice event arrives.
		return Change{
			UserID:         userID,
			Status:         entitlements.StatusIncomplete,
			CustomerID:     ev.CustomerID,
			SubscriptionID: ptrOrNil(ev.SubscriptionID),
		}, nil

	case SubscriptionChanged:
		sub, err := e.fetcher.FetchSubscription(ctx, ev.SubscriptionID)
		if err != nil {
			return Change{}, fmt.Errorf("fetch subscription %s: %w: %v", ev.SubscriptionID, ErrUnavailable, err)
		}
		return Change{
			UserID:         userID,
			Status:         MapSubscriptionStatus(sub.Status),
			CustomerID:     ev.CustomerID,
			SubscriptionID: ptrOrNil(sub.ID),
			PriceID:        ptrOrNil(sub.PriceID),
		}, nil

	case InvoiceCreated:
		return Change{
			UserID:     userID,
			Status:     entitlements.StatusIncomplete,
			CustomerID: ev.CustomerID,
		}, nil

	case InvoiceSettled:
		inv, err := e.fetcher.FetchInvoice(ctx, ev.InvoiceID)
		if err != nil {
			return Change{}, fmt.Errorf("fetch invoice %s: %w: %v", ev.InvoiceID, ErrUnavailable, err)
		}
		return Change{
			UserID:     userID,
			Status:     entitlements.StatusActive,
			CustomerID: ev.CustomerID,
			PeriodEnd:  inv.LinePeriodEnd,
		}, nil

	case InvoicePaymentFailed:
		return Change{
			UserID:     userID,
			Status:     entitlements.StatusPastDue,
			CustomerID: ev.CustomerID,
			ClearPrice: true,
		}, nil
	}
	// Unreachable: Event is sealed.
	return Change{}, fmt.Errorf("%w: unmodeled event %T", ErrInvalidArgument, evt)
}

// MapSubscriptionStatus converts a provider subscription status to the
// entitlement status vocabulary. Statuses without a counterpart fail closed
// to unknown rather than granting access.
func MapSubscriptionStatus(status string) entitlements.Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing":
		return entitlements.StatusActive
	case "past_due", "unpaid":
		return entitlements.StatusPastDue
	case "canceled", "incomplete_expired":
		return entitlements.StatusCanceled
	case "incomplete":
		return entitlements.StatusIncomplete
	default:
		return entitlements.StatusUnknown
	}
}

func ptrOrNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
