package stripekit

import (
	"context"
	"fmt"
	"strings"

	"github.com/fundeddesk/billingkit/billing"
	"github.com/fundeddesk/billingkit/entitlements"
	"github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
)

// Plan selectors accepted by the checkout endpoint.
const (
	PlanMonthly  = "monthly"
	PlanLifetime = "lifetime"
)

// SessionConfig holds the price ids and redirect targets for hosted
// sessions, constructed once at startup.
type SessionConfig struct {
	MonthlyPriceID  string
	LifetimePriceID string
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
}

// SessionIssuer creates provider-hosted checkout and portal sessions for
// authenticated callers. On a user's first checkout it creates and persists
// a provider customer before the session exists, so webhook events can
// resolve through the customer index even before any purchase completes.
type SessionIssuer struct {
	cfg   SessionConfig
	store billing.Store
	index billing.CustomerIndex
	log   *logrus.Logger

	createCheckout func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	createPortal   func(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
	createCustomer func(params *stripe.CustomerParams) (*stripe.Customer, error)
}

func NewSessionIssuer(cfg SessionConfig, store billing.Store, index billing.CustomerIndex, log *logrus.Logger) *SessionIssuer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SessionIssuer{
		cfg:            cfg,
		store:          store,
		index:          index,
		log:            log,
		createCheckout: checkoutsession.New,
		createPortal:   portalsession.New,
		createCustomer: customer.New,
	}
}

// Checkout returns the redirect URL of a hosted checkout session for the
// given plan. Unknown plans are ErrInvalidArgument with a displayable
// message; provider failures are ErrUnavailable.
func (i *SessionIssuer) Checkout(ctx context.Context, userID, plan string) (string, error) {
	var priceID string
	var mode stripe.CheckoutSessionMode
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case PlanMonthly:
		priceID = i.cfg.MonthlyPriceID
		mode = stripe.CheckoutSessionModeSubscription
	case PlanLifetime:
		priceID = i.cfg.LifetimePriceID
		mode = stripe.CheckoutSessionModePayment
	default:
		return "", fmt.Errorf("unknown plan %q: %w", plan, billing.ErrInvalidArgument)
	}

	customerID, err := i.ensureCustomer(ctx, userID)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(mode)),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(userID),
		SuccessURL:        stripe.String(i.cfg.SuccessURL),
		CancelURL:         stripe.String(i.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			MetadataUserKey:  userID,
			metadataPriceKey: priceID,
		},
	}
	params.Context = ctx
	if mode == stripe.CheckoutSessionModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetadataUserKey: userID},
		}
	}

	session, err := i.createCheckout(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w: %v", billing.ErrUnavailable, err)
	}
	if session == nil || strings.TrimSpace(session.URL) == "" {
		return "", fmt.Errorf("empty checkout URL: %w", billing.ErrUnavailable)
	}

	i.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"customer_id": customerID,
		"plan":        plan,
	}).Info("stripekit: checkout session created")
	return strings.TrimSpace(session.URL), nil
}

// Portal returns the redirect URL of a self-service billing portal
// session. Callers without a billable customer get ErrNotFound; lifetime
// grants have nothing to manage in the portal and get ErrInvalidArgument.
func (i *SessionIssuer) Portal(ctx context.Context, userID string) (string, error) {
	rec, ok, err := i.store.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load entitlement: %w: %v", billing.ErrUnavailable, err)
	}
	if !ok || strings.TrimSpace(rec.CustomerID) == "" {
		return "", fmt.Errorf("no billing account: %w", billing.ErrNotFound)
	}
	if rec.Status == entitlements.StatusLifetime {
		return "", fmt.Errorf("lifetime purchases have no billing portal: %w", billing.ErrInvalidArgument)
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(rec.CustomerID),
		ReturnURL: stripe.String(i.cfg.PortalReturnURL),
	}
	params.Context = ctx

	session, err := i.createPortal(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w: %v", billing.ErrUnavailable, err)
	}
	if session == nil || strings.TrimSpace(session.URL) == "" {
		return "", fmt.Errorf("empty portal URL: %w", billing.ErrUnavailable)
	}
	return strings.TrimSpace(session.URL), nil
}

// ensureCustomer returns the user's provider customer id, creating and
// persisting one on first use. The id lands in both the customer index and
// the entitlement row (write-once) before any session exists.
func (i *SessionIssuer) ensureCustomer(ctx context.Context, userID string) (string, error) {
	rec, ok, err := i.store.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load entitlement: %w: %v", billing.ErrUnavailable, err)
	}
	if ok && strings.TrimSpace(rec.CustomerID) != "" {
		return rec.CustomerID, nil
	}

	params := &stripe.CustomerParams{}
	params.Context = ctx
	params.AddMetadata(MetadataUserKey, userID)
	cust, err := i.createCustomer(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w: %v", billing.ErrUnavailable, err)
	}

	if err := i.index.Save(ctx, cust.ID, userID); err != nil {
		return "", fmt.Errorf("save customer index: %w: %v", billing.ErrUnavailable, err)
	}
	status := entitlements.StatusInactive
	if ok {
		status = rec.Status
	}
	if _, err := i.store.Apply(ctx, billing.Change{
		UserID:     userID,
		Status:     status,
		CustomerID: cust.ID,
	}); err != nil {
		return "", fmt.Errorf("persist customer id: %w: %v", billing.ErrUnavailable, err)
	}
	return cust.ID, nil
}
