package billing

import (
	"context"
	"time"
)

// CheckoutMode distinguishes one-time purchases from recurring plans.
type CheckoutMode string

const (
	ModePayment      CheckoutMode = "payment"
	ModeSubscription CheckoutMode = "subscription"
)

// Correlation carries every identifier an event exposes that can tie it to
// an internal user. Resolution precedence lives in the resolver, not here.
type Correlation struct {
	// UserID is explicit user metadata embedded in the provider object.
	UserID string
	// ClientReference is the reference id our checkout flow embedded at
	// session-creation time.
	ClientReference string
	// CustomerID is the provider-assigned customer identifier.
	CustomerID string
}

// Event is the closed set of provider event categories the reconciliation
// engine models. The interface is sealed so dispatch over variants is a
// compile-time-checked decision; unmodeled provider types never construct
// an Event and are acknowledged upstream as no-ops.
type Event interface {
	EventCorrelation() Correlation
	isEvent()
}

// CheckoutCompleted is a finished hosted-checkout session, either a
// one-time (lifetime) purchase or the start of a subscription.
type CheckoutCompleted struct {
	SessionID      string
	Mode           CheckoutMode
	CustomerID     string
	SubscriptionID string
	PriceID        string
	UserID         string
	ClientRef      string
}

// SubscriptionChanged is any of the provider's subscription
// created/updated/deleted events. The payload status is untrusted; the
// engine re-fetches the subscription object.
type SubscriptionChanged struct {
	SubscriptionID string
	CustomerID     string
	UserID         string
}

// InvoiceCreated marks the provisional start of a billing attempt.
type InvoiceCreated struct {
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	UserID         string
}

// InvoiceSettled is the finalized/paid/payment-succeeded family: the sole
// authoritative source of the entitled-through instant.
type InvoiceSettled struct {
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	UserID         string
}

// InvoicePaymentFailed is a failed collection attempt on an invoice.
type InvoicePaymentFailed struct {
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	UserID         string
}

func (e CheckoutCompleted) EventCorrelation() Correlation {
	return Correlation{UserID: e.UserID, ClientReference: e.ClientRef, CustomerID: e.CustomerID}
}
func (e SubscriptionChanged) EventCorrelation() Correlation {
	return Correlation{UserID: e.UserID, CustomerID: e.CustomerID}
}
func (e InvoiceCreated) EventCorrelation() Correlation {
	return Correlation{UserID: e.UserID, CustomerID: e.CustomerID}
}
func (e InvoiceSettled) EventCorrelation() Correlation {
	return Correlation{UserID: e.UserID, CustomerID: e.CustomerID}
}
func (e InvoicePaymentFailed) EventCorrelation() Correlation {
	return Correlation{UserID: e.UserID, CustomerID: e.CustomerID}
}

func (CheckoutCompleted) isEvent()    {}
func (SubscriptionChanged) isEvent()  {}
func (InvoiceCreated) isEvent()       {}
func (InvoiceSettled) isEvent()       {}
func (InvoicePaymentFailed) isEvent() {}

// Customer is the trusted-fields view of a fetched provider customer.
type Customer struct {
	ID     string
	UserID string // from object metadata
}

// Subscription is the trusted-fields view of a fetched provider
// subscription. Period boundaries are deliberately absent: subscription
// timestamps are not trusted for entitlement windows.
type Subscription struct {
	ID         string
	CustomerID string
	Status     string
	PriceID    string
}

// Invoice is the trusted-fields view of a fetched provider invoice.
// LinePeriodEnd is the latest line-item period end: the authoritative
// entitled-through instant for recurring plans.
type Invoice struct {
	ID            string
	CustomerID    string
	LinePeriodEnd *time.Time
}

// ObjectFetcher fetches the current provider object by id. Webhook payloads
// can carry stale fields; the engine re-fetches and trusts only the fields
// in the views above. Implementations must honor ctx deadlines.
type ObjectFetcher interface {
	FetchCustomer(ctx context.Context, id string) (Customer, error)
	FetchSubscription(ctx context.Context, id string) (Subscription, error)
	FetchInvoice(ctx context.Context, id string) (Invoice, error)
}
