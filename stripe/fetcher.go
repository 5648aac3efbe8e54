package stripekit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fundeddesk/billingkit/billing"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/subscription"
)

// Fetcher implements billing.ObjectFetcher over the provider API. The
// fetch functions are injectable so tests can substitute fakes without a
// network.
type Fetcher struct {
	getCustomer     func(id string, params *stripe.CustomerParams) (*stripe.Customer, error)
	getSubscription func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	getInvoice      func(id string, params *stripe.InvoiceParams) (*stripe.Invoice, error)
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		getCustomer:     customer.Get,
		getSubscription: subscription.Get,
		getInvoice:      invoice.Get,
	}
}

func (f *Fetcher) FetchCustomer(ctx context.Context, id string) (billing.Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := f.getCustomer(id, params)
	if err != nil {
		// A deleted customer is a permanent miss, not an outage. Callers
		// drop the event instead of asking the provider to redeliver it.
		if isResourceMissing(err) {
			return billing.Customer{}, fmt.Errorf("stripe customer %s: %w", id, billing.ErrNotFound)
		}
		return billing.Customer{}, fmt.Errorf("stripe customer %s: %w", id, err)
	}
	out := billing.Customer{ID: c.ID}
	if c.Metadata != nil {
		out.UserID = c.Metadata[MetadataUserKey]
	}
	return out, nil
}

func (f *Fetcher) FetchSubscription(ctx context.Context, id string) (billing.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	s, err := f.getSubscription(id, params)
	if err != nil {
		return billing.Subscription{}, fmt.Errorf("stripe subscription %s: %w", id, err)
	}
	out := billing.Subscription{
		ID:     s.ID,
		Status: string(s.Status),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil {
		for _, item := range s.Items.Data {
			if item != nil && item.Price != nil && item.Price.ID != "" {
				out.PriceID = item.Price.ID
				break
			}
		}
	}
	return out, nil
}

func (f *Fetcher) FetchInvoice(ctx context.Context, id string) (billing.Invoice, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	params.AddExpand("lines")
	inv, err := f.getInvoice(id, params)
	if err != nil {
		return billing.Invoice{}, fmt.Errorf("stripe invoice %s: %w", id, err)
	}
	out := billing.Invoice{ID: inv.ID}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	out.LinePeriodEnd = latestLinePeriodEnd(inv)
	return out, nil
}

func isResourceMissing(err error) bool {
	var sErr *stripe.Error
	if !errors.As(err, &sErr) {
		return false
	}
	return sErr.Code == stripe.ErrorCodeResourceMissing || sErr.HTTPStatusCode == http.StatusNotFound
}

// latestLinePeriodEnd picks the furthest line-item period end. Invoices can
// carry proration lines for partial periods; the latest end is the instant
// the customer is actually paid through.
func latestLinePeriodEnd(inv *stripe.Invoice) *time.Time {
	if inv == nil || inv.Lines == nil {
		return nil
	}
	var max int64
	for _, line := range inv.Lines.Data {
		if line == nil || line.Period == nil {
			continue
		}
		if line.Period.End > max {
			max = line.Period.End
		}
	}
	if max == 0 {
		return nil
	}
	t := time.Unix(max, 0).UTC()
	return &t
}
