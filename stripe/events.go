package stripekit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fundeddesk/billingkit/billing"
	stripe "github.com/stripe/stripe-go/v82"
)

// Minimal local payload shapes decoded from event.Data.Raw. Webhook
// payloads may lag the current object state; only correlation identifiers
// are read here, everything state-bearing is re-fetched by the engine.

type checkoutSessionPayload struct {
	ID              string            `json:"id"`
	Mode            string            `json:"mode"`
	Customer        string            `json:"customer"`
	Subscription    string            `json:"subscription"`
	ClientReference string            `json:"client_reference_id"`
	Metadata        map[string]string `json:"metadata"`
}

type subscriptionPayload struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
}

type invoicePayload struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// MetadataUserKey is the metadata field carrying the internal user id on
// customers, sessions, and subscriptions created by this module.
const MetadataUserKey = "user_id"

// metadataPriceKey carries the purchased price on checkout sessions so the
// completed event needs no line-item expansion.
const metadataPriceKey = "price_id"

// DecodeEvent converts a verified provider event into a billing event
// variant. ok is false for event types the reconciliation engine does not
// model; those are acknowledged upstream as no-ops, never errors.
func DecodeEvent(event stripe.Event) (evt billing.Event, ok bool, err error) {
	switch event.Type {
	case "checkout.session.completed":
		var s checkoutSessionPayload
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, false, fmt.Errorf("decode checkout.session: %v: %w", err, billing.ErrInvalidArgument)
		}
		var mode billing.CheckoutMode
		switch strings.ToLower(s.Mode) {
		case "payment":
			mode = billing.ModePayment
		case "subscription":
			mode = billing.ModeSubscription
		default:
			// Setup-mode sessions (and any future mode) carry no purchase.
			return nil, false, nil
		}
		return billing.CheckoutCompleted{
			SessionID:      s.ID,
			Mode:           mode,
			CustomerID:     s.Customer,
			SubscriptionID: s.Subscription,
			PriceID:        s.Metadata[metadataPriceKey],
			UserID:         s.Metadata[MetadataUserKey],
			ClientRef:      s.ClientReference,
		}, true, nil

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var s subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, false, fmt.Errorf("decode subscription: %v: %w", err, billing.ErrInvalidArgument)
		}
		return billing.SubscriptionChanged{
			SubscriptionID: s.ID,
			CustomerID:     s.Customer,
			UserID:         s.Metadata[MetadataUserKey],
		}, true, nil

	case "invoice.created":
		inv, err := decodeInvoice(event.Data.Raw)
		if err != nil {
			return nil, false, err
		}
		return billing.InvoiceCreated{
			InvoiceID:      inv.ID,
			CustomerID:     inv.Customer,
			SubscriptionID: inv.Subscription,
			UserID:         inv.Metadata[MetadataUserKey],
		}, true, nil

	case "invoice.finalized", "invoice.paid", "invoice.payment_succeeded":
		inv, err := decodeInvoice(event.Data.Raw)
		if err != nil {
			return nil, false, err
		}
		return billing.InvoiceSettled{
			InvoiceID:      inv.ID,
			CustomerID:     inv.Customer,
			SubscriptionID: inv.Subscription,
			UserID:         inv.Metadata[MetadataUserKey],
		}, true, nil

	case "invoice.payment_failed":
		inv, err := decodeInvoice(event.Data.Raw)
		if err != nil {
			return nil, false, err
		}
		return billing.InvoicePaymentFailed{
			InvoiceID:      inv.ID,
			CustomerID:     inv.Customer,
			SubscriptionID: inv.Subscription,
			UserID:         inv.Metadata[MetadataUserKey],
		}, true, nil
	}

	return nil, false, nil
}

func decodeInvoice(raw json.RawMessage) (invoicePayload, error) {
	var inv invoicePayload
	if err := json.Unmarshal(raw, &inv); err != nil {
		return invoicePayload{}, fmt.Errorf("decode invoice: %v: %w", err, billing.ErrInvalidArgument)
	}
	return inv, nil
}
