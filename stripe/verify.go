// Package stripekit adapts the Stripe provider to the billing core:
// webhook signature verification, event decoding, object re-fetching, and
// hosted session creation.
package stripekit

import (
	"fmt"
	"strings"

	"github.com/fundeddesk/billingkit/billing"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Init sets the provider API key once at startup. The stripe-go client
// keys its package-level API off this value.
func Init(apiKey string) {
	stripe.Key = strings.TrimSpace(apiKey)
}

// VerifyEvent authenticates a raw webhook payload against the shared
// signing secret. Verification runs over the exact bytes received; any
// re-serialization beforehand would invalidate the signature.
//
// Every failure mode (missing header, malformed header, digest mismatch)
// collapses into the same ErrUnauthenticated so callers cannot distinguish
// format errors from mismatches.
func VerifyEvent(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	if strings.TrimSpace(secret) == "" {
		return stripe.Event{}, fmt.Errorf("webhook secret not configured: %w", billing.ErrUnauthenticated)
	}
	if strings.TrimSpace(sigHeader) == "" {
		return stripe.Event{}, fmt.Errorf("missing signature: %w", billing.ErrUnauthenticated)
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("invalid signature: %w", billing.ErrUnauthenticated)
	}
	return event, nil
}
