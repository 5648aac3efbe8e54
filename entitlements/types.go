package entitlements

import "time"

// Status is the canonical billing state of a user's entitlement.
type Status string

const (
	StatusInactive   Status = "inactive"
	StatusIncomplete Status = "incomplete"
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusLifetime   Status = "lifetime"
	StatusCanceled   Status = "canceled"
	StatusUnknown    Status = "unknown"
)

// Entitlement is the single durable billing record for a user.
// Exactly one row exists per user once any purchase event has been seen;
// cancellation is a status value, the row is never deleted.
type Entitlement struct {
	UserID           string     `json:"user_id"`
	CustomerID       string     `json:"customer_id,omitempty"`
	SubscriptionID   *string    `json:"subscription_id,omitempty"`
	Status           Status     `json:"status"`
	PriceID          *string    `json:"price_id,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Inactive returns the record used when no row exists for a user.
func Inactive(userID string) Entitlement {
	return Entitlement{UserID: userID, Status: StatusInactive}
}

// Entitled reports whether the record grants access at the given instant.
// Lifetime grants never expire. Recurring grants require an active status
// and, when a period end is recorded, that it has not passed.
func (e Entitlement) Entitled(now time.Time) bool {
	switch e.Status {
	case StatusLifetime:
		return true
	case StatusActive:
		if e.CurrentPeriodEnd == nil {
			return true
		}
		return now.Before(*e.CurrentPeriodEnd)
	default:
		return false
	}
}

// Recurring reports whether the record tracks a provider subscription.
func (e Entitlement) Recurring() bool {
	return e.SubscriptionID != nil && *e.SubscriptionID != ""
}
