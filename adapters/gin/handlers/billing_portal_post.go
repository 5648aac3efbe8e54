package handlers

import (
	"errors"
	"net/http"

	"github.com/fundeddesk/billingkit/adapters/ginutil"
	"github.com/fundeddesk/billingkit/billing"
	stripekit "github.com/fundeddesk/billingkit/stripe"
	"github.com/gin-gonic/gin"
)

// HandleBillingPortalPOST creates a self-service billing portal session.
// Callers with no billable customer, or with a lifetime grant (nothing to
// manage), get a 400 with a displayable message.
func HandleBillingPortalPOST(issuer *stripekit.SessionIssuer, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLBillingPortal) {
			ginutil.TooMany(c)
			return
		}
		userID, ok := userIDOr401(c)
		if !ok {
			return
		}

		url, err := issuer.Portal(c.Request.Context(), userID)
		if err != nil {
			switch {
			case errors.Is(err, billing.ErrNotFound):
				ginutil.BadRequest(c, "no billing account exists yet")
			case errors.Is(err, billing.ErrInvalidArgument):
				ginutil.BadRequest(c, "lifetime purchases have no billing portal")
			case errors.Is(err, billing.ErrUnavailable):
				ginutil.ServerErr(c, "billing is temporarily unavailable, please retry")
			default:
				ginutil.ServerErr(c, "failed to open billing portal")
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
	}
}
