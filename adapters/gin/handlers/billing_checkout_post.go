package handlers

import (
	"errors"
	"net/http"

	"github.com/fundeddesk/billingkit/adapters/ginutil"
	"github.com/fundeddesk/billingkit/billing"
	stripekit "github.com/fundeddesk/billingkit/stripe"
	"github.com/gin-gonic/gin"
)

type checkoutRequest struct {
	Plan string `json:"plan"`
}

// HandleBillingCheckoutPOST creates a hosted checkout session for the
// authenticated caller and returns its redirect URL.
func HandleBillingCheckoutPOST(issuer *stripekit.SessionIssuer, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLBillingCheckout) {
			ginutil.TooMany(c)
			return
		}
		userID, ok := userIDOr401(c)
		if !ok {
			return
		}

		var req checkoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			ginutil.BadRequest(c, "invalid request body")
			return
		}

		url, err := issuer.Checkout(c.Request.Context(), userID, req.Plan)
		if err != nil {
			switch {
			case errors.Is(err, billing.ErrInvalidArgument):
				ginutil.BadRequest(c, "unknown plan, expected \"monthly\" or \"lifetime\"")
			case errors.Is(err, billing.ErrUnavailable):
				ginutil.ServerErr(c, "billing is temporarily unavailable, please retry")
			default:
				ginutil.ServerErr(c, "failed to start checkout")
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
	}
}

func userIDOr401(c *gin.Context) (string, bool) {
	v, ok := c.Get("auth.user_id")
	if !ok {
		ginutil.Unauthorized(c, "missing_bearer_token")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		ginutil.Unauthorized(c, "missing_bearer_token")
		return "", false
	}
	return s, true
}
