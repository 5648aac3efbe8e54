package handlers

import (
	"net/http"
	"time"

	"github.com/fundeddesk/billingkit/adapters/ginutil"
	"github.com/fundeddesk/billingkit/billing"
	"github.com/fundeddesk/billingkit/entitlements"
	"github.com/gin-gonic/gin"
)

// HandleEntitlementGET returns the caller's entitlement record. This is
// the read surface the rest of the product consumes; a user with no row
// yet reads as inactive, not as an error.
func HandleEntitlementGET(store billing.Store, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLBillingEntitlement) {
			ginutil.TooMany(c)
			return
		}
		userID, ok := userIDOr401(c)
		if !ok {
			return
		}

		rec, found, err := store.Get(c.Request.Context(), userID)
		if err != nil {
			ginutil.ServerErr(c, "failed to load entitlement")
			return
		}
		if !found {
			rec = entitlements.Inactive(userID)
		}

		c.JSON(http.StatusOK, gin.H{
			"entitlement": rec,
			"entitled":    rec.Entitled(time.Now()),
		})
	}
}
