// Package billinggin mounts billingkit onto a gin router.
package billinggin

import (
	"strings"

	"github.com/fundeddesk/billingkit/adapters/ginutil"
	jwtkit "github.com/fundeddesk/billingkit/jwt"
	"github.com/gin-gonic/gin"
)

// AuthRequired verifies the Bearer credential and stores the caller's user
// id under "auth.user_id". The webhook endpoint never uses this: its
// authentication is the payload signature.
func AuthRequired(verifier *jwtkit.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			ginutil.Unauthorized(c, "missing_bearer_token")
			return
		}
		userID, err := verifier.Verify(c.Request.Context(), raw)
		if err != nil {
			ginutil.Unauthorized(c, "invalid_bearer_token")
			return
		}
		c.Set("auth.user_id", userID)
		c.Next()
	}
}

// UserID returns the authenticated caller set by AuthRequired.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get("auth.user_id")
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
