// Package ginutil holds the small response and rate-limit helpers shared
// by the gin handlers.
package ginutil

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Named rate-limit buckets for the billing endpoints.
const (
	RLBillingCheckout    = "billing:checkout"
	RLBillingPortal      = "billing:portal"
	RLBillingEntitlement = "billing:entitlement"
)

// RateLimiter is the adapter-facing limiter contract, satisfied by both
// the memory and redis limiters.
type RateLimiter interface {
	AllowNamed(bucket, key string) (bool, error)
}

// AllowNamed applies the bucket limit keyed by the authenticated user when
// present, falling back to client IP. A nil limiter allows everything.
func AllowNamed(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	key := c.ClientIP()
	if uid, ok := c.Get("auth.user_id"); ok {
		if s, ok := uid.(string); ok && s != "" {
			key = s
		}
	}
	ok, err := rl.AllowNamed(bucket, key)
	if err != nil {
		// Fail open: a broken limiter should not take billing down.
		return true
	}
	return ok
}

func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func Unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

func ServerErr(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func TooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
}
