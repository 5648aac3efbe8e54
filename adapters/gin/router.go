package billinggin

import (
	"github.com/fundeddesk/billingkit/adapters/gin/handlers"
	"github.com/fundeddesk/billingkit/adapters/ginutil"
	"github.com/fundeddesk/billingkit/billing"
	jwtkit "github.com/fundeddesk/billingkit/jwt"
	stripekit "github.com/fundeddesk/billingkit/stripe"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Deps is everything the billing routes need, constructed once at startup.
type Deps struct {
	WebhookSecret string
	Engine        *billing.Engine
	Issuer        *stripekit.SessionIssuer
	Store         billing.Store
	Verifier      *jwtkit.Verifier
	Limiter       ginutil.RateLimiter
	Log           *logrus.Logger
}

// Mount registers the billing endpoints on the router group.
//
//	POST /billing/webhook      provider events (signature-authenticated)
//	POST /billing/checkout     create a checkout session (bearer)
//	POST /billing/portal       create a portal session (bearer)
//	GET  /billing/entitlement  the caller's entitlement record (bearer)
func Mount(r gin.IRouter, d Deps) {
	g := r.Group("/billing", RequestID())

	g.POST("/webhook", handlers.HandleBillingWebhookPOST(d.WebhookSecret, d.Engine, d.Log))

	authed := g.Group("", AuthRequired(d.Verifier))
	authed.POST("/checkout", handlers.HandleBillingCheckoutPOST(d.Issuer, d.Limiter))
	authed.POST("/portal", handlers.HandleBillingPortalPOST(d.Issuer, d.Limiter))
	authed.GET("/entitlement", handlers.HandleEntitlementGET(d.Store, d.Limiter))
}
