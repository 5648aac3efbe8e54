package handlers

import (
	"io"
	"net/http"

	"github.com/fundeddesk/billingkit/billing"
	stripekit "github.com/fundeddesk/billingkit/stripe"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// HandleBillingWebhookPOST verifies and reconciles inbound provider
// events. Signature verification is the authentication mechanism for this
// endpoint; it runs over the exact raw bytes received. Unrecognized event
// types and unresolvable events are acknowledged with 200 so the provider
// stops redelivering them; only retryable failures return non-2xx.
func HandleBillingWebhookPOST(secret string, engine *billing.Engine, log *logrus.Logger) gin.HandlerFunc {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, webhookBodyLimit)
		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}

		event, err := stripekit.VerifyEvent(payload, c.GetHeader("Stripe-Signature"), secret)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}

		wlog := log.WithFields(logrus.Fields{
			"event_id":   event.ID,
			"type":       string(event.Type),
			"request_id": c.GetString("request_id"),
		})

		evt, ok, err := stripekit.DecodeEvent(event)
		if err != nil {
			wlog.WithError(err).Warn("billing webhook: malformed payload")
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event payload"})
			return
		}
		if !ok {
			wlog.Info("billing webhook: ignored (unhandled type)")
			c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
			return
		}

		if err := engine.Process(c.Request.Context(), evt); err != nil {
			wlog.WithError(err).Error("billing webhook: processing failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
