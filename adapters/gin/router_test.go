package billinggin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fundeddesk/billingkit/billing"
	"github.com/fundeddesk/billingkit/identity"
	jwtkit "github.com/fundeddesk/billingkit/jwt"
	memorylimiter "github.com/fundeddesk/billingkit/ratelimit/memory"
	memorystore "github.com/fundeddesk/billingkit/storage/memory"
	stripekit "github.com/fundeddesk/billingkit/stripe"
	billingtest "github.com/fundeddesk/billingkit/testing"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_router_test"

type routerFetcher struct {
	customers     map[string]billing.Customer
	subscriptions map[string]billing.Subscription
	invoices      map[string]billing.Invoice
}

func (f *routerFetcher) FetchCustomer(ctx context.Context, id string) (billing.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return billing.Customer{}, billing.ErrNotFound
	}
	return c, nil
}

func (f *routerFetcher) FetchSubscription(ctx context.Context, id string) (billing.Subscription, error) {
	s, ok := f.subscriptions[id]
	if !ok {
		return billing.Subscription{}, billing.ErrNotFound
	}
	return s, nil
}

func (f *routerFetcher) FetchInvoice(ctx context.Context, id string) (billing.Invoice, error) {
	i, ok := f.invoices[id]
	if !ok {
		return billing.Invoice{}, billing.ErrNotFound
	}
	return i, nil
}

type routerHarness struct {
	router  *gin.Engine
	store   *memorystore.EntitlementStore
	fetcher *routerFetcher
	issuer  *billingtest.TestIssuer
}

func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})

	store := memorystore.NewEntitlementStore()
	index := memorystore.NewCustomerIndex()
	fetcher := &routerFetcher{
		customers:     map[string]billing.Customer{},
		subscriptions: map[string]billing.Subscription{},
		invoices:      map[string]billing.Invoice{},
	}
	resolver := identity.NewResolver(index, fetcher, log)
	engine := billing.NewEngine(fetcher, resolver, store, log)
	issuer := stripekit.NewSessionIssuer(stripekit.SessionConfig{
		MonthlyPriceID:  "price_monthly",
		LifetimePriceID: "price_lifetime",
		SuccessURL:      "https://app.example.com/done",
		CancelURL:       "https://app.example.com/cancel",
		PortalReturnURL: "https://app.example.com/account",
	}, store, index, log)

	ti := billingtest.NewTestIssuer()
	t.Cleanup(ti.Close)
	keySet, err := jwtkit.FetchKeySet(context.Background(), ti.JWKSURL())
	if err != nil {
		t.Fatalf("FetchKeySet: %v", err)
	}
	verifier := jwtkit.NewVerifier(ti.URL(), ti.Audience(), keySet)

	r := gin.New()
	Mount(r, Deps{
		WebhookSecret: testWebhookSecret,
		Engine:        engine,
		Issuer:        issuer,
		Store:         store,
		Verifier:      verifier,
		Limiter:       memorylimiter.New(memorylimiter.Defaults()),
		Log:           log,
	})
	return &routerHarness{router: r, store: store, fetcher: fetcher, issuer: ti}
}

func (h *routerHarness) postWebhook(t *testing.T, payload string) *httptest.ResponseRecorder {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestWebhookRejectsUnsignedPayload(t *testing.T) {
	h := newRouterHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/billing/webhook",
		strings.NewReader(`{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{}}}`))
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsigned payload, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWebhookAcknowledgesUnmodeledEventType(t *testing.T) {
	h := newRouterHarness(t)

	w := h.postWebhook(t, `{"id":"evt_1","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unmodeled event, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["ignored"] != true {
		t.Fatalf("expected ignored=true, got %#v", resp)
	}
}

func TestWebhookAcknowledgesUnresolvableEvent(t *testing.T) {
	h := newRouterHarness(t)
	h.fetcher.customers["cus_ghost"] = billing.Customer{ID: "cus_ghost"}

	w := h.postWebhook(t, `{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1","customer":"cus_ghost"}}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unresolvable event, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWebhookLifetimeCheckoutFlowsThroughToEntitlement(t *testing.T) {
	h := newRouterHarness(t)

	w := h.postWebhook(t, `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","mode":"payment","customer":"cus_1","client_reference_id":"user-77","metadata":{"user_id":"user-77","price_id":"price_lifetime"}}}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("webhook: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	token := h.issuer.CreateToken("user-77")
	req := httptest.NewRequest(http.MethodGet, "/billing/entitlement", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("entitlement: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Entitled    bool `json:"entitled"`
		Entitlement struct {
			UserID string `json:"user_id"`
			Status string `json:"status"`
		} `json:"entitlement"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Entitled {
		t.Fatalf("expected entitled=true after lifetime checkout, got %s", rec.Body.String())
	}
	if resp.Entitlement.Status != "lifetime" || resp.Entitlement.UserID != "user-77" {
		t.Fatalf("unexpected entitlement: %+v", resp.Entitlement)
	}
}

func TestEntitlementAbsentReadsAsInactive(t *testing.T) {
	h := newRouterHarness(t)

	token := h.issuer.CreateToken("user-without-history")
	req := httptest.NewRequest(http.MethodGet, "/billing/entitlement", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Entitled    bool `json:"entitled"`
		Entitlement struct {
			Status string `json:"status"`
		} `json:"entitlement"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Entitled || resp.Entitlement.Status != "inactive" {
		t.Fatalf("expected inactive/unentitled, got %s", w.Body.String())
	}
}

func TestAuthedEndpointsRejectBadCredentials(t *testing.T) {
	h := newRouterHarness(t)

	cases := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"garbage token", "not-a-jwt"},
		{"expired token", h.issuer.CreateExpiredToken("user-1")},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/billing/entitlement", nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		w := httptest.NewRecorder()
		h.router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d: %s", tc.name, w.Code, w.Body.String())
		}
	}
}

func TestCheckoutRejectsUnknownPlan(t *testing.T) {
	h := newRouterHarness(t)

	token := h.issuer.CreateToken("user-1")
	req := httptest.NewRequest(http.MethodPost, "/billing/checkout",
		strings.NewReader(`{"plan":"yearly"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown plan, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPortalRequiresBillingHistory(t *testing.T) {
	h := newRouterHarness(t)

	token := h.issuer.CreateToken("user-no-customer")
	req := httptest.NewRequest(http.MethodPost, "/billing/portal", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 with no billing account, got %d: %s", w.Code, w.Body.String())
	}
}
