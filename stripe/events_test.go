package stripekit

import (
	"errors"
	"testing"
	"time"

	"github.com/fundeddesk/billingkit/billing"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test_secret"

func signPayload(t *testing.T, payload string) (body []byte, header string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func TestVerifyEventAcceptsSignedPayload(t *testing.T) {
	body, header := signPayload(t, `{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1","customer":"cus_1"}}}`)

	event, err := VerifyEvent(body, header, testSecret)
	if err != nil {
		t.Fatalf("VerifyEvent: %v", err)
	}
	if event.ID != "evt_1" {
		t.Fatalf("event id=%q, want evt_1", event.ID)
	}
}

func TestVerifyEventRejectsUniformly(t *testing.T) {
	body, header := signPayload(t, `{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{}}}`)

	cases := []struct {
		name    string
		payload []byte
		header  string
		secret  string
	}{
		{"missing header", body, "", testSecret},
		{"garbage header", body, "t=abc,v1=zzz", testSecret},
		{"wrong secret", body, header, "whsec_other"},
		{"tampered payload", append([]byte(" "), body...), header, testSecret},
		{"no secret configured", body, header, ""},
	}
	for _, tc := range cases {
		_, err := VerifyEvent(tc.payload, tc.header, tc.secret)
		if !errors.Is(err, billing.ErrUnauthenticated) {
			t.Fatalf("%s: err=%v, want ErrUnauthenticated", tc.name, err)
		}
	}
}

func TestDecodeEventVariants(t *testing.T) {
	body, header := signPayload(t, `{
		"id": "evt_2",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"mode": "payment",
			"customer": "cus_2",
			"client_reference_id": "u2",
			"metadata": {"user_id": "u2", "price_id": "price_lifetime"}
		}}
	}`)
	event, err := VerifyEvent(body, header, testSecret)
	if err != nil {
		t.Fatalf("VerifyEvent: %v", err)
	}

	evt, ok, err := DecodeEvent(event)
	if err != nil || !ok {
		t.Fatalf("DecodeEvent: ok=%v err=%v", ok, err)
	}
	checkout, isCheckout := evt.(billing.CheckoutCompleted)
	if !isCheckout {
		t.Fatalf("decoded %T, want CheckoutCompleted", evt)
	}
	if checkout.Mode != billing.ModePayment {
		t.Fatalf("mode=%s, want payment", checkout.Mode)
	}
	if checkout.UserID != "u2" || checkout.ClientRef != "u2" || checkout.CustomerID != "cus_2" {
		t.Fatalf("correlation mismatch: %+v", checkout)
	}
	if checkout.PriceID != "price_lifetime" {
		t.Fatalf("price=%q, want price_lifetime", checkout.PriceID)
	}
}

func TestDecodeEventInvoiceFamily(t *testing.T) {
	for _, typ := range []string{"invoice.finalized", "invoice.paid", "invoice.payment_succeeded"} {
		body, header := signPayload(t, `{"id":"evt_3","object":"event","type":"`+typ+`","data":{"object":{"id":"in_1","customer":"cus_1","subscription":"sub_1"}}}`)
		event, err := VerifyEvent(body, header, testSecret)
		if err != nil {
			t.Fatalf("%s: VerifyEvent: %v", typ, err)
		}
		evt, ok, err := DecodeEvent(event)
		if err != nil || !ok {
			t.Fatalf("%s: ok=%v err=%v", typ, ok, err)
		}
		if _, isSettled := evt.(billing.InvoiceSettled); !isSettled {
			t.Fatalf("%s decoded as %T, want InvoiceSettled", typ, evt)
		}
	}
}

func TestDecodeEventInvoiceCreated(t *testing.T) {
	body, header := signPayload(t, `{"id":"evt_5","object":"event","type":"invoice.created","data":{"object":{"id":"in_2","customer":"cus_1","subscription":"sub_1"}}}`)
	event, err := VerifyEvent(body, header, testSecret)
	if err != nil {
		t.Fatalf("VerifyEvent: %v", err)
	}
	evt, ok, err := DecodeEvent(event)
	if err != nil || !ok {
		t.Fatalf("DecodeEvent: ok=%v err=%v", ok, err)
	}
	created, isCreated := evt.(billing.InvoiceCreated)
	if !isCreated {
		t.Fatalf("decoded %T, want InvoiceCreated", evt)
	}
	if created.InvoiceID != "in_2" || created.CustomerID != "cus_1" || created.SubscriptionID != "sub_1" {
		t.Fatalf("correlation mismatch: %+v", created)
	}
}

func TestDecodeEventSetupModeCheckoutIsNoOp(t *testing.T) {
	body, header := signPayload(t, `{"id":"evt_6","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_2","mode":"setup","customer":"cus_1"}}}`)
	event, err := VerifyEvent(body, header, testSecret)
	if err != nil {
		t.Fatalf("VerifyEvent: %v", err)
	}
	evt, ok, err := DecodeEvent(event)
	if err != nil {
		t.Fatalf("setup-mode session must not error, got %v", err)
	}
	if ok || evt != nil {
		t.Fatalf("setup-mode session must be a no-op, got %T", evt)
	}
}

func TestDecodeEventUnrecognizedIsNoOp(t *testing.T) {
	body, header := signPayload(t, `{"id":"evt_4","object":"event","type":"payment_method.attached","data":{"object":{"id":"pm_1"}}}`)
	event, err := VerifyEvent(body, header, testSecret)
	if err != nil {
		t.Fatalf("VerifyEvent: %v", err)
	}
	evt, ok, err := DecodeEvent(event)
	if err != nil {
		t.Fatalf("unrecognized type must not error, got %v", err)
	}
	if ok || evt != nil {
		t.Fatalf("unrecognized type must be a no-op, got %T", evt)
	}
}
