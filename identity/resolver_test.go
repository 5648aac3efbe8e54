package identity_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fundeddesk/billingkit/billing"
	"github.com/fundeddesk/billingkit/identity"
	memorystore "github.com/fundeddesk/billingkit/storage/memory"
	"github.com/sirupsen/logrus"
)

type customerFetcher struct {
	customers map[string]billing.Customer
	err       error
	fetches   int
}

func (f *customerFetcher) FetchCustomer(ctx context.Context, id string) (billing.Customer, error) {
	f.fetches++
	if f.err != nil {
		return billing.Customer{}, f.err
	}
	c, ok := f.customers[id]
	if !ok {
		return billing.Customer{}, errors.New("no such customer")
	}
	return c, nil
}

func (f *customerFetcher) FetchSubscription(ctx context.Context, id string) (billing.Subscription, error) {
	return billing.Subscription{}, errors.New("not used")
}

func (f *customerFetcher) FetchInvoice(ctx context.Context, id string) (billing.Invoice, error) {
	return billing.Invoice{}, errors.New("not used")
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})
	return log
}

func TestResolveEmbeddedMetadataWinsOverIndex(t *testing.T) {
	index := memorystore.NewCustomerIndex()
	if err := index.Save(context.Background(), "cus_1", "stale-user"); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	fetcher := &customerFetcher{}
	r := identity.NewResolver(index, fetcher, quietLog())

	uid, err := r.Resolve(context.Background(), billing.Correlation{
		UserID:     "user-embedded",
		CustomerID: "cus_1",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if uid != "user-embedded" {
		t.Fatalf("uid=%q, want user-embedded", uid)
	}
	if fetcher.fetches != 0 {
		t.Fatalf("expected no upstream fetch, got %d", fetcher.fetches)
	}
	// The embedded pairing overwrites the stale index entry.
	got, ok, err := index.Lookup(context.Background(), "cus_1")
	if err != nil || !ok || got != "user-embedded" {
		t.Fatalf("index after backfill: %q %v %v", got, ok, err)
	}
}

func TestResolveClientReferenceBeatsIndexAndFetch(t *testing.T) {
	index := memorystore.NewCustomerIndex()
	fetcher := &customerFetcher{}
	r := identity.NewResolver(index, fetcher, quietLog())

	uid, err := r.Resolve(context.Background(), billing.Correlation{
		ClientReference: "user-ref",
		CustomerID:      "cus_2",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if uid != "user-ref" {
		t.Fatalf("uid=%q, want user-ref", uid)
	}
}

func TestResolveIndexHitSkipsFetch(t *testing.T) {
	index := memorystore.NewCustomerIndex()
	if err := index.Save(context.Background(), "cus_3", "user-indexed"); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	fetcher := &customerFetcher{}
	r := identity.NewResolver(index, fetcher, quietLog())

	uid, err := r.Resolve(context.Background(), billing.Correlation{CustomerID: "cus_3"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if uid != "user-indexed" {
		t.Fatalf("uid=%q, want user-indexed", uid)
	}
	if fetcher.fetches != 0 {
		t.Fatalf("expected no upstream fetch on index hit, got %d", fetcher.fetches)
	}
}

func TestResolveFetchFallbackBackfillsIndex(t *testing.T) {
	index := memorystore.NewCustomerIndex()
	fetcher := &customerFetcher{customers: map[string]billing.Customer{
		"cus_4": {ID: "cus_4", UserID: "user-fetched"},
	}}
	r := identity.NewResolver(index, fetcher, quietLog())

	uid, err := r.Resolve(context.Background(), billing.Correlation{CustomerID: "cus_4"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if uid != "user-fetched" {
		t.Fatalf("uid=%q, want user-fetched", uid)
	}

	// The fetch result is remembered; a second resolve never leaves the index.
	if _, err := r.Resolve(context.Background(), billing.Correlation{CustomerID: "cus_4"}); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if fetcher.fetches != 1 {
		t.Fatalf("expected exactly one upstream fetch, got %d", fetcher.fetches)
	}
}

func TestResolveNoCorrelationIsNotFound(t *testing.T) {
	r := identity.NewResolver(memorystore.NewCustomerIndex(), &customerFetcher{}, quietLog())

	_, err := r.Resolve(context.Background(), billing.Correlation{})
	if !errors.Is(err, billing.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestResolveCustomerWithoutMetadataIsNotFound(t *testing.T) {
	fetcher := &customerFetcher{customers: map[string]billing.Customer{
		"cus_5": {ID: "cus_5"},
	}}
	r := identity.NewResolver(memorystore.NewCustomerIndex(), fetcher, quietLog())

	_, err := r.Resolve(context.Background(), billing.Correlation{CustomerID: "cus_5"})
	if !errors.Is(err, billing.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestResolveDeletedCustomerIsNotFoundNotRetryable(t *testing.T) {
	fetcher := &customerFetcher{
		err: fmt.Errorf("stripe customer cus_gone: %w", billing.ErrNotFound),
	}
	r := identity.NewResolver(memorystore.NewCustomerIndex(), fetcher, quietLog())

	_, err := r.Resolve(context.Background(), billing.Correlation{CustomerID: "cus_gone"})
	if !errors.Is(err, billing.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
	if errors.Is(err, billing.ErrUnavailable) {
		t.Fatalf("deleted customer must end the chain as a miss, got %v", err)
	}
}

func TestResolveFetchFailureIsUnavailable(t *testing.T) {
	fetcher := &customerFetcher{err: errors.New("upstream down")}
	r := identity.NewResolver(memorystore.NewCustomerIndex(), fetcher, quietLog())

	_, err := r.Resolve(context.Background(), billing.Correlation{CustomerID: "cus_6"})
	if !errors.Is(err, billing.ErrUnavailable) {
		t.Fatalf("err=%v, want ErrUnavailable", err)
	}
}
