package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fundeddesk/billingkit/billing"
	"github.com/fundeddesk/billingkit/entitlements"
	memorystore "github.com/fundeddesk/billingkit/storage/memory"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
)

type staticLister struct {
	records []entitlements.Entitlement
	err     error
}

func (l *staticLister) ListLapsed(ctx context.Context, asOf time.Time) ([]entitlements.Entitlement, error) {
	return l.records, l.err
}

func TestSweepLogsEachLapsedRecord(t *testing.T) {
	log, hook := logrustest.NewNullLogger()
	past := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	lister := &staticLister{records: []entitlements.Entitlement{
		{UserID: "user-1", CustomerID: "cus_1", Status: entitlements.StatusActive, CurrentPeriodEnd: &past},
		{UserID: "user-2", CustomerID: "cus_2", Status: entitlements.StatusActive, CurrentPeriodEnd: &past},
	}}

	billing.NewLapseSweeper(lister, log).Sweep(context.Background())

	var warns int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warns++
		}
	}
	if warns != 2 {
		t.Fatalf("expected 2 lapse warnings, got %d", warns)
	}
}

func TestSweepNeverMutatesRecords(t *testing.T) {
	store := memorystore.NewEntitlementStore()
	past := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := "sub_1"
	if _, err := store.Apply(context.Background(), billing.Change{
		UserID:         "user-1",
		CustomerID:     "cus_1",
		Status:         entitlements.StatusActive,
		SubscriptionID: &sub,
		PeriodEnd:      &past,
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	log, _ := logrustest.NewNullLogger()
	billing.NewLapseSweeper(store, log).Sweep(context.Background())

	rec, found, err := store.Get(context.Background(), "user-1")
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if rec.Status != entitlements.StatusActive {
		t.Fatalf("status=%q, sweep must not mutate", rec.Status)
	}
	if rec.CurrentPeriodEnd == nil || !rec.CurrentPeriodEnd.Equal(past) {
		t.Fatalf("period end changed: %v", rec.CurrentPeriodEnd)
	}
}

func TestSweepSurvivesListerFailure(t *testing.T) {
	log, hook := logrustest.NewNullLogger()
	lister := &staticLister{err: errors.New("store down")}

	billing.NewLapseSweeper(lister, log).Sweep(context.Background())

	if len(hook.AllEntries()) != 1 || hook.LastEntry().Level != logrus.ErrorLevel {
		t.Fatalf("expected a single error entry, got %#v", hook.AllEntries())
	}
}
