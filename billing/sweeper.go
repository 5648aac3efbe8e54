package billing

import (
	"context"
	"time"

	"github.com/fundeddesk/billingkit/entitlements"
	"github.com/sirupsen/logrus"
)

// LapsedLister enumerates active recurring records whose entitled-through
// instant has passed without a renewal event.
type LapsedLister interface {
	ListLapsed(ctx context.Context, asOf time.Time) ([]entitlements.Entitlement, error)
}

// LapseSweeper periodically reports active entitlements whose period end
// lies in the past. It never mutates records: the state machine stays
// purely event-driven, and a lapsed record usually means a renewal invoice
// event is late or its customer was never resolvable. Scheduled via cron
// from the service entry point.
type LapseSweeper struct {
	lister LapsedLister
	log    *logrus.Logger
	now    func() time.Time
}

func NewLapseSweeper(lister LapsedLister, log *logrus.Logger) *LapseSweeper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LapseSweeper{lister: lister, log: log, now: time.Now}
}

// Sweep logs each lapsed record once per run.
func (s *LapseSweeper) Sweep(ctx context.Context) {
	asOf := s.now().UTC()
	lapsed, err := s.lister.ListLapsed(ctx, asOf)
	if err != nil {
		s.log.WithError(err).Error("billing: lapse sweep failed")
		return
	}
	for _, rec := range lapsed {
		if ctx.Err() != nil {
			return
		}
		s.log.WithFields(logrus.Fields{
			"user_id":     rec.UserID,
			"customer_id": rec.CustomerID,
			"period_end":  rec.CurrentPeriodEnd,
		}).Warn("billing: active entitlement lapsed without renewal event")
	}
	if len(lapsed) > 0 {
		s.log.WithField("count", len(lapsed)).Info("billing: lapse sweep complete")
	}
}
