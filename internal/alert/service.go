package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spendtrack.org/internal/authz"
	"spendtrack.org/internal/ownership"
	"spendtrack.org/internal/record"
)

// lowBalanceFraction: an open purchase order alerts once its remaining
// amount drops below this fraction of the total.
const lowBalanceFraction = 0.10

// Service evaluates alerts against the record store. Visibility follows the
// authorization engine: a purchase order or allocation the caller cannot
// read never produces an alert.
type Service struct {
	store  record.Store
	engine *authz.Engine
	now    func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store record.Store, engine *authz.Engine, opts ...Option) *Service {
	s := &Service{store: store, engine: engine, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate returns the alerts visible to the caller, purchase orders first,
// in store listing order.
func (s *Service) Evaluate(ctx context.Context, user authz.CurrentUser) ([]Alert, error) {
	now := s.now().UTC()

	pos, err := s.readable(ctx, user, ownership.TypePurchaseOrder)
	if err != nil {
		return nil, err
	}
	receipts, err := s.childrenByParent(ctx, ownership.TypeGoodsReceipt)
	if err != nil {
		return nil, err
	}

	var alerts []Alert
	for _, po := range pos {
		alerts = append(alerts, purchaseOrderAlerts(po, receipts[po.ID], now)...)
	}

	allocs, err := s.readable(ctx, user, ownership.TypeResourceAllocation)
	if err != nil {
		return nil, err
	}
	for _, al := range allocs {
		if a, ok := allocationAlert(al, now); ok {
			alerts = append(alerts, a)
		}
	}
	return alerts, nil
}

func (s *Service) readable(ctx context.Context, user authz.CurrentUser, t ownership.RecordType) ([]record.Record, error) {
	rs, err := s.store.ListByType(ctx, t)
	if err != nil {
		return nil, err
	}
	return authz.FilterReadable(ctx, s.engine, user, rs, record.Record.Resource)
}

func (s *Service) childrenByParent(ctx context.Context, t ownership.RecordType) (map[string][]record.Record, error) {
	rs, err := s.store.ListByType(ctx, t)
	if err != nil {
		return nil, err
	}
	byParent := map[string][]record.Record{}
	for _, r := range rs {
		byParent[r.ParentID] = append(byParent[r.ParentID], r)
	}
	return byParent, nil
}

func purchaseOrderAlerts(po record.Record, receipts []record.Record, now time.Time) []Alert {
	if !strings.EqualFold(fieldString(po, "status"), "Open") {
		return nil
	}
	name := fieldString(po, "po_number")
	if name == "" {
		name = po.ID
	}

	var alerts []Alert
	if total, ok := fieldNumber(po, "total_amount"); ok && total > 0 {
		var received float64
		for _, gr := range receipts {
			if amt, ok := fieldNumber(gr, "amount"); ok {
				received += amt
			}
		}
		if remaining := total - received; remaining < total*lowBalanceFraction {
			alerts = append(alerts, Alert{
				Type:       TypeLowBalance,
				Severity:   SeverityWarning,
				Message:    fmt.Sprintf("purchase order %s has %.2f of %.2f remaining", name, remaining, total),
				RecordType: string(po.Type),
				RecordID:   po.ID,
			})
		}
	}

	receiptThisMonth := false
	for _, gr := range receipts {
		if d, ok := fieldDate(gr, "receipt_date"); ok && sameMonth(d, now) {
			receiptThisMonth = true
			break
		}
	}
	if !receiptThisMonth {
		alerts = append(alerts, Alert{
			Type:       TypeNoReceiptThisMonth,
			Severity:   SeverityInfo,
			Message:    fmt.Sprintf("purchase order %s has no goods receipt for %s", name, now.Format("2006-01")),
			RecordType: string(po.Type),
			RecordID:   po.ID,
		})
	}
	return alerts
}

func allocationAlert(al record.Record, now time.Time) (Alert, bool) {
	if !strings.EqualFold(fieldString(al, "status"), "Active") {
		return Alert{}, false
	}
	start, okStart := fieldDate(al, "starts_at")
	end, okEnd := fieldDate(al, "ends_at")
	if !okStart || !okEnd {
		return Alert{}, false
	}
	if !now.Before(start) && !now.After(end) {
		return Alert{}, false
	}
	name := fieldString(al, "resource_name")
	if name == "" {
		name = al.ID
	}
	return Alert{
		Type:       TypeStaleAllocation,
		Severity:   SeverityWarning,
		Message:    fmt.Sprintf("allocation %s is active outside its validity window", name),
		RecordType: string(al.Type),
		RecordID:   al.ID,
	}, true
}

func fieldString(r record.Record, key string) string {
	v, _ := r.Fields[key].(string)
	return v
}

func fieldNumber(r record.Record, key string) (float64, bool) {
	switch n := r.Fields[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func fieldDate(r record.Record, key string) (time.Time, bool) {
	s, _ := r.Fields[key].(string)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
