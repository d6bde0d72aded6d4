// Package alerts derives production risk alerts from order and part
// state. Alerts are plain records; scanning is idempotent per run in
// the sense that each run replaces nothing and only appends what the
// current data justifies.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/mbrandao/opchat/internal/models"
	"github.com/mbrandao/opchat/internal/store"
)

const (
	// producedThreshold is the minimum produced/quantity ratio a part
	// must reach once more than half the order window has elapsed.
	producedThreshold = 0.7
	elapsedThreshold  = 0.5
)

// Scanner inspects parts still in production and raises alerts for
// the ones at risk of missing their delivery date.
type Scanner struct {
	store store.Store
}

func NewScanner(st store.Store) *Scanner {
	return &Scanner{store: st}
}

// Scan evaluates every non-done part against now and records an alert
// for each one that is overdue or behind schedule. It returns the
// alerts created by this run.
func (s *Scanner) Scan(ctx context.Context, now time.Time) ([]*models.Alert, error) {
	orders, err := s.store.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	var created []*models.Alert
	for _, order := range orders {
		parts, err := s.store.GetOrderParts(ctx, order.Code)
		if err != nil {
			return nil, fmt.Errorf("parts of %s: %w", order.Code, err)
		}
		for _, part := range parts {
			if part.Status == models.PartStatusDone {
				continue
			}
			reason := evaluate(order, part, now)
			if reason == "" {
				continue
			}
			alert := &models.Alert{
				OrderCode:    order.Code,
				PartName:     part.Name,
				ClientName:   part.ClientName,
				DeliveryDate: part.DeliveryDate,
				Reason:       reason,
			}
			if err := s.store.CreateAlert(ctx, alert); err != nil {
				return created, fmt.Errorf("record alert: %w", err)
			}
			created = append(created, alert)
		}
	}
	return created, nil
}

// evaluate returns a human-readable reason if the part is at risk, or
// "" when it is on track. Unparseable dates never raise alerts.
func evaluate(order *models.Order, part *models.Part, now time.Time) string {
	delivery, err := time.Parse(models.DateLayout, part.DeliveryDate)
	if err != nil {
		return ""
	}

	if now.After(delivery.AddDate(0, 0, 1)) {
		return fmt.Sprintf("delivery date %s has passed with %d of %d produced",
			part.DeliveryDate, part.Produced, part.Quantity)
	}

	start, err := time.Parse(models.DateLayout, order.OrderDate)
	if err != nil {
		return ""
	}
	window := delivery.Sub(start)
	if window <= 0 {
		return ""
	}
	elapsed := now.Sub(start)
	if part.Quantity <= 0 {
		return ""
	}

	progress := float64(part.Produced) / float64(part.Quantity)
	if float64(elapsed) > float64(window)*elapsedThreshold && progress < producedThreshold {
		return fmt.Sprintf("only %d of %d produced with the order window more than half elapsed",
			part.Produced, part.Quantity)
	}
	return ""
}
