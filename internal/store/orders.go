package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"clore-watch/internal/models"
	"clore-watch/internal/services/clore"

	"gorm.io/gorm"
)

// OrderLedger tracks rental orders keyed by their upstream id. Every
// upstream id is claimed permanently: a terminal order is never revived,
// even if the same id shows up active again.
type OrderLedger struct {
	db *gorm.DB
}

// ReconcileResult reports what one reconciliation pass changed
type ReconcileResult struct {
	Created []models.Order
	Expired []models.Order
}

// UpsertFromUpstream creates the order if its upstream id is unseen,
// otherwise refreshes the mutable fields of the active record. Repeated
// identical input changes nothing. Terminal orders are left untouched.
func (l *OrderLedger) UpsertFromUpstream(userID uint, o clore.Order) (*models.Order, error) {
	var existing models.Order
	err := l.db.Where("clore_order_id = ?", o.ID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		created, cerr := l.createFromUpstream(userID, o)
		if cerr != nil {
			return nil, cerr
		}
		return created, nil
	case err != nil:
		return nil, fmt.Errorf("lookup order %d: %w", o.ID, err)
	}

	if existing.Status != models.OrderActive {
		// Terminal state wins over whatever upstream still reports
		log.Printf("order %d is %s, ignoring upstream update", o.ID, existing.Status)
		return &existing, nil
	}

	updates := map[string]interface{}{
		"total_spent":   o.Spend,
		"price_per_day": o.Price,
	}
	if err := l.db.Model(&existing).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update order %d: %w", o.ID, err)
	}
	existing.TotalSpent = o.Spend
	existing.PricePerDay = o.Price
	return &existing, nil
}

func (l *OrderLedger) createFromUpstream(userID uint, o clore.Order) (*models.Order, error) {
	orderType := clore.OrderTypeOnDemand
	if o.Spot {
		orderType = clore.OrderTypeSpot
	}

	ports, _ := json.Marshal(o.TCPPorts)

	order := &models.Order{
		UserID:       userID,
		CloreOrderID: o.ID,
		ServerID:     o.ServerID,
		OrderType:    orderType,
		Status:       models.OrderActive,
		PricePerDay:  o.Price,
		Currency:     o.Currency,
		TotalSpent:   o.Spend,
		CreationFee:  o.CreationFee,
		Image:        o.Image,
		Ports:        string(ports),
		CreatedAt:    time.Unix(o.CT, 0).UTC(),
	}
	if o.MRL > 0 && o.CT > 0 {
		expires := time.Unix(o.CT+o.MRL, 0).UTC()
		order.ExpiresAt = &expires
	}

	if err := l.db.Create(order).Error; err != nil {
		return nil, fmt.Errorf("create order %d: %w", o.ID, err)
	}
	return order, nil
}

// ActiveOrders returns a user's orders with status active, newest first
func (l *OrderLedger) ActiveOrders(userID uint) ([]models.Order, error) {
	var orders []models.Order
	err := l.db.
		Where("user_id = ? AND status = ?", userID, models.OrderActive).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("active orders: %w", err)
	}
	return orders, nil
}

// Orders returns all of a user's orders, newest first
func (l *OrderLedger) Orders(userID uint) ([]models.Order, error) {
	var orders []models.Order
	err := l.db.
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}
	return orders, nil
}

// Get looks an order up by its upstream id
func (l *OrderLedger) Get(cloreOrderID int) (*models.Order, error) {
	var order models.Order
	if err := l.db.Where("clore_order_id = ?", cloreOrderID).First(&order).Error; err != nil {
		return nil, fmt.Errorf("get order %d: %w", cloreOrderID, err)
	}
	return &order, nil
}

// MarkExpired moves an active order to expired. An order already in a
// terminal state is left alone with a log line, since a concurrent poll
// can race a user-issued cancellation.
func (l *OrderLedger) MarkExpired(cloreOrderID int) error {
	return l.terminate(cloreOrderID, models.OrderExpired, nil)
}

// MarkCancelled moves an active order to cancelled and stamps the time
func (l *OrderLedger) MarkCancelled(cloreOrderID int, at time.Time) error {
	return l.terminate(cloreOrderID, models.OrderCancelled, &at)
}

func (l *OrderLedger) terminate(cloreOrderID int, status string, cancelledAt *time.Time) error {
	updates := map[string]interface{}{"status": status}
	if cancelledAt != nil {
		updates["cancelled_at"] = cancelledAt
	}

	// Guarding on status makes the transition one-way
	res := l.db.Model(&models.Order{}).
		Where("clore_order_id = ? AND status = ?", cloreOrderID, models.OrderActive).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("mark order %d %s: %w", cloreOrderID, status, res.Error)
	}
	if res.RowsAffected == 0 {
		var existing models.Order
		err := l.db.Where("clore_order_id = ?", cloreOrderID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("mark order %d %s: unknown order", cloreOrderID, status)
		}
		if err != nil {
			return fmt.Errorf("mark order %d %s: %w", cloreOrderID, status, err)
		}
		log.Printf("order %d already %s, not marking %s", cloreOrderID, existing.Status, status)
	}
	return nil
}

// Reconcile converges the ledger to one upstream active-order snapshot:
// unseen upstream orders are created, present ones refreshed, and locally
// active orders that vanished upstream are expired. Orders cancelled
// through another channel converge the same way within one poll interval.
func (l *OrderLedger) Reconcile(userID uint, upstream []clore.Order) (*ReconcileResult, error) {
	local, err := l.ActiveOrders(userID)
	if err != nil {
		return nil, err
	}
	localIDs := make(map[int]bool, len(local))
	for _, o := range local {
		localIDs[o.CloreOrderID] = true
	}

	result := &ReconcileResult{}

	upstreamIDs := make(map[int]bool, len(upstream))
	for _, o := range upstream {
		upstreamIDs[o.ID] = true
		known := localIDs[o.ID]
		order, err := l.UpsertFromUpstream(userID, o)
		if err != nil {
			return nil, err
		}
		if !known && order.Status == models.OrderActive {
			result.Created = append(result.Created, *order)
		}
	}

	for _, o := range local {
		if upstreamIDs[o.CloreOrderID] {
			continue
		}
		if err := l.MarkExpired(o.CloreOrderID); err != nil {
			return nil, err
		}
		o.Status = models.OrderExpired
		result.Expired = append(result.Expired, o)
	}

	return result, nil
}
