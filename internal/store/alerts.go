package store

import (
	"fmt"
	"time"

	"clore-watch/internal/models"

	"gorm.io/gorm"
)

// AlertOutbox is the durable notification queue. Watchers append; the
// delivery channel drains pending rows and calls back with the outcome.
// Rows are marked, never deleted, so delivery is at-least-once.
type AlertOutbox struct {
	db *gorm.DB
}

// Create appends a notification for a user
func (a *AlertOutbox) Create(userID uint, kind, title, message string) (*models.Alert, error) {
	alert := &models.Alert{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
	}
	if err := a.db.Create(alert).Error; err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	return alert, nil
}

// Pending returns a user's undelivered alerts, oldest first
func (a *AlertOutbox) Pending(userID uint) ([]models.Alert, error) {
	var alerts []models.Alert
	err := a.db.
		Where("user_id = ? AND is_sent = ?", userID, false).
		Order("created_at").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("pending alerts: %w", err)
	}
	return alerts, nil
}

// PendingAll returns undelivered alerts across users, oldest first
func (a *AlertOutbox) PendingAll(limit int) ([]models.Alert, error) {
	var alerts []models.Alert
	q := a.db.Where("is_sent = ?", false).Order("created_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("pending alerts: %w", err)
	}
	return alerts, nil
}

// MarkDelivered records the delivery attempt. A non-empty deliveryErr is
// captured on the row; either way the alert leaves the pending queue.
func (a *AlertOutbox) MarkDelivered(id uint, deliveryErr string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"is_sent": true,
		"sent_at": now,
	}
	if deliveryErr != "" {
		updates["error"] = deliveryErr
	}
	res := a.db.Model(&models.Alert{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("mark alert %d delivered: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark alert %d delivered: unknown alert", id)
	}
	return nil
}

// History returns a user's alerts since a point in time, newest first
func (a *AlertOutbox) History(userID uint, since time.Time) ([]models.Alert, error) {
	var alerts []models.Alert
	err := a.db.
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at DESC").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("alert history: %w", err)
	}
	return alerts, nil
}
