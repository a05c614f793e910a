package store

import (
	"errors"
	"fmt"
	"time"

	"clore-watch/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RateStore caches the exchange rates the watchers price with, one row
// per currency pair, refreshed in place.
type RateStore struct {
	db *gorm.DB
}

func (r *RateStore) Upsert(from, to string, rate float64, source string, now time.Time) error {
	row := models.ExchangeRate{
		CurrencyFrom: from,
		CurrencyTo:   to,
		Rate:         rate,
		Source:       source,
		UpdatedAt:    now,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "currency_from"}, {Name: "currency_to"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "source", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert rate %s/%s: %w", from, to, err)
	}
	return nil
}

func (r *RateStore) Latest(from, to string) (*models.ExchangeRate, error) {
	var row models.ExchangeRate
	err := r.db.Where("currency_from = ? AND currency_to = ?", from, to).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rate %s/%s: %w", from, to, err)
	}
	return &row, nil
}

func (r *RateStore) All() ([]models.ExchangeRate, error) {
	var rows []models.ExchangeRate
	if err := r.db.Order("currency_from, currency_to").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list rates: %w", err)
	}
	return rows, nil
}
