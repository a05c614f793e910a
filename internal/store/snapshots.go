package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clore-watch/internal/models"
	"clore-watch/internal/services/clore"

	"gorm.io/gorm"
)

// SnapshotStore is the append-only history of marketplace and owned-server
// observations plus the balance history. Rows are only ever inserted.
type SnapshotStore struct {
	db *gorm.DB
}

// Record appends one observation. The snapshot is never updated afterwards.
func (s *SnapshotStore) Record(snap *models.ServerSnapshot) error {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	if err := s.db.Create(snap).Error; err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	return nil
}

// RecordServer builds an observation from an upstream server payload and
// appends it. Indexed columns are extracted for querying; the raw payload
// is kept verbatim.
func (s *SnapshotStore) RecordServer(userID uint, kind string, srv clore.Server, cloreToUSD float64, now time.Time) (*models.ServerSnapshot, error) {
	raw, err := json.Marshal(srv)
	if err != nil {
		return nil, fmt.Errorf("marshal server %d: %w", srv.ID, err)
	}

	gpuCount, gpuModel := clore.ExtractGPUInfo(srv.Specs.GPU)
	priceUSD, priceSource, _ := clore.ExtractServerPrice(srv, cloreToUSD)
	priceClore := srv.Price.OnDemand[clore.CurrencyClore]

	snap := &models.ServerSnapshot{
		UserID:      userID,
		ServerID:    srv.ID,
		Kind:        kind,
		RawData:     string(raw),
		GPUModel:    gpuModel,
		GPUCount:    gpuCount,
		GPURAM:      srv.Specs.GPURAM,
		CPUModel:    srv.Specs.CPU,
		RAMGB:       srv.Specs.RAM,
		PriceClore:  priceClore,
		PriceUSD:    priceUSD,
		PriceSource: priceSource,
		IsRented:    srv.Rented,
		IsOnline:    srv.Online,
		Location:    srv.Specs.Net.CC,
		Reliability: srv.Reliability,
		Rating:      srv.Rating.Avg,
		RatingCount: srv.Rating.Cnt,
		Timestamp:   now,
	}
	if err := s.db.Create(snap).Error; err != nil {
		return nil, fmt.Errorf("record server snapshot: %w", err)
	}
	return snap, nil
}

// History returns the observations for one (server, kind) since a point in
// time, most recent first. Each call runs a fresh query.
func (s *SnapshotStore) History(serverID int, kind string, since time.Time) ([]models.ServerSnapshot, error) {
	var snaps []models.ServerSnapshot
	err := s.db.
		Where("server_id = ? AND kind = ? AND timestamp >= ?", serverID, kind, since).
		Order("timestamp DESC").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("snapshot history: %w", err)
	}
	return snaps, nil
}

// LastTwo returns the two most recent observations for change detection
func (s *SnapshotStore) LastTwo(serverID int, kind string) ([]models.ServerSnapshot, error) {
	var snaps []models.ServerSnapshot
	err := s.db.
		Where("server_id = ? AND kind = ?", serverID, kind).
		Order("timestamp DESC").
		Limit(2).
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("snapshot last two: %w", err)
	}
	return snaps, nil
}

// RecentForUser returns a user's observations since a point in time,
// most recent first
func (s *SnapshotStore) RecentForUser(userID uint, since time.Time) ([]models.ServerSnapshot, error) {
	var snaps []models.ServerSnapshot
	err := s.db.
		Where("user_id = ? AND timestamp >= ?", userID, since).
		Order("timestamp DESC").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("recent snapshots: %w", err)
	}
	return snaps, nil
}

// RecordBalance appends a balance observation with windowed deltas. Each
// delta is computed against the most recent snapshot at least that old;
// with no such snapshot the delta is zero, never an error.
func (s *SnapshotStore) RecordBalance(userID uint, cloreBalance, btcBalance, usdEquivalent float64, now time.Time) (*models.BalanceSnapshot, error) {
	change10m := 0.0
	if base, err := s.BalanceBaseline(userID, 10*time.Minute, now); err != nil {
		return nil, err
	} else if base != nil {
		change10m = cloreBalance - base.CloreBalance
	}

	change1h := 0.0
	if base, err := s.BalanceBaseline(userID, time.Hour, now); err != nil {
		return nil, err
	} else if base != nil {
		change1h = cloreBalance - base.CloreBalance
	}

	snap := &models.BalanceSnapshot{
		UserID:        userID,
		CloreBalance:  cloreBalance,
		BTCBalance:    btcBalance,
		USDEquivalent: usdEquivalent,
		Change10Min:   change10m,
		Change1Hour:   change1h,
		Timestamp:     now,
	}
	if err := s.db.Create(snap).Error; err != nil {
		return nil, fmt.Errorf("record balance snapshot: %w", err)
	}
	return snap, nil
}

// BalanceBaseline returns the most recent balance snapshot at least minAge
// old, or nil when the history does not reach back that far
func (s *SnapshotStore) BalanceBaseline(userID uint, minAge time.Duration, now time.Time) (*models.BalanceSnapshot, error) {
	var snap models.BalanceSnapshot
	err := s.db.
		Where("user_id = ? AND timestamp <= ?", userID, now.Add(-minAge)).
		Order("timestamp DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("balance baseline: %w", err)
	}
	return &snap, nil
}

// BalanceHistory returns a user's balance snapshots since a point in time,
// most recent first
func (s *SnapshotStore) BalanceHistory(userID uint, since time.Time) ([]models.BalanceSnapshot, error) {
	var snaps []models.BalanceSnapshot
	err := s.db.
		Where("user_id = ? AND timestamp >= ?", userID, since).
		Order("timestamp DESC").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("balance history: %w", err)
	}
	return snaps, nil
}
