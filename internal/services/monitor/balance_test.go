package monitor

import (
	"context"
	"testing"
	"time"

	"clore-watch/internal/models"
	"clore-watch/internal/services/clore"
	"clore-watch/internal/store"
)

type fakeWallets struct {
	clore float64
	btc   float64
}

func (f *fakeWallets) GetWallets(ctx context.Context) ([]clore.Wallet, error) {
	return []clore.Wallet{
		{Name: clore.CurrencyClore, Balance: f.clore},
		{Name: clore.CurrencyBitcoin, Balance: f.btc},
	}, nil
}

func newBalanceMonitor(st *store.Store, wallets *fakeWallets, at *time.Time) *BalanceMonitor {
	return &BalanceMonitor{
		store:      st,
		logger:     discardLogger(),
		interval:   time.Second,
		cloreToUSD: 0.02,
		btcToUSD:   100000,
		clientFor:  func(models.User) walletAPI { return wallets },
		now:        func() time.Time { return *at },
	}
}

func TestBalanceThresholdAlert(t *testing.T) {
	st := newTestStore(t)
	user := newTestUser(t, st, 6000)
	threshold := 50.0
	user.AlertBalanceThreshold = &threshold
	if err := st.Users.Update(user); err != nil {
		t.Fatalf("update user: %v", err)
	}

	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	wallets := &fakeWallets{clore: 1000} // 20 USD, below threshold
	m := newBalanceMonitor(st, wallets, &at)

	if err := m.checkAll(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}

	alerts, err := st.Alerts.Pending(user.ID)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Type != models.AlertBalanceLow {
		t.Fatalf("expected a low-balance alert, got %#v", alerts)
	}

	snaps, err := st.Snapshots.BalanceHistory(user.ID, at.Add(-time.Minute))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(snaps) != 1 || snaps[0].USDEquivalent != 20 {
		t.Fatalf("balance snapshot wrong: %#v", snaps)
	}
}

func TestBalanceSharpDropAlert(t *testing.T) {
	st := newTestStore(t)
	user := newTestUser(t, st, 6001)

	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	wallets := &fakeWallets{clore: 1000}
	m := newBalanceMonitor(st, wallets, &at)

	// Cold start: no baseline, no drop alert regardless of value
	if err := m.checkAll(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	alerts, err := st.Alerts.Pending(user.ID)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("cold start must not alert, got %#v", alerts)
	}

	// 90 minutes later the balance fell 40% against the 1h-old baseline
	at = at.Add(90 * time.Minute)
	wallets.clore = 600
	if err := m.checkAll(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	alerts, err = st.Alerts.Pending(user.ID)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Type != models.AlertBalanceDrop {
		t.Fatalf("expected a drop alert, got %#v", alerts)
	}
}

func TestBalanceSmallDipStaysQuiet(t *testing.T) {
	st := newTestStore(t)
	user := newTestUser(t, st, 6002)

	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	wallets := &fakeWallets{clore: 1000}
	m := newBalanceMonitor(st, wallets, &at)

	if err := m.checkAll(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	// 10% down is normal spend, not an incident
	at = at.Add(90 * time.Minute)
	wallets.clore = 900
	if err := m.checkAll(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	alerts, err := st.Alerts.Pending(user.ID)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts, got %#v", alerts)
	}
}
