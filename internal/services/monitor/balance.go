package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"clore-watch/internal/models"
	"clore-watch/internal/services/clore"
	"clore-watch/internal/store"
)

// walletAPI is the slice of the Clore client the balance watcher needs
type walletAPI interface {
	GetWallets(ctx context.Context) ([]clore.Wallet, error)
}

// BalanceMonitor polls wallet balances for every active user, appends
// balance snapshots with windowed deltas, and raises low-balance and
// sharp-drop alerts.
type BalanceMonitor struct {
	store      *store.Store
	logger     *log.Logger
	interval   time.Duration
	cloreToUSD float64
	btcToUSD   float64

	clientFor func(models.User) walletAPI
	now       func() time.Time
}

func NewBalanceMonitor(st *store.Store, registry *clore.Registry, interval time.Duration, cloreToUSD, btcToUSD float64, logWriter *log.Logger) *BalanceMonitor {
	return &BalanceMonitor{
		store:      st,
		logger:     logWriter,
		interval:   interval,
		cloreToUSD: cloreToUSD,
		btcToUSD:   btcToUSD,
		clientFor: func(u models.User) walletAPI {
			return registry.Get(u.ID, u.APIKey)
		},
		now: time.Now,
	}
}

func (m *BalanceMonitor) Run(ctx context.Context) {
	RunLoop(ctx, m.logger, m.interval, m.checkAll)
}

// checkAll runs one poll cycle across all users. A single user's failure
// is logged and never halts the cycle for the others.
func (m *BalanceMonitor) checkAll(ctx context.Context) error {
	users, err := m.store.Users.ActiveWithAPIKeys()
	if err != nil {
		return err
	}

	// Keep the pricing rates this cycle worked with queryable
	now := m.now().UTC()
	if err := m.store.Rates.Upsert("CLORE", "USD", m.cloreToUSD, "manual", now); err != nil {
		m.logger.Printf("rate upsert: %v", err)
	}
	if err := m.store.Rates.Upsert("BTC", "USD", m.btcToUSD, "manual", now); err != nil {
		m.logger.Printf("rate upsert: %v", err)
	}

	for _, user := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.checkUser(ctx, user); err != nil {
			m.logger.Printf("user %d: %v", user.ID, err)
		}
	}
	return nil
}

func (m *BalanceMonitor) checkUser(ctx context.Context, user models.User) error {
	wallets, err := m.clientFor(user).GetWallets(ctx)
	if err != nil {
		return fmt.Errorf("fetch wallets: %w", err)
	}

	var cloreBalance, btcBalance, totalUSD float64
	for _, w := range wallets {
		switch w.Name {
		case clore.CurrencyClore:
			cloreBalance = w.Balance
			totalUSD += w.Balance * m.cloreToUSD
		case clore.CurrencyBitcoin:
			btcBalance = w.Balance
			totalUSD += w.Balance * m.btcToUSD
		}
	}

	now := m.now().UTC()

	// Baseline for drop detection, read before appending this cycle's row
	baseline, err := m.store.Snapshots.BalanceBaseline(user.ID, time.Hour, now)
	if err != nil {
		return err
	}

	if _, err := m.store.Snapshots.RecordBalance(user.ID, cloreBalance, btcBalance, totalUSD, now); err != nil {
		return err
	}

	if user.AlertBalanceThreshold != nil && totalUSD < *user.AlertBalanceThreshold {
		_, err := m.store.Alerts.Create(user.ID, models.AlertBalanceLow,
			"Low balance",
			fmt.Sprintf("Your balance ($%.2f) is below the configured threshold ($%.2f)", totalUSD, *user.AlertBalanceThreshold))
		if err != nil {
			return err
		}
	}

	// A >20% drop against the state one hour ago. Cold start means no
	// baseline and no alert.
	if baseline != nil && baseline.CloreBalance > 0 {
		dropPercent := (baseline.CloreBalance - cloreBalance) / baseline.CloreBalance * 100
		if dropPercent > 20 {
			_, err := m.store.Alerts.Create(user.ID, models.AlertBalanceDrop,
				"Sharp balance drop",
				fmt.Sprintf("CLORE balance dropped %.1f%% over the last hour", dropPercent))
			if err != nil {
				return err
			}
		}
	}

	return nil
}
