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

// ordersAPI is the slice of the Clore client the server watcher needs
type ordersAPI interface {
	GetMyServers(ctx context.Context) ([]clore.Server, error)
	GetMyOrders(ctx context.Context, returnCompleted bool) ([]clore.Order, error)
}

// ServerMonitor reconciles owned servers and active rentals against the
// upstream state: it appends owned-server observations, detects rented and
// online flips, converges the order ledger, and warns about rentals that
// are about to expire.
type ServerMonitor struct {
	store      *store.Store
	logger     *log.Logger
	interval   time.Duration
	cloreToUSD float64

	// Warning suppression keyed by (owner, order, tier)
	expiryDedup *Dedup

	clientFor func(models.User) ordersAPI
	now       func() time.Time
}

func NewServerMonitor(st *store.Store, registry *clore.Registry, interval time.Duration, cloreToUSD float64, dedupTTL time.Duration, logWriter *log.Logger) *ServerMonitor {
	return &ServerMonitor{
		store:       st,
		logger:      logWriter,
		interval:    interval,
		cloreToUSD:  cloreToUSD,
		expiryDedup: NewDedup(dedupTTL),
		clientFor: func(u models.User) ordersAPI {
			return registry.Get(u.ID, u.APIKey)
		},
		now: time.Now,
	}
}

func (m *ServerMonitor) Run(ctx context.Context) {
	RunLoop(ctx, m.logger, m.interval, m.checkAll)
}

func (m *ServerMonitor) checkAll(ctx context.Context) error {
	users, err := m.store.Users.ActiveWithAPIKeys()
	if err != nil {
		return err
	}
	for _, user := range users {
		// The stop signal is only honored between owners so one owner's
		// fetch-diff-persist runs as a unit
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.checkUser(ctx, user); err != nil {
			m.logger.Printf("user %d: %v", user.ID, err)
		}
	}
	m.expiryDedup.Prune()
	return nil
}

func (m *ServerMonitor) checkUser(ctx context.Context, user models.User) error {
	client := m.clientFor(user)

	if err := m.checkMyServers(ctx, client, user); err != nil {
		m.logger.Printf("user %d servers: %v", user.ID, err)
	}
	if err := m.checkOrders(ctx, client, user); err != nil {
		m.logger.Printf("user %d orders: %v", user.ID, err)
	}
	return nil
}

// checkMyServers snapshots the user's own machines and alerts on rented
// and online transitions between the two most recent observations
func (m *ServerMonitor) checkMyServers(ctx context.Context, client ordersAPI, user models.User) error {
	servers, err := client.GetMyServers(ctx)
	if err != nil {
		return fmt.Errorf("fetch my servers: %w", err)
	}

	now := m.now().UTC()
	for _, srv := range servers {
		if !srv.Connected || srv.Specs.GPU == "" {
			continue
		}
		if _, err := m.store.Snapshots.RecordServer(user.ID, models.SnapshotMyServer, srv, m.cloreToUSD, now); err != nil {
			return err
		}
		if err := m.checkStatusFlips(user, srv.ID); err != nil {
			return err
		}
	}
	return nil
}

func (m *ServerMonitor) checkStatusFlips(user models.User, serverID int) error {
	snaps, err := m.store.Snapshots.LastTwo(serverID, models.SnapshotMyServer)
	if err != nil {
		return err
	}
	if len(snaps) < 2 {
		return nil
	}
	current, previous := snaps[0], snaps[1]

	if current.IsRented && !previous.IsRented {
		_, err := m.store.Alerts.Create(user.ID, models.AlertServerRented,
			"Server rented out",
			fmt.Sprintf("Your server #%d was just rented", serverID))
		if err != nil {
			return err
		}
	}
	if current.IsOnline != previous.IsOnline {
		state := "back online"
		if !current.IsOnline {
			state = "offline"
		}
		_, err := m.store.Alerts.Create(user.ID, models.AlertServerOnline,
			"Server status changed",
			fmt.Sprintf("Your server #%d is %s", serverID, state))
		if err != nil {
			return err
		}
	}
	return nil
}

// checkOrders converges the ledger to the upstream active-order list and
// emits completion alerts plus deduplicated expiry warnings
func (m *ServerMonitor) checkOrders(ctx context.Context, client ordersAPI, user models.User) error {
	upstream, err := client.GetMyOrders(ctx, false)
	if err != nil {
		return fmt.Errorf("fetch my orders: %w", err)
	}

	result, err := m.store.Orders.Reconcile(user.ID, upstream)
	if err != nil {
		return fmt.Errorf("reconcile orders: %w", err)
	}

	for _, order := range result.Expired {
		_, err := m.store.Alerts.Create(user.ID, models.AlertOrderExpired,
			"Rental finished",
			fmt.Sprintf("Order #%d is no longer active", order.CloreOrderID))
		if err != nil {
			return err
		}
	}

	for _, o := range upstream {
		if err := m.checkOrderExpiry(user, o); err != nil {
			return err
		}
	}
	return nil
}

func (m *ServerMonitor) checkOrderExpiry(user models.User, o clore.Order) error {
	if o.MRL <= 0 || o.CT <= 0 || user.AlertExpiryHours <= 0 {
		return nil
	}

	expiresAt := time.Unix(o.CT+o.MRL, 0).UTC()
	hoursLeft := expiresAt.Sub(m.now().UTC()).Hours()
	if hoursLeft <= 0 || hoursLeft > float64(user.AlertExpiryHours) {
		return nil
	}

	if m.expiryDedup.Seen(ExpiryKey(user.ID, o.ID, user.AlertExpiryHours)) {
		return nil
	}

	_, err := m.store.Alerts.Create(user.ID, models.AlertOrderExpiring,
		"Rental ending soon",
		fmt.Sprintf("Order #%d expires in %.1f hours", o.ID, hoursLeft))
	return err
}
