package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"clore-watch/internal/models"
	"clore-watch/internal/services/clore"
	"clore-watch/internal/store"
)

// marketAPI is the slice of the Clore client the hunt watcher needs
type marketAPI interface {
	GetMarketplace(ctx context.Context) ([]clore.Server, error)
	CreateOrder(ctx context.Context, req clore.CreateOrderRequest) error
}

const (
	defaultRentImage = "cloreai/jupyter:ubuntu24.04-v2"
)

// HuntMonitor evaluates every active hunt task against the marketplace,
// suppresses repeat findings within the dedup TTL, and drives the bounded
// auto-rent pipeline for tasks that have it enabled.
type HuntMonitor struct {
	store      *store.Store
	logger     *log.Logger
	interval   time.Duration
	cloreToUSD float64

	// Found-server suppression keyed by (task, server); owned exclusively
	// by this loop
	dedup *Dedup

	clientFor func(models.User) marketAPI
	now       func() time.Time
}

func NewHuntMonitor(st *store.Store, registry *clore.Registry, interval time.Duration, cloreToUSD float64, dedupTTL time.Duration, logWriter *log.Logger) *HuntMonitor {
	return &HuntMonitor{
		store:      st,
		logger:     logWriter,
		interval:   interval,
		cloreToUSD: cloreToUSD,
		dedup:      NewDedup(dedupTTL),
		clientFor: func(u models.User) marketAPI {
			return registry.Get(u.ID, u.APIKey)
		},
		now: time.Now,
	}
}

func (m *HuntMonitor) Run(ctx context.Context) {
	RunLoop(ctx, m.logger, m.interval, m.processTasks)
}

func (m *HuntMonitor) processTasks(ctx context.Context) error {
	tasks, err := m.store.Tasks.ActiveTasks()
	if err != nil {
		return err
	}
	for i := range tasks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.processTask(ctx, &tasks[i]); err != nil {
			m.logger.Printf("task %d: %v", tasks[i].ID, err)
		}
	}
	m.dedup.Prune()
	return nil
}

func (m *HuntMonitor) processTask(ctx context.Context, task *models.HuntTask) error {
	user, err := m.store.Users.ByID(task.UserID)
	if err != nil {
		return err
	}
	if user.APIKey == "" || !user.IsActive {
		m.logger.Printf("task %d: owner %d has no usable API key", task.ID, task.UserID)
		return nil
	}

	criteria, err := ParseCriteria(task.Filters)
	if err != nil {
		return err
	}

	client := m.clientFor(*user)
	servers, err := client.GetMarketplace(ctx)
	if err != nil {
		return fmt.Errorf("fetch marketplace: %w", err)
	}

	matches := MatchServers(servers, criteria, m.cloreToUSD)
	if len(matches) == 0 {
		return nil
	}

	return m.processMatches(ctx, client, task, user, matches)
}

// processMatches walks the fresh matches cheapest first: each one gets a
// found alert and, when auto-rent is on and quota remains, one placement
// attempt. A placement failure drops that candidate for this cycle; the
// quota being reached deactivates the task and ends the cycle for it.
func (m *HuntMonitor) processMatches(ctx context.Context, client marketAPI, task *models.HuntTask, user *models.User, matches []clore.Server) error {
	if task.ServersRented >= task.MaxServers {
		return nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return m.effectivePrice(matches[i]) < m.effectivePrice(matches[j])
	})

	for _, srv := range matches {
		if m.dedup.Seen(MatchKey(task.ID, srv.ID)) {
			continue
		}

		if err := m.createFoundAlert(task, user, srv); err != nil {
			return err
		}
		if err := m.store.Tasks.RecordMatch(task, m.now().UTC()); err != nil {
			return err
		}

		if !task.AutoRent || task.ServersRented >= task.MaxServers {
			continue
		}

		if err := m.rentServer(ctx, client, task, user, srv); err != nil {
			m.logger.Printf("task %d: auto-rent server %d failed: %v", task.ID, srv.ID, err)
			continue
		}

		quotaMet, err := m.store.Tasks.RecordRental(task)
		if err != nil {
			return err
		}
		_, err = m.store.Alerts.Create(user.ID, models.AlertHuntRented,
			"Server rented",
			fmt.Sprintf("Server #%d was rented automatically for task %q", srv.ID, task.Name))
		if err != nil {
			return err
		}
		if quotaMet {
			m.logger.Printf("task %d reached its limit of %d servers", task.ID, task.MaxServers)
			break
		}
	}
	return nil
}

func (m *HuntMonitor) effectivePrice(srv clore.Server) float64 {
	price, _, ok := clore.ExtractServerPrice(srv, m.cloreToUSD)
	if !ok {
		return float64(1<<62)
	}
	return price
}

func (m *HuntMonitor) createFoundAlert(task *models.HuntTask, user *models.User, srv clore.Server) error {
	price, _, _ := clore.ExtractServerPrice(srv, m.cloreToUSD)

	message := fmt.Sprintf("Found a server for task %q:\n- ID: #%d\n- GPU: %s\n- Price: $%.2f/day",
		task.Name, srv.ID, srv.Specs.GPU, price)
	if task.AutoRent {
		message += "\n\nTrying to rent it automatically..."
	} else {
		message += fmt.Sprintf("\n\nUse 'rent %d' to rent it", srv.ID)
	}

	_, err := m.store.Alerts.Create(user.ID, models.AlertHuntFound, "Server found", message)
	return err
}

// rentServer places one order through the rate-limited client. There is
// no retry: a failure is terminal for this candidate in this cycle.
func (m *HuntMonitor) rentServer(ctx context.Context, client marketAPI, task *models.HuntTask, user *models.User, srv clore.Server) error {
	req, err := m.buildOrderRequest(task, user, srv.ID)
	if err != nil {
		return err
	}
	return client.CreateOrder(ctx, req)
}

func (m *HuntMonitor) buildOrderRequest(task *models.HuntTask, user *models.User, serverID int) (clore.CreateOrderRequest, error) {
	req := clore.CreateOrderRequest{
		Currency:          clore.CurrencyClore,
		Image:             defaultRentImage,
		RentingServer:     serverID,
		Type:              clore.OrderTypeOnDemand,
		Ports:             map[string]string{"22": "tcp", "8888": "http"},
		JupyterToken:      orDefault(user.DefaultJupyterToken, "auto"),
		SSHPassword:       orDefault(user.DefaultSSHPassword, "auto"),
		AutosshEntrypoint: true,
	}

	if task.DockerTemplateID != nil {
		tpl, err := m.store.Tasks.Template(*task.DockerTemplateID)
		if err != nil {
			return req, fmt.Errorf("load docker template: %w", err)
		}
		req.Image = tpl.Image
		req.Command = tpl.Command
		if tpl.Ports != "" {
			var ports map[string]string
			if err := json.Unmarshal([]byte(tpl.Ports), &ports); err == nil && len(ports) > 0 {
				req.Ports = ports
			}
		}
		if tpl.Env != "" {
			var env map[string]string
			if err := json.Unmarshal([]byte(tpl.Env), &env); err == nil && len(env) > 0 {
				req.Env = env
			}
		}
		if err := m.store.Tasks.TouchTemplate(tpl.ID, m.now().UTC()); err != nil {
			m.logger.Printf("task %d: %v", task.ID, err)
		}
	}

	return req, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
