package monitor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"clore-watch/internal/models"
	"clore-watch/internal/services/clore"
	"clore-watch/internal/store"
)

// Models worth archiving for price analytics
var archiveGPUs = []string{"4090", "3090", "3080", "A100", "H100"}

// Archiver records hourly marketplace observations of the GPU models
// worth tracking, so price history stays queryable independently of any
// hunt task. It runs on a cron schedule rather than a watcher loop.
type Archiver struct {
	store      *store.Store
	logger     *log.Logger
	cloreToUSD float64

	clientFor func(models.User) marketAPI
	now       func() time.Time
}

func NewArchiver(st *store.Store, registry *clore.Registry, cloreToUSD float64, logWriter *log.Logger) *Archiver {
	return &Archiver{
		store:      st,
		logger:     logWriter,
		cloreToUSD: cloreToUSD,
		clientFor: func(u models.User) marketAPI {
			return registry.Get(u.ID, u.APIKey)
		},
		now: time.Now,
	}
}

// Archive takes one marketplace snapshot. One API-keyed user is enough to
// read the public marketplace; the snapshot is stored under that user.
func (a *Archiver) Archive(ctx context.Context) error {
	users, err := a.store.Users.ActiveWithAPIKeys()
	if err != nil {
		return err
	}
	if len(users) == 0 {
		a.logger.Printf("no active users, skipping marketplace archive")
		return nil
	}
	user := users[0]

	servers, err := a.clientFor(user).GetMarketplace(ctx)
	if err != nil {
		return fmt.Errorf("fetch marketplace: %w", err)
	}

	now := a.now().UTC()
	archived := 0
	for _, srv := range servers {
		if !interestingGPU(srv.Specs.GPU) {
			continue
		}
		if _, err := a.store.Snapshots.RecordServer(user.ID, models.SnapshotMarketplace, srv, a.cloreToUSD, now); err != nil {
			return err
		}
		archived++
	}

	a.logger.Printf("archived %d marketplace snapshots", archived)
	return nil
}

func interestingGPU(gpu string) bool {
	for _, model := range archiveGPUs {
		if strings.Contains(gpu, model) {
			return true
		}
	}
	return false
}
