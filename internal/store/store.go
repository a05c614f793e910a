package store

import (
	"gorm.io/gorm"
)

// Store bundles the persistence components around one GORM handle.
// It is the only synchronization point shared between watcher loops.
type Store struct {
	Snapshots *SnapshotStore
	Orders    *OrderLedger
	Tasks     *TaskStore
	Alerts    *AlertOutbox
	Users     *UserStore
	Rates     *RateStore
}

func New(db *gorm.DB) *Store {
	return &Store{
		Snapshots: &SnapshotStore{db: db},
		Orders:    &OrderLedger{db: db},
		Tasks:     &TaskStore{db: db},
		Alerts:    &AlertOutbox{db: db},
		Users:     &UserStore{db: db},
		Rates:     &RateStore{db: db},
	}
}
