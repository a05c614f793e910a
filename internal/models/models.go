package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a bot user on whose behalf the watchers run
type User struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	ExternalID int64          `json:"external_id" gorm:"unique;not null;index"`
	Username   string         `json:"username"`
	APIKey     string         `json:"-" gorm:"column:clore_api_key;size:256"`
	IsActive   bool           `json:"is_active" gorm:"default:true"`

	// Defaults applied when placing orders
	DefaultSSHPassword  string `json:"-" gorm:"size:32"`
	DefaultJupyterToken string `json:"-" gorm:"size:32"`

	// Alert settings
	AlertBalanceThreshold *float64 `json:"alert_balance_threshold"`
	AlertExpiryHours      int      `json:"alert_expiry_hours" gorm:"default:5"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// BalanceSnapshot is one observation of a user's wallet balances
type BalanceSnapshot struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	UserID uint `json:"user_id" gorm:"not null;index:idx_balance_user_ts"`

	CloreBalance  float64 `json:"clore_balance"`
	BTCBalance    float64 `json:"btc_balance"`
	USDEquivalent float64 `json:"usd_equivalent"`

	// Windowed deltas against the most recent snapshot at least that old
	Change10Min float64 `json:"change_10min"`
	Change1Hour float64 `json:"change_1hour"`

	Timestamp time.Time `json:"timestamp" gorm:"index:idx_balance_user_ts"`
}

// Snapshot kinds
const (
	SnapshotMarketplace = "marketplace"
	SnapshotMyServer    = "my_server"
)

// ServerSnapshot is an immutable observation of one listing or owned server.
// A new row is appended every poll cycle; rows are never updated.
type ServerSnapshot struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	UserID uint `json:"user_id" gorm:"not null"`

	ServerID int    `json:"server_id" gorm:"index:idx_snapshot_server_kind"`
	Kind     string `json:"kind" gorm:"size:16;index:idx_snapshot_server_kind"`

	// Full upstream payload, as received
	RawData string `json:"raw_data" gorm:"type:text"`

	// Indexed attributes for querying
	GPUModel string  `json:"gpu_model" gorm:"size:64;index"`
	GPUCount int     `json:"gpu_count"`
	GPURAM   float64 `json:"gpu_ram"`
	CPUModel string  `json:"cpu_model" gorm:"size:128"`
	RAMGB    float64 `json:"ram_gb"`

	PriceClore  float64 `json:"price_clore"`
	PriceUSD    float64 `json:"price_usd"`
	PriceSource string  `json:"price_source" gorm:"size:16"` // fixed, market

	IsRented bool `json:"is_rented"`
	IsOnline bool `json:"is_online"`

	Location    string  `json:"location" gorm:"size:8"`
	Reliability float64 `json:"reliability"`
	Rating      float64 `json:"rating"`
	RatingCount int     `json:"rating_count"`

	Timestamp time.Time `json:"timestamp" gorm:"index"`
}

// Order statuses. Transitions are one-way: active -> expired | cancelled.
const (
	OrderActive    = "active"
	OrderExpired   = "expired"
	OrderCancelled = "cancelled"
)

// Order is a locally tracked rental, keyed by the upstream order id
type Order struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	UserID uint `json:"user_id" gorm:"not null;index"`

	CloreOrderID int    `json:"clore_order_id" gorm:"unique;not null;index"`
	ServerID     int    `json:"server_id" gorm:"index"`
	OrderType    string `json:"order_type" gorm:"size:16"` // on-demand, spot
	Status       string `json:"status" gorm:"size:16;index:idx_orders_status_expires"`

	PricePerDay float64 `json:"price_per_day"`
	Currency    string  `json:"currency" gorm:"size:32"`
	TotalSpent  float64 `json:"total_spent"`
	CreationFee float64 `json:"creation_fee"`

	// Container configuration
	Image   string `json:"image" gorm:"size:256"`
	Ports   string `json:"ports" gorm:"type:text"` // JSON object stored as string
	Env     string `json:"env" gorm:"type:text"`   // JSON object stored as string
	Command string `json:"command" gorm:"type:text"`

	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at" gorm:"index:idx_orders_status_expires"`
	CancelledAt *time.Time `json:"cancelled_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// HuntTask is a standing search-and-optionally-auto-rent definition
type HuntTask struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	UserID uint `json:"user_id" gorm:"not null;index"`

	Name    string `json:"name" gorm:"size:128"`
	Filters string `json:"filters" gorm:"type:text"` // criteria JSON stored as string

	IsActive         bool  `json:"is_active" gorm:"default:true;index"`
	AutoRent         bool  `json:"auto_rent" gorm:"default:false"`
	MaxServers       int   `json:"max_servers" gorm:"default:1"`
	DockerTemplateID *uint `json:"docker_template_id"`

	ServersFound  int        `json:"servers_found" gorm:"default:0"`
	ServersRented int        `json:"servers_rented" gorm:"default:0"`
	LastFoundAt   *time.Time `json:"last_found_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DockerTemplate holds a reusable container configuration for auto-rent.
// A NULL user id marks a global template.
type DockerTemplate struct {
	ID     uint  `json:"id" gorm:"primaryKey"`
	UserID *uint `json:"user_id" gorm:"index"`

	Name        string `json:"name" gorm:"size:128;not null"`
	Description string `json:"description" gorm:"type:text"`
	Category    string `json:"category" gorm:"size:64"`

	Image   string `json:"image" gorm:"size:256;not null"`
	Ports   string `json:"ports" gorm:"type:text"`
	Env     string `json:"env" gorm:"type:text"`
	Command string `json:"command" gorm:"type:text"`

	UsageCount int        `json:"usage_count" gorm:"default:0"`
	LastUsedAt *time.Time `json:"last_used_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Alert kinds emitted by the watchers
const (
	AlertBalanceLow    = "balance_low"
	AlertBalanceDrop   = "balance_drop"
	AlertOrderExpiring = "order_expiring"
	AlertOrderExpired  = "order_expired"
	AlertServerRented  = "server_rented"
	AlertServerOnline  = "server_online"
	AlertHuntFound     = "hunt_found"
	AlertHuntRented    = "hunt_rented"
)

// Alert is a durable outbox row with at-least-once delivery semantics.
// The delivery channel marks rows sent (or records the error); rows are
// never deleted.
type Alert struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	UserID uint `json:"user_id" gorm:"not null;index:idx_alerts_user_sent"`

	Type    string `json:"type" gorm:"size:32"`
	Title   string `json:"title" gorm:"size:256"`
	Message string `json:"message" gorm:"type:text"`

	IsSent bool       `json:"is_sent" gorm:"default:false;index:idx_alerts_user_sent"`
	SentAt *time.Time `json:"sent_at"`
	Error  string     `json:"error" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// ExchangeRate stores a currency conversion rate
type ExchangeRate struct {
	ID uint `json:"id" gorm:"primaryKey"`

	CurrencyFrom string  `json:"currency_from" gorm:"size:32;not null;uniqueIndex:idx_currency_pair"`
	CurrencyTo   string  `json:"currency_to" gorm:"size:32;not null;uniqueIndex:idx_currency_pair"`
	Rate         float64 `json:"rate" gorm:"not null"`
	Source       string  `json:"source" gorm:"size:64"` // manual, coingecko, calculated

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index"`
}
