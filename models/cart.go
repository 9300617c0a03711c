package models

import (
	"time"

	"gorm.io/gorm"
)

// Abandoned cart statuses.
const (
	CartStatusAbandoned = "abandoned"
	CartStatusRecovered = "recovered"
	CartStatusExpired   = "expired"
)

// AbandonedCart is a snapshot of a checkout a customer walked away from.
// At most one row per email may be in status "abandoned"; a newer snapshot
// for the same email replaces the item set instead of creating a second row.
// The partial unique index enforces that even for concurrent captures.
type AbandonedCart struct {
	gorm.Model

	Email        string `gorm:"not null;index;index:idx_live_cart_email,unique,where:status = 'abandoned'" json:"email"`
	CustomerName string `json:"customer_name"`
	SessionID    string `json:"session_id"`

	// Opaque token that lets the customer resume checkout without logging in.
	RecoveryToken string `gorm:"not null;uniqueIndex" json:"recovery_token"`

	Status     string `gorm:"default:'abandoned';index" json:"status"`
	TotalCents int64  `gorm:"default:0" json:"total_cents"`
	ItemCount  int    `gorm:"default:0" json:"item_count"`

	LastActivityAt time.Time  `gorm:"not null;index" json:"last_activity_at"`
	EmailSentAt    *time.Time `json:"email_sent_at"`
	EmailCount     int        `gorm:"default:0" json:"email_count"`
	RecoveredAt    *time.Time `json:"recovered_at"`

	Items []AbandonedCartItem `gorm:"foreignKey:CartID" json:"items,omitempty"`
}

// AbandonedCartItem is one line of the snapshotted cart.
type AbandonedCartItem struct {
	gorm.Model
	CartID uint `gorm:"not null;index" json:"cart_id"`

	ProductID  string `gorm:"not null" json:"product_id"`
	Name       string `gorm:"not null" json:"name"`
	PriceCents int64  `gorm:"default:0" json:"price_cents"`
	Quantity   int    `gorm:"default:1" json:"quantity"`
	ImageURL   string `json:"image_url"`
	Variant    string `json:"variant"`
}
