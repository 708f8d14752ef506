package models

import "time"

// OrderCounter holds the per-period sequence that order numbers are minted
// from. Incremented atomically inside the checkout transaction, so two
// concurrent checkouts can never observe the same value.
type OrderCounter struct {
	Period    string    `gorm:"column:period;primaryKey;size:4"`
	Seq       int64     `gorm:"column:seq;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
