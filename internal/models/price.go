package models

import "time"

// ModelPrice stores the pricing configuration for a single model.
//
// AutoPrice and ManualPrice are rates per 1,000 tokens. ManualPrice takes
// precedence over AutoPrice when both are set. Either may be nil, meaning
// the field is unset for this model.
type ModelPrice struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"` // Primary key.

	ModelID string `gorm:"type:text;not null;uniqueIndex" json:"model_id"` // Model identifier, one row per model.

	AutoPrice   *float64 `gorm:"type:decimal(20,10)" json:"auto_price"`   // Discovered rate per 1K tokens.
	ManualPrice *float64 `gorm:"type:decimal(20,10)" json:"manual_price"` // Administrator-set rate per 1K tokens.

	Source string `gorm:"type:text" json:"source"` // Provenance label, e.g. "manual" or "api".

	UpdatedAt time.Time `gorm:"not null" json:"updated_at"` // Last write timestamp, set by the catalog.
}

// TableName returns the table name for ModelPrice rows.
func (ModelPrice) TableName() string { return "model_prices" }
