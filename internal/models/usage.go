package models

import "time"

// Usage records metering data for a single model invocation.
//
// Rows are append-only: once written they are never updated or deleted by
// this service. Cost is a snapshot computed at write time and stays frozen
// even if the model's price changes later.
type Usage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"` // Primary key, monotonically ordered.

	UserID  string `gorm:"type:text;not null;index" json:"user_id"`  // Requesting principal.
	ModelID string `gorm:"type:text;not null;index" json:"model_id"` // Model invoked.

	TokensPrompt     int64 `gorm:"not null;default:0" json:"tokens_prompt"`     // Prompt token count.
	TokensCompletion int64 `gorm:"not null;default:0" json:"tokens_completion"` // Completion token count.

	Cost float64 `gorm:"type:decimal(20,10);not null;default:0" json:"cost"` // Cost snapshot at write time.

	Timestamp time.Time `gorm:"not null;index" json:"timestamp"` // Assigned by the ledger at append time.

	ConversationID *string `gorm:"type:text;index" json:"conversation_id"` // Optional grouping key.
}

// TableName returns the table name for Usage rows.
func (Usage) TableName() string { return "usage_logs" }
