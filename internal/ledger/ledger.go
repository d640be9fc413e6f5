// Package ledger persists the append-only usage event log.
package ledger

import (
	"context"
	"fmt"

	"github.com/tokenmeter/tokenmeter/internal/clock"
	"github.com/tokenmeter/tokenmeter/internal/models"

	"gorm.io/gorm"
)

// Ledger appends and queries usage events. Events are never updated or
// deleted; the timestamp is assigned here, not by the caller.
type Ledger struct {
	db    *gorm.DB
	clock clock.Clock
}

// New constructs a Ledger.
func New(db *gorm.DB, clk clock.Clock) *Ledger {
	if clk == nil {
		clk = clock.System{}
	}
	return &Ledger{db: db, clock: clk}
}

// Append stores a usage event and returns the stored row with its assigned
// ID and timestamp. A storage failure is returned to the caller so usage is
// never dropped silently.
func (l *Ledger) Append(ctx context.Context, userID, modelID string, tokensPrompt, tokensCompletion int64, cost float64, conversationID *string) (models.Usage, error) {
	row := models.Usage{
		UserID:           userID,
		ModelID:          modelID,
		TokensPrompt:     tokensPrompt,
		TokensCompletion: tokensCompletion,
		Cost:             cost,
		Timestamp:        l.clock.Now(),
		ConversationID:   conversationID,
	}
	if errCreate := l.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return models.Usage{}, fmt.Errorf("ledger: append: %w", errCreate)
	}
	return row, nil
}

// QueryByUser returns all events for a user in insertion order.
func (l *Ledger) QueryByUser(ctx context.Context, userID string) ([]models.Usage, error) {
	var rows []models.Usage
	if errFind := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("ledger: query by user: %w", errFind)
	}
	return rows, nil
}

// QueryByConversation returns all events for a conversation in insertion order.
func (l *Ledger) QueryByConversation(ctx context.Context, conversationID string) ([]models.Usage, error) {
	var rows []models.Usage
	if errFind := l.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("ledger: query by conversation: %w", errFind)
	}
	return rows, nil
}
