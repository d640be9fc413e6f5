// Package settings keeps database-backed configuration with an in-memory
// snapshot so hot paths never query the settings table.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tokenmeter/tokenmeter/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KeyPricingSource stores the upstream auto-pricing source override.
const KeyPricingSource = "pricing_source"

// PricingSource overrides the configured auto-pricing endpoint. Stored in
// the database so credentials can be rotated without a restart.
type PricingSource struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

var (
	// snapshotMu guards the snapshot map.
	snapshotMu sync.RWMutex
	// snapshot caches all settings rows by key.
	snapshot = map[string]json.RawMessage{}
)

// Refresh reloads all settings from the database and replaces the snapshot.
//
// This is required at process startup; otherwise Value() returns nothing
// until the first write through Store (which refreshes as a side effect).
func Refresh(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("settings: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var rows []models.Setting
	if errFind := db.WithContext(ctx).
		Select("key", "value").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return errFind
	}

	values := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = json.RawMessage(row.Value)
	}

	snapshotMu.Lock()
	snapshot = values
	snapshotMu.Unlock()
	return nil
}

// Value returns the raw JSON value for a key from the snapshot.
func Value(key string) (json.RawMessage, bool) {
	snapshotMu.RLock()
	defer snapshotMu.RUnlock()
	value, ok := snapshot[key]
	return value, ok
}

// Store upserts a settings row and refreshes the snapshot.
func Store(ctx context.Context, db *gorm.DB, key string, value any) error {
	if db == nil {
		return errors.New("settings: nil db")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("settings: empty key")
	}

	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("settings: marshal %s: %w", key, errMarshal)
	}

	row := models.Setting{Key: key, Value: datatypes.JSON(payload)}
	if errSave := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error; errSave != nil {
		return fmt.Errorf("settings: store %s: %w", key, errSave)
	}

	return Refresh(ctx, db)
}

// PricingSourceOverride returns the stored pricing source, if configured.
func PricingSourceOverride() (PricingSource, bool) {
	raw, ok := Value(KeyPricingSource)
	if !ok {
		return PricingSource{}, false
	}
	var source PricingSource
	if errUnmarshal := json.Unmarshal(raw, &source); errUnmarshal != nil {
		return PricingSource{}, false
	}
	return source, true
}
