// Package catalog implements the per-model price catalog.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tokenmeter/tokenmeter/internal/clock"
	"github.com/tokenmeter/tokenmeter/internal/models"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrNotFound indicates no catalog entry exists for a model.
var ErrNotFound = errors.New("catalog: model price not found")

// cacheKeyPrefix namespaces catalog entries in the cache.
const cacheKeyPrefix = "tokenmeter:price:"

// Store persists model prices, one row per model.
//
// The optional redis cache accelerates Get; cache failures degrade to the
// database silently. Upsert writes exactly the state it is given: a nil
// price clears the stored field rather than preserving the prior value.
type Store struct {
	db       *gorm.DB
	clock    clock.Clock
	cache    *redis.Client
	cacheTTL time.Duration
}

// NewStore constructs a Store. A nil cache client disables caching.
func NewStore(db *gorm.DB, clk clock.Clock, cache *redis.Client, cacheTTL time.Duration) *Store {
	if clk == nil {
		clk = clock.System{}
	}
	return &Store{db: db, clock: clk, cache: cache, cacheTTL: cacheTTL}
}

// Get returns the catalog entry for modelID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, modelID string) (models.ModelPrice, error) {
	if cached, ok := s.cacheGet(ctx, modelID); ok {
		return cached, nil
	}

	var row models.ModelPrice
	if errFind := s.db.WithContext(ctx).
		Where("model_id = ?", modelID).
		First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.ModelPrice{}, ErrNotFound
		}
		return models.ModelPrice{}, fmt.Errorf("catalog: get %s: %w", modelID, errFind)
	}

	s.cacheSet(ctx, row)
	return row, nil
}

// List returns all catalog entries ordered by model ID.
func (s *Store) List(ctx context.Context) ([]models.ModelPrice, error) {
	var rows []models.ModelPrice
	if errFind := s.db.WithContext(ctx).
		Order("model_id ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("catalog: list: %w", errFind)
	}
	return rows, nil
}

// Upsert creates or replaces the entry for modelID and returns the stored
// row. Both price fields are set to exactly the given values; updated_at is
// refreshed from the store clock.
func (s *Store) Upsert(ctx context.Context, modelID string, autoPrice, manualPrice *float64, source string) (models.ModelPrice, error) {
	now := s.clock.Now()

	var result models.ModelPrice
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ModelPrice
		errFind := tx.Where("model_id = ?", modelID).First(&existing).Error
		switch {
		case errFind == nil:
			if errUpdate := tx.Model(&models.ModelPrice{}).
				Where("id = ?", existing.ID).
				Updates(map[string]any{
					"auto_price":   autoPrice,
					"manual_price": manualPrice,
					"source":       source,
					"updated_at":   now,
				}).Error; errUpdate != nil {
				return errUpdate
			}
			return tx.Where("id = ?", existing.ID).First(&result).Error
		case errors.Is(errFind, gorm.ErrRecordNotFound):
			result = models.ModelPrice{
				ModelID:     modelID,
				AutoPrice:   autoPrice,
				ManualPrice: manualPrice,
				Source:      source,
				UpdatedAt:   now,
			}
			return tx.Create(&result).Error
		default:
			return errFind
		}
	})
	if errTx != nil {
		return models.ModelPrice{}, fmt.Errorf("catalog: upsert %s: %w", modelID, errTx)
	}

	s.cacheInvalidate(ctx, modelID)
	return result, nil
}

// cacheGet attempts to load an entry from the cache.
func (s *Store) cacheGet(ctx context.Context, modelID string) (models.ModelPrice, bool) {
	if s.cache == nil {
		return models.ModelPrice{}, false
	}
	payload, errGet := s.cache.Get(ctx, cacheKeyPrefix+modelID).Bytes()
	if errGet != nil {
		if !errors.Is(errGet, redis.Nil) {
			log.WithError(errGet).Debug("catalog cache read failed")
		}
		return models.ModelPrice{}, false
	}
	var row models.ModelPrice
	if errUnmarshal := json.Unmarshal(payload, &row); errUnmarshal != nil {
		return models.ModelPrice{}, false
	}
	return row, true
}

// cacheSet stores an entry in the cache.
func (s *Store) cacheSet(ctx context.Context, row models.ModelPrice) {
	if s.cache == nil {
		return
	}
	payload, errMarshal := json.Marshal(row)
	if errMarshal != nil {
		return
	}
	if errSet := s.cache.Set(ctx, cacheKeyPrefix+row.ModelID, payload, s.cacheTTL).Err(); errSet != nil {
		log.WithError(errSet).Debug("catalog cache write failed")
	}
}

// cacheInvalidate drops a cached entry after a write.
func (s *Store) cacheInvalidate(ctx context.Context, modelID string) {
	if s.cache == nil {
		return
	}
	if errDel := s.cache.Del(ctx, cacheKeyPrefix+modelID).Err(); errDel != nil {
		log.WithError(errDel).Debug("catalog cache invalidate failed")
	}
}
