// Package pricing resolves model invocations to monetary cost.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/tokenmeter/tokenmeter/internal/catalog"
	"github.com/tokenmeter/tokenmeter/internal/models"

	log "github.com/sirupsen/logrus"
)

// tokensPerK is the token denomination all rates are quoted in.
const tokensPerK = 1000.0

// ErrInvalidInput indicates malformed resolver input.
var ErrInvalidInput = errors.New("pricing: invalid input")

// CatalogReader is the read side of the price catalog.
type CatalogReader interface {
	Get(ctx context.Context, modelID string) (models.ModelPrice, error)
}

// Resolver computes the cost of a model invocation.
//
// Precedence: a manual catalog price wins over an auto price; a catalog
// price of either kind is applied as one blended rate over the token sum.
// Models absent from the catalog fall back to the built-in table, whose
// rates are applied separately to prompt and completion tokens. When no
// rate can be determined the cost is zero, never an error, so usage is
// still recorded while pricing is unconfigured.
type Resolver struct {
	catalog CatalogReader
}

// NewResolver constructs a Resolver backed by the given catalog.
func NewResolver(cat CatalogReader) *Resolver {
	return &Resolver{catalog: cat}
}

// ResolveCost returns the cost for the given model and token counts.
func (r *Resolver) ResolveCost(ctx context.Context, modelID string, inputTokens, outputTokens int64) (float64, error) {
	if modelID == "" {
		return 0, fmt.Errorf("%w: empty model id", ErrInvalidInput)
	}
	if inputTokens < 0 || outputTokens < 0 {
		return 0, fmt.Errorf("%w: negative token count", ErrInvalidInput)
	}

	entry, errGet := r.catalog.Get(ctx, modelID)
	if errGet != nil {
		if !errors.Is(errGet, catalog.ErrNotFound) {
			// A catalog read failure must not fail cost resolution.
			log.WithError(errGet).Warn("price catalog lookup failed, using fallback rates")
		}
		rate, ok := FallbackRate(modelID)
		if !ok {
			return 0, nil
		}
		inputCost := float64(inputTokens) / tokensPerK * rate.Input
		outputCost := float64(outputTokens) / tokensPerK * rate.Output
		return inputCost + outputCost, nil
	}

	effective := entry.ManualPrice
	if effective == nil {
		effective = entry.AutoPrice
	}
	if effective == nil {
		return 0, nil
	}
	return float64(inputTokens+outputTokens) / tokensPerK * *effective, nil
}
