// Package usage records model invocations with their resolved cost.
package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tokenmeter/tokenmeter/internal/ledger"
	"github.com/tokenmeter/tokenmeter/internal/models"
	"github.com/tokenmeter/tokenmeter/internal/pricing"

	log "github.com/sirupsen/logrus"
)

// ErrInvalidInput indicates a malformed usage record request.
var ErrInvalidInput = errors.New("usage: invalid input")

// Recorder resolves the cost of an invocation and appends it to the ledger.
type Recorder struct {
	resolver *pricing.Resolver
	ledger   *ledger.Ledger
}

// NewRecorder constructs a Recorder.
func NewRecorder(resolver *pricing.Resolver, l *ledger.Ledger) *Recorder {
	return &Recorder{resolver: resolver, ledger: l}
}

// Record computes the cost for the invocation and appends a usage event.
//
// Cost resolution cannot fail on missing pricing data; it yields zero so
// the event is still recorded. A ledger write failure is returned to the
// caller, who may treat it as non-fatal but must be able to detect it.
func (r *Recorder) Record(ctx context.Context, userID, modelID string, inputTokens, outputTokens int64, conversationID *string) (models.Usage, error) {
	userID = strings.TrimSpace(userID)
	modelID = strings.TrimSpace(modelID)
	if userID == "" {
		return models.Usage{}, fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	if modelID == "" {
		return models.Usage{}, fmt.Errorf("%w: empty model id", ErrInvalidInput)
	}
	if inputTokens < 0 || outputTokens < 0 {
		return models.Usage{}, fmt.Errorf("%w: negative token count", ErrInvalidInput)
	}

	cost, errResolve := r.resolver.ResolveCost(ctx, modelID, inputTokens, outputTokens)
	if errResolve != nil {
		return models.Usage{}, errResolve
	}

	row, errAppend := r.ledger.Append(ctx, userID, modelID, inputTokens, outputTokens, cost, conversationID)
	if errAppend != nil {
		log.WithError(errAppend).Warn("failed to persist usage event")
		return models.Usage{}, errAppend
	}

	log.WithFields(log.Fields{
		"user":   userID,
		"model":  modelID,
		"tokens": inputTokens + outputTokens,
		"cost":   fmt.Sprintf("%.6f", cost),
	}).Info("recorded usage")
	return row, nil
}
