// Package report aggregates usage events into summaries.
package report

import (
	"time"

	"github.com/tokenmeter/tokenmeter/internal/models"
)

// Summary holds totals over a filtered set of usage events, together with
// the events themselves so callers can render both summary and detail.
type Summary struct {
	TotalTokens   int64          `json:"total_tokens"`
	TotalCost     float64        `json:"total_cost"`
	TotalRequests int64          `json:"total_requests"`
	Records       []models.Usage `json:"records"`
}

// Summarize filters events and folds them into totals.
//
// Filters apply in order: events before start are dropped, then events
// after end, then events whose model does not match modelFilter. Nil or
// empty filters are skipped. An empty result is a valid zero summary, not
// an error; distinguishing "unknown user" from "no matching events" is the
// caller's concern.
func Summarize(events []models.Usage, start, end *time.Time, modelFilter string) Summary {
	filtered := make([]models.Usage, 0, len(events))
	for _, event := range events {
		if start != nil && event.Timestamp.Before(*start) {
			continue
		}
		if end != nil && event.Timestamp.After(*end) {
			continue
		}
		if modelFilter != "" && event.ModelID != modelFilter {
			continue
		}
		filtered = append(filtered, event)
	}

	summary := Summary{Records: filtered}
	for _, event := range filtered {
		summary.TotalTokens += event.TokensPrompt + event.TokensCompletion
		summary.TotalCost += event.Cost
	}
	summary.TotalRequests = int64(len(filtered))
	return summary
}
