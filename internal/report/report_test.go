package report

import (
	"math"
	"testing"
	"time"

	"github.com/tokenmeter/tokenmeter/internal/models"
)

func ts(hour int) time.Time {
	return time.Date(2025, 3, 1, hour, 0, 0, 0, time.UTC)
}

func sampleEvents() []models.Usage {
	return []models.Usage{
		{ID: 1, UserID: "u1", ModelID: "gpt-4", TokensPrompt: 100, TokensCompletion: 50, Cost: 1.0, Timestamp: ts(8)},
		{ID: 2, UserID: "u1", ModelID: "gpt-4", TokensPrompt: 200, TokensCompletion: 100, Cost: 2.0, Timestamp: ts(10)},
		{ID: 3, UserID: "u1", ModelID: "gpt-3.5-turbo", TokensPrompt: 300, TokensCompletion: 150, Cost: 3.0, Timestamp: ts(12)},
	}
}

func TestSummarizeNoFilters(t *testing.T) {
	summary := Summarize(sampleEvents(), nil, nil, "")

	if summary.TotalRequests != 3 {
		t.Fatalf("total requests: got %d", summary.TotalRequests)
	}
	if math.Abs(summary.TotalCost-6.0) > 1e-9 {
		t.Fatalf("total cost: got %v", summary.TotalCost)
	}
	if summary.TotalTokens != 900 {
		t.Fatalf("total tokens: got %d", summary.TotalTokens)
	}
	if len(summary.Records) != 3 {
		t.Fatalf("records: got %d", len(summary.Records))
	}
}

func TestSummarizeTimeWindowExcludesEarlyEvents(t *testing.T) {
	start := ts(9)
	summary := Summarize(sampleEvents(), &start, nil, "")

	if summary.TotalRequests != 2 {
		t.Fatalf("total requests: got %d", summary.TotalRequests)
	}
	if math.Abs(summary.TotalCost-5.0) > 1e-9 {
		t.Fatalf("total cost: got %v", summary.TotalCost)
	}
}

func TestSummarizeEndBoundExcludesLateEvents(t *testing.T) {
	end := ts(11)
	summary := Summarize(sampleEvents(), nil, &end, "")

	if summary.TotalRequests != 2 {
		t.Fatalf("total requests: got %d", summary.TotalRequests)
	}
	if summary.TotalTokens != 450 {
		t.Fatalf("total tokens: got %d", summary.TotalTokens)
	}
}

func TestSummarizeModelFilter(t *testing.T) {
	summary := Summarize(sampleEvents(), nil, nil, "gpt-3.5-turbo")

	if summary.TotalRequests != 1 {
		t.Fatalf("total requests: got %d", summary.TotalRequests)
	}
	if math.Abs(summary.TotalCost-3.0) > 1e-9 {
		t.Fatalf("total cost: got %v", summary.TotalCost)
	}
}

func TestSummarizeNoMatchesIsZeroNotError(t *testing.T) {
	summary := Summarize(sampleEvents(), nil, nil, "claude-3")

	if summary.TotalRequests != 0 || summary.TotalTokens != 0 || summary.TotalCost != 0 {
		t.Fatalf("expected all-zero summary, got %+v", summary)
	}
	if summary.Records == nil || len(summary.Records) != 0 {
		t.Fatalf("expected empty record list, got %v", summary.Records)
	}
}

func TestSummarizeEmptyInput(t *testing.T) {
	summary := Summarize(nil, nil, nil, "")
	if summary.TotalRequests != 0 || len(summary.Records) != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
}
