package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/tokenmeter/tokenmeter/internal/clock"
	"github.com/tokenmeter/tokenmeter/internal/models"
	"gorm.io/gorm"
)

func newTestLedger(t *testing.T, clk clock.Clock) *Ledger {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Usage{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return New(conn, clk)
}

func strPtr(s string) *string { return &s }

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	l := newTestLedger(t, clock.Fixed{At: at})

	row, errAppend := l.Append(context.Background(), "u1", "gpt-4", 120, 80, 0.012, nil)
	if errAppend != nil {
		t.Fatalf("append: %v", errAppend)
	}
	if row.ID == 0 {
		t.Fatal("append should assign an id")
	}
	if !row.Timestamp.Equal(at) {
		t.Fatalf("timestamp: got %v, want %v", row.Timestamp, at)
	}
}

func TestAppendedEventsAreRetrievableUnchanged(t *testing.T) {
	l := newTestLedger(t, clock.Fixed{At: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)})
	ctx := context.Background()

	stored, errAppend := l.Append(ctx, "u1", "gpt-4", 120, 80, 0.012, strPtr("c1"))
	if errAppend != nil {
		t.Fatalf("append: %v", errAppend)
	}

	byUser, errUser := l.QueryByUser(ctx, "u1")
	if errUser != nil {
		t.Fatalf("query by user: %v", errUser)
	}
	if len(byUser) != 1 {
		t.Fatalf("expected 1 event, got %d", len(byUser))
	}
	got := byUser[0]
	if got.ID != stored.ID || got.UserID != "u1" || got.ModelID != "gpt-4" ||
		got.TokensPrompt != 120 || got.TokensCompletion != 80 || got.Cost != 0.012 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if !got.Timestamp.Equal(stored.Timestamp) {
		t.Fatalf("timestamp round-trip: got %v, want %v", got.Timestamp, stored.Timestamp)
	}
	if got.ConversationID == nil || *got.ConversationID != "c1" {
		t.Fatalf("conversation id round-trip: %v", got.ConversationID)
	}

	byConv, errConv := l.QueryByConversation(ctx, "c1")
	if errConv != nil {
		t.Fatalf("query by conversation: %v", errConv)
	}
	if len(byConv) != 1 || byConv[0].ID != stored.ID {
		t.Fatalf("conversation query mismatch: %+v", byConv)
	}
}

func TestQueryByUserReturnsInsertionOrder(t *testing.T) {
	l := newTestLedger(t, clock.System{})
	ctx := context.Background()

	for _, model := range []string{"a", "b", "c"} {
		if _, errAppend := l.Append(ctx, "u1", model, 1, 1, 0, nil); errAppend != nil {
			t.Fatalf("append %s: %v", model, errAppend)
		}
	}
	if _, errAppend := l.Append(ctx, "u2", "d", 1, 1, 0, nil); errAppend != nil {
		t.Fatalf("append other user: %v", errAppend)
	}

	rows, errFind := l.QueryByUser(ctx, "u1")
	if errFind != nil {
		t.Fatalf("query: %v", errFind)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 events for u1, got %d", len(rows))
	}
	for i, want := range []string{"a", "b", "c"} {
		if rows[i].ModelID != want {
			t.Fatalf("order mismatch at %d: got %s, want %s", i, rows[i].ModelID, want)
		}
	}
}
