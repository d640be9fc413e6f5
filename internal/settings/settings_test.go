package settings

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/tokenmeter/tokenmeter/internal/models"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestStoreAndRefreshRoundTrip(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()

	source := PricingSource{BaseURL: "https://example.com/v1", APIKey: "sk-abc", TimeoutSeconds: 5}
	if errStore := Store(ctx, conn, KeyPricingSource, source); errStore != nil {
		t.Fatalf("store: %v", errStore)
	}

	got, ok := PricingSourceOverride()
	if !ok {
		t.Fatal("expected pricing source override")
	}
	if got.BaseURL != source.BaseURL || got.APIKey != source.APIKey || got.TimeoutSeconds != 5 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestStoreReplacesExistingKey(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()

	if errStore := Store(ctx, conn, KeyPricingSource, PricingSource{APIKey: "old"}); errStore != nil {
		t.Fatalf("first store: %v", errStore)
	}
	if errStore := Store(ctx, conn, KeyPricingSource, PricingSource{APIKey: "new"}); errStore != nil {
		t.Fatalf("second store: %v", errStore)
	}

	var count int64
	if errCount := conn.Model(&models.Setting{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected single settings row, got %d", count)
	}

	got, ok := PricingSourceOverride()
	if !ok || got.APIKey != "new" {
		t.Fatalf("override not replaced: %+v ok=%v", got, ok)
	}
}
