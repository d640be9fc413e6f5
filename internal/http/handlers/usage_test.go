package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/tokenmeter/tokenmeter/internal/catalog"
	"github.com/tokenmeter/tokenmeter/internal/clock"
	"github.com/tokenmeter/tokenmeter/internal/ledger"
	"github.com/tokenmeter/tokenmeter/internal/models"
	"github.com/tokenmeter/tokenmeter/internal/pricing"
	"github.com/tokenmeter/tokenmeter/internal/usage"
	"gorm.io/gorm"
)

func setupUsageTest(t *testing.T, clk clock.Clock) (*gin.Engine, *catalog.Store, *ledger.Ledger, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:usage_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.ModelPrice{}, &models.Usage{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}

	cat := catalog.NewStore(conn, clk, nil, 0)
	l := ledger.New(conn, clk)
	recorder := usage.NewRecorder(pricing.NewResolver(cat), l)
	handler := NewUsageHandler(recorder, l)

	engine := gin.New()
	engine.POST("/usage", handler.Record)
	engine.GET("/reports/usage", handler.Report)
	engine.GET("/reports/users/:user_id", handler.UserReport)
	engine.GET("/reports/conversations/:conversation_id", handler.ConversationUsage)
	return engine, cat, l, conn
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)
	return recorder
}

func TestRecordUsageComputesCostFromCatalog(t *testing.T) {
	engine, cat, _, _ := setupUsageTest(t, clock.System{})

	if _, errUpsert := cat.Upsert(t.Context(), "m1", nil, floatPtrUsage(2.0), "manual"); errUpsert != nil {
		t.Fatalf("upsert: %v", errUpsert)
	}

	resp := doJSON(t, engine, http.MethodPost, "/usage", map[string]any{
		"user_id":       "u1",
		"model_id":      "m1",
		"input_tokens":  300,
		"output_tokens": 200,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		Success bool         `json:"success"`
		Usage   models.Usage `json:"usage"`
	}
	if errDecode := json.Unmarshal(resp.Body.Bytes(), &payload); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if !payload.Success {
		t.Fatal("expected success")
	}
	if payload.Usage.Cost != 1.0 {
		t.Fatalf("cost: got %v, want 1.0", payload.Usage.Cost)
	}
}

func TestRecordUsageRejectsNegativeTokens(t *testing.T) {
	engine, _, _, _ := setupUsageTest(t, clock.System{})

	resp := doJSON(t, engine, http.MethodPost, "/usage", map[string]any{
		"user_id":      "u1",
		"model_id":     "m1",
		"input_tokens": -5,
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.Code)
	}
}

func TestReportWithoutUserIDIsEmpty(t *testing.T) {
	engine, _, l, _ := setupUsageTest(t, clock.System{})

	if _, errAppend := l.Append(t.Context(), "u1", "m1", 10, 10, 1.0, nil); errAppend != nil {
		t.Fatalf("append: %v", errAppend)
	}

	resp := doJSON(t, engine, http.MethodGet, "/reports/usage", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status: got %d", resp.Code)
	}

	var summary struct {
		TotalRequests int64 `json:"total_requests"`
	}
	if errDecode := json.Unmarshal(resp.Body.Bytes(), &summary); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if summary.TotalRequests != 0 {
		t.Fatalf("cross-user report should be empty, got %d requests", summary.TotalRequests)
	}
}

func TestReportFiltersByDateWindow(t *testing.T) {
	early := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	late := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)

	engine, _, l, conn := setupUsageTest(t, clock.Fixed{At: early})
	if _, errAppend := l.Append(t.Context(), "u1", "m1", 100, 0, 1.0, nil); errAppend != nil {
		t.Fatalf("append early: %v", errAppend)
	}

	lateLedger := ledger.New(conn, clock.Fixed{At: late})
	if _, errAppend := lateLedger.Append(t.Context(), "u1", "m1", 200, 0, 2.0, nil); errAppend != nil {
		t.Fatalf("append late: %v", errAppend)
	}

	resp := doJSON(t, engine, http.MethodGet, "/reports/usage?user_id=u1&start_date=2025-03-01&end_date=2025-03-02", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status: got %d", resp.Code)
	}
	var summary struct {
		TotalRequests int64   `json:"total_requests"`
		TotalCost     float64 `json:"total_cost"`
	}
	if errDecode := json.Unmarshal(resp.Body.Bytes(), &summary); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if summary.TotalRequests != 1 {
		t.Fatalf("expected only the early event inside window, got %d", summary.TotalRequests)
	}
	if summary.TotalCost != 1.0 {
		t.Fatalf("window cost: got %v, want 1.0", summary.TotalCost)
	}
}

func TestReportRejectsMalformedDates(t *testing.T) {
	engine, _, _, _ := setupUsageTest(t, clock.System{})

	resp := doJSON(t, engine, http.MethodGet, "/reports/usage?user_id=u1&start_date=03-01-2025", nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.Code)
	}

	resp = doJSON(t, engine, http.MethodGet, "/reports/usage?user_id=u1&start_date=2025-03-05&end_date=2025-03-01", nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("inverted window: got %d, want 400", resp.Code)
	}
}

func TestUserReportNotFoundVersusZeroSummary(t *testing.T) {
	engine, _, l, _ := setupUsageTest(t, clock.Fixed{At: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)})

	resp := doJSON(t, engine, http.MethodGet, "/reports/users/ghost", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("unknown user: got %d, want 404", resp.Code)
	}

	if _, errAppend := l.Append(t.Context(), "u1", "m1", 10, 10, 1.0, nil); errAppend != nil {
		t.Fatalf("append: %v", errAppend)
	}

	resp = doJSON(t, engine, http.MethodGet, "/reports/users/u1?model=claude-3", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("existing user with zero matches: got %d, want 200", resp.Code)
	}
	var summary struct {
		TotalRequests int64 `json:"total_requests"`
	}
	if errDecode := json.Unmarshal(resp.Body.Bytes(), &summary); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if summary.TotalRequests != 0 {
		t.Fatalf("expected zero summary, got %d", summary.TotalRequests)
	}
}

func TestConversationUsageRoundTrip(t *testing.T) {
	engine, _, l, _ := setupUsageTest(t, clock.System{})

	conv := "c1"
	if _, errAppend := l.Append(t.Context(), "u1", "m1", 10, 10, 0.5, &conv); errAppend != nil {
		t.Fatalf("append: %v", errAppend)
	}

	resp := doJSON(t, engine, http.MethodGet, "/reports/conversations/c1", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status: got %d", resp.Code)
	}
	var payload struct {
		Usage []models.Usage `json:"usage"`
	}
	if errDecode := json.Unmarshal(resp.Body.Bytes(), &payload); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if len(payload.Usage) != 1 || payload.Usage[0].ConversationID == nil || *payload.Usage[0].ConversationID != "c1" {
		t.Fatalf("conversation round-trip mismatch: %+v", payload.Usage)
	}
}

func floatPtrUsage(v float64) *float64 { return &v }
