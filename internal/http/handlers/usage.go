package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tokenmeter/tokenmeter/internal/ledger"
	"github.com/tokenmeter/tokenmeter/internal/pricing"
	"github.com/tokenmeter/tokenmeter/internal/report"
	"github.com/tokenmeter/tokenmeter/internal/usage"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// dateLayout is the calendar date format accepted by report endpoints.
const dateLayout = "2006-01-02"

// UsageHandler handles usage recording and report endpoints.
type UsageHandler struct {
	recorder *usage.Recorder
	ledger   *ledger.Ledger
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(recorder *usage.Recorder, l *ledger.Ledger) *UsageHandler {
	return &UsageHandler{recorder: recorder, ledger: l}
}

// recordRequest defines the request body for usage recording.
type recordRequest struct {
	UserID         string  `json:"user_id"`
	ModelID        string  `json:"model_id"`
	InputTokens    int64   `json:"input_tokens"`
	OutputTokens   int64   `json:"output_tokens"`
	ConversationID *string `json:"conversation_id"`
}

// Record resolves the cost of an invocation and appends it to the ledger.
func (h *UsageHandler) Record(c *gin.Context) {
	var body recordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	row, errRecord := h.recorder.Record(c.Request.Context(), body.UserID, body.ModelID, body.InputTokens, body.OutputTokens, body.ConversationID)
	if errRecord != nil {
		if errors.Is(errRecord, usage.ErrInvalidInput) || errors.Is(errRecord, pricing.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errRecord.Error()})
			return
		}
		log.WithError(errRecord).Error("record usage failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record usage failed", "success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "usage": row})
}

// parseReportWindow parses the optional start_date/end_date query params.
func parseReportWindow(c *gin.Context) (start, end *time.Time, ok bool) {
	if raw := strings.TrimSpace(c.Query("start_date")); raw != "" {
		t, errParse := time.Parse(dateLayout, raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date, expected YYYY-MM-DD"})
			return nil, nil, false
		}
		start = &t
	}
	if raw := strings.TrimSpace(c.Query("end_date")); raw != "" {
		t, errParse := time.Parse(dateLayout, raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date, expected YYYY-MM-DD"})
			return nil, nil, false
		}
		end = &t
	}
	if start != nil && end != nil && end.Before(*start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date is before start_date"})
		return nil, nil, false
	}
	return start, end, true
}

// Report returns a usage summary filtered by user, model, and date window.
//
// Without a user_id the report is empty: cross-user aggregation is not
// implemented and the boundary is kept explicit rather than guessed at.
func (h *UsageHandler) Report(c *gin.Context) {
	start, end, ok := parseReportWindow(c)
	if !ok {
		return
	}
	modelFilter := strings.TrimSpace(c.Query("model"))

	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		c.JSON(http.StatusOK, report.Summarize(nil, nil, nil, ""))
		return
	}

	events, errQuery := h.ledger.QueryByUser(c.Request.Context(), userID)
	if errQuery != nil {
		log.WithError(errQuery).Error("query usage failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query usage failed"})
		return
	}

	c.JSON(http.StatusOK, report.Summarize(events, start, end, modelFilter))
}

// UserReport returns the usage summary for one user.
//
// A user with no ledger rows at all yields 404; a user whose rows are all
// filtered out yields an all-zero summary.
func (h *UsageHandler) UserReport(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	start, end, ok := parseReportWindow(c)
	if !ok {
		return
	}
	modelFilter := strings.TrimSpace(c.Query("model"))

	events, errQuery := h.ledger.QueryByUser(c.Request.Context(), userID)
	if errQuery != nil {
		log.WithError(errQuery).Error("query usage failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query usage failed"})
		return
	}
	if len(events) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found or no usage data"})
		return
	}

	c.JSON(http.StatusOK, report.Summarize(events, start, end, modelFilter))
}

// ConversationUsage returns the raw usage events for one conversation.
func (h *UsageHandler) ConversationUsage(c *gin.Context) {
	conversationID := strings.TrimSpace(c.Param("conversation_id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation_id is required"})
		return
	}

	events, errQuery := h.ledger.QueryByConversation(c.Request.Context(), conversationID)
	if errQuery != nil {
		log.WithError(errQuery).Error("query conversation usage failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query usage failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": events})
}
