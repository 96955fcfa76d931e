package handler

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/yourusername/otp-api/internal/domain/repository"
)

// AuditHandler обрабатывает админские запросы к журналу аудита
type AuditHandler struct {
	auditRepo repository.AuditEventRepository
}

// NewAuditHandler создает новый обработчик журнала аудита
func NewAuditHandler(auditRepo repository.AuditEventRepository) *AuditHandler {
	return &AuditHandler{auditRepo: auditRepo}
}

func parseAuditFilter(c *gin.Context) repository.AuditEventFilter {
	filter := repository.AuditEventFilter{
		Purpose: c.Query("purpose"),
		Type:    c.Query("type"),
	}
	if v, err := strconv.ParseUint(c.Query("user_id"), 10, 32); err == nil {
		filter.UserID = uint(v)
	}
	if v, err := time.Parse(time.RFC3339, c.Query("since")); err == nil {
		filter.Since = v
	}
	if v, err := time.Parse(time.RFC3339, c.Query("until")); err == nil {
		filter.Until = v
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		filter.Offset = v
	}
	return filter
}

// List обрабатывает GET /api/admin/audit
func (h *AuditHandler) List(c *gin.Context) {
	filter := parseAuditFilter(c)

	events, total, err := h.auditRepo.List(filter)
	if err != nil {
		log.Printf("[AuditHandler] failed to list events: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load audit events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  total,
	})
}

// Export обрабатывает GET /api/admin/audit/export — выгрузка журнала в xlsx
func (h *AuditHandler) Export(c *gin.Context) {
	filter := parseAuditFilter(c)
	if filter.Limit <= 0 {
		filter.Limit = 1000
	}

	events, _, err := h.auditRepo.List(filter)
	if err != nil {
		log.Printf("[AuditHandler] failed to load events for export: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load audit events"})
		return
	}

	filename := fmt.Sprintf("otp-audit-%s", time.Now().Format("2006-01-02"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Audit"
	f.SetSheetName("Sheet1", sheetName)

	// StreamWriter для эффективной записи больших выгрузок
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		log.Printf("[AuditHandler] failed to create stream writer: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
		return
	}

	headers := []interface{}{"Event ID", "Type", "User ID", "OTP ID", "Purpose", "Channel", "Target", "Client IP", "Detail", "Created At"}
	if err := sw.SetRow("A1", headers); err != nil {
		log.Printf("[AuditHandler] failed to write headers: %v", err)
	}

	for i, e := range events {
		cell := fmt.Sprintf("A%d", i+2)
		row := []interface{}{
			e.EventID,
			e.Type,
			e.UserID,
			e.OtpID,
			e.Purpose,
			e.Channel,
			e.MaskedTarget,
			e.ClientIP,
			e.Detail,
			e.CreatedAt.Format(time.RFC3339),
		}
		if err := sw.SetRow(cell, row); err != nil {
			log.Printf("[AuditHandler] failed to write row %d: %v", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		log.Printf("[AuditHandler] failed to flush stream writer: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to finalize Excel file"})
		return
	}

	if err := f.Write(c.Writer); err != nil {
		log.Printf("[AuditHandler] failed to write xlsx response: %v", err)
	}
}
