package handler

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"invoice-reconciliation-backend/internal/models"
	service "invoice-reconciliation-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ReconciliationHandler struct {
	service *service.Service
	logger  *slog.Logger
}

func NewReconciliationHandler(s *service.Service, logger *slog.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{service: s, logger: logger}
}

// StartRun kicks off a matching run over everything uploaded so far and
// returns immediately; progress is polled separately.
func (h *ReconciliationHandler) StartRun(c *gin.Context) {
	run := h.service.CreateRun()

	go func() {
		if err := h.service.Run(context.Background(), run.ID); err != nil {
			h.logger.Error("reconciliation run failed", "run_id", run.ID, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": run.ID.String(),
		"status": "processing",
	})
}

func (h *ReconciliationHandler) GetRunProgress(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("runId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return
	}

	progress, err := h.service.GetProgress(runID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"processed_count": progress.ProcessedCount,
		"total":           progress.Total,
		"status":          progress.Status,
	})
}

func (h *ReconciliationHandler) ListResults(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("runId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return
	}

	category := c.Query("category")
	cursor := c.Query("cursor")
	limit := 50

	items, nextCursor, hasMore, err := h.service.ListResults(runID, category, cursor, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stats, _ := h.service.GetStats(runID)

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
		"stats":       stats,
	})
}

// ListDetails returns the full audit trail of candidates evaluated for one
// invoice in a run.
func (h *ReconciliationHandler) ListDetails(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("runId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return
	}

	invoiceDoc := c.Param("invoiceDoc")
	if invoiceDoc == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invoice document required"})
		return
	}

	details, err := h.service.ListDetails(runID, invoiceDoc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": details})
}

// DatasetStats reports how many invoices and movements are loaded.
func (h *ReconciliationHandler) DatasetStats(c *gin.Context) {
	invoices, err := h.service.InvoiceRepo().Count()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	movements, err := h.service.MovementRepo().Count()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invoices":  invoices,
		"movements": movements,
	})
}

// UploadInvoices ingests an invoice CSV. Expected columns:
// external_ref, series, number, customer_name, tax_id, issue_date, due_date,
// window_start, window_end, currency, subtotal, tax_amount, total,
// withholding, net_expected. Bad rows are skipped and logged, never fatal.
func (h *ReconciliationHandler) UploadInvoices(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	reader := h.newCSVReader(file)

	// Skip header
	if _, err := reader.Read(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read CSV header"})
		return
	}

	inserted := 0
	rowNum := 0

	for {
		record, err := reader.Read()
		rowNum++
		if err == io.EOF {
			break
		}
		if err != nil {
			h.logger.Warn("skipping malformed invoice row", "row", rowNum, "error", err)
			continue
		}
		if len(record) < 15 {
			h.logger.Warn("skipping invoice row, insufficient columns", "row", rowNum, "columns", len(record))
			continue
		}

		inv := models.Invoice{
			ID:           uuid.New(),
			ExternalRef:  strings.TrimSpace(record[0]),
			Series:       strings.TrimSpace(record[1]),
			Number:       strings.TrimSpace(record[2]),
			CustomerName: strings.TrimSpace(record[3]),
			TaxID:        strings.TrimSpace(record[4]),
			IssueDate:    parseOptDate(record[5]),
			DueDate:      parseOptDate(record[6]),
			WindowStart:  parseOptDate(record[7]),
			WindowEnd:    parseOptDate(record[8]),
			Currency:     strings.TrimSpace(record[9]),
			Subtotal:     parseOptFloat(record[10]),
			TaxAmount:    parseOptFloat(record[11]),
			Total:        parseOptFloat(record[12]),
			Withholding:  parseOptFloat(record[13]),
			NetExpected:  parseOptFloat(record[14]),
			CreatedAt:    time.Now(),
		}

		if inv.CustomerName == "" {
			h.logger.Warn("skipping invoice row, customer name empty", "row", rowNum)
			continue
		}
		if !inv.HasAmount() {
			h.logger.Warn("invoice has no usable amount, it cannot be matched",
				"row", rowNum, "invoice", inv.DocumentID())
		}

		if err := h.service.InvoiceRepo().Create(&inv); err != nil {
			h.logger.Warn("failed to insert invoice row", "row", rowNum, "error", err)
			continue
		}
		inserted++
	}

	c.JSON(http.StatusOK, gin.H{
		"file":           header.Filename,
		"invoices_added": inserted,
	})
}

// UploadMovements ingests a bank-movement CSV. Expected columns:
// bank_code, date, description, reference, currency, amount, settled_amount.
// The settled amount defaults to the raw amount when absent.
func (h *ReconciliationHandler) UploadMovements(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	reader := h.newCSVReader(file)

	if _, err := reader.Read(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read CSV header"})
		return
	}

	rowIndex, err := h.service.MovementRepo().NextRowIndex()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	inserted := 0
	rowNum := 0

	for {
		record, err := reader.Read()
		rowNum++
		if err == io.EOF {
			break
		}
		if err != nil {
			h.logger.Warn("skipping malformed movement row", "row", rowNum, "error", err)
			continue
		}
		if len(record) < 6 {
			h.logger.Warn("skipping movement row, insufficient columns", "row", rowNum, "columns", len(record))
			continue
		}

		amount := parseOptFloat(record[5])
		if amount == nil {
			h.logger.Warn("skipping movement row, invalid amount", "row", rowNum, "amount", record[5])
			continue
		}

		mov := models.BankMovement{
			ID:              uuid.New(),
			RowIndex:        rowIndex,
			BankCode:        strings.TrimSpace(record[0]),
			TransactionDate: parseOptDate(record[1]),
			Description:     strings.TrimSpace(record[2]),
			Reference:       strings.TrimSpace(record[3]),
			Currency:        strings.TrimSpace(record[4]),
			Amount:          *amount,
			CreatedAt:       time.Now(),
		}
		if len(record) > 6 {
			mov.SettledAmount = parseOptFloat(record[6])
		}

		if err := h.service.MovementRepo().Create(&mov); err != nil {
			h.logger.Warn("failed to insert movement row", "row", rowNum, "error", err)
			continue
		}
		rowIndex++
		inserted++
	}

	c.JSON(http.StatusOK, gin.H{
		"file":            header.Filename,
		"movements_added": inserted,
	})
}

// newCSVReader sniffs the delimiter from the first KB of the file.
func (h *ReconciliationHandler) newCSVReader(file io.ReadSeeker) *csv.Reader {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	sample := make([]byte, 1024)
	n, _ := file.Read(sample)
	file.Seek(0, io.SeekStart)

	if strings.Contains(string(sample[:n]), ";") {
		reader.Comma = ';'
	} else if strings.Contains(string(sample[:n]), "\t") {
		reader.Comma = '\t'
	}
	return reader
}

var dateLayouts = []string{"2006-01-02", "02-01-2006", "02/01/2006"}

func parseOptDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return &d
		}
	}
	return nil
}

func parseOptFloat(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
