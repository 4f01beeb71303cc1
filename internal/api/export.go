package api

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ExportInvoices streams cost-tracker entries as CSV.
// GET /api/v1/invoices/export.
func (h *Handler) ExportInvoices(c *gin.Context) {
	ctx := context.Background()
	invoices, err := h.invoices.ListInvoices(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}

	filename := fmt.Sprintf("invoices-%s.csv", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)

	writer := csv.NewWriter(c.Writer)
	record := []string{"id", "description", "amount", "status", "created_at", "due_date", "completed_at", "approved_at"}
	if err := writer.Write(record); err != nil {
		h.log.Error().Err(err).Msg("Failed to write CSV header")
		return
	}

	for _, invoice := range invoices {
		record = []string{
			fmt.Sprintf("%d", invoice.ID),
			invoice.Description,
			fmt.Sprintf("%d", invoice.PenaltyPoints),
			invoice.Status,
			invoice.CreatedAt.UTC().Format(time.RFC3339),
			formatDate(invoice.DueDate),
			formatDate(invoice.CompletedAt),
			formatDate(invoice.ApprovedAt),
		}
		if err := writer.Write(record); err != nil {
			h.log.Error().Err(err).Uint("task_id", invoice.ID).Msg("Failed to write CSV row")
			return
		}
	}
	writer.Flush()

	h.log.Info().Int("rows", len(invoices)).Msg("Exported invoices")
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
