package routes

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tile-ops-server/database"
	"tile-ops-server/middleware"
	"tile-ops-server/models"
	"tile-ops-server/services"
)

// SetupQuoteRoutes registers quote and invoice endpoints.
func SetupQuoteRoutes(router *gin.RouterGroup) {
	quotes := router.Group("/quotes")
	quotes.Use(middleware.AuthMiddleware())
	{
		quotes.POST("", createQuote)
		quotes.PATCH("/:id/status", updateQuoteStatus)
	}

	invoices := router.Group("/invoices")
	invoices.Use(middleware.AuthMiddleware())
	{
		invoices.POST("", createInvoice)
		invoices.POST("/:id/pay", markInvoicePaid)
	}
}

type createQuoteRequest struct {
	Reference    string  `json:"reference" binding:"required"`
	CustomerName string  `json:"customer_name" binding:"required"`
	Total        float64 `json:"total"`
}

// POST /api/v1/quotes
func createQuote(c *gin.Context) {
	var req createQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Reference and customer name are required"})
		return
	}

	quote := models.Quote{
		Reference:    req.Reference,
		CustomerName: req.CustomerName,
		Status:       models.QuoteStatusDraft,
		Total:        req.Total,
	}
	if err := database.DB.Create(&quote).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save quote"})
		return
	}
	c.JSON(http.StatusCreated, quote)
}

// PATCH /api/v1/quotes/:id/status
func updateQuoteStatus(c *gin.Context) {
	quoteID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quote ID"})
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Status is required"})
		return
	}

	status := models.QuoteStatus(req.Status)
	if !status.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quote status"})
		return
	}

	var quote models.Quote
	if err := database.DB.First(&quote, quoteID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Quote not found"})
		return
	}

	previous := quote.Status
	quote.Status = status
	if err := database.DB.Save(&quote).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update quote"})
		return
	}

	if previous != status {
		// An accepted quote is money on the table; flag it high.
		priority := models.PriorityNormal
		if status == models.QuoteStatusAccepted {
			priority = models.PriorityHigh
		}
		notificationService.CreateForAllStaff(
			models.TypeQuoteStatus,
			"Quote status updated",
			fmt.Sprintf("Quote %s is now %s", quote.Reference, status),
			priority,
			&services.RelatedRef{Kind: models.KindQuote, ID: quote.ID},
			map[string]interface{}{"url": "/admin/quotes"},
		)
	}

	c.JSON(http.StatusOK, quote)
}

type createInvoiceRequest struct {
	Reference    string  `json:"reference" binding:"required"`
	CustomerName string  `json:"customer_name" binding:"required"`
	Total        float64 `json:"total"`
}

// POST /api/v1/invoices
func createInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Reference and customer name are required"})
		return
	}

	invoice := models.Invoice{
		Reference:    req.Reference,
		CustomerName: req.CustomerName,
		Status:       models.InvoiceStatusDraft,
		Total:        req.Total,
	}
	if err := database.DB.Create(&invoice).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save invoice"})
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

// POST /api/v1/invoices/:id/pay
func markInvoicePaid(c *gin.Context) {
	invoiceID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice ID"})
		return
	}

	var invoice models.Invoice
	if err := database.DB.First(&invoice, invoiceID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		return
	}
	if invoice.Status == models.InvoiceStatusPaid {
		c.JSON(http.StatusOK, invoice)
		return
	}

	now := time.Now()
	invoice.Status = models.InvoiceStatusPaid
	invoice.PaidAt = &now
	if err := database.DB.Save(&invoice).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update invoice"})
		return
	}

	notificationService.CreateForAllStaff(
		models.TypeInvoicePaid,
		"Invoice paid",
		fmt.Sprintf("Invoice %s (%.2f) was paid by %s", invoice.Reference, invoice.Total, invoice.CustomerName),
		models.PriorityHigh,
		&services.RelatedRef{Kind: models.KindInvoice, ID: invoice.ID},
		map[string]interface{}{"url": "/admin/invoices"},
	)

	c.JSON(http.StatusOK, invoice)
}
