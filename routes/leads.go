package routes

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tile-ops-server/database"
	"tile-ops-server/middleware"
	"tile-ops-server/models"
	"tile-ops-server/services"
)

// SetupLeadRoutes registers lead endpoints. Creation is public (the website
// contact form posts here); everything else requires auth.
func SetupLeadRoutes(router *gin.RouterGroup) {
	leads := router.Group("/leads")
	{
		leads.POST("", createLead)

		authed := leads.Group("")
		authed.Use(middleware.AuthMiddleware())
		{
			authed.GET("", listLeads)
			authed.PATCH("/:id/status", updateLeadStatus)
		}
	}
}

type createLeadRequest struct {
	Name    string            `json:"name" binding:"required"`
	Email   string            `json:"email"`
	Phone   string            `json:"phone"`
	Message string            `json:"message"`
	Source  models.LeadSource `json:"source"`
}

// POST /api/v1/leads
func createLead(c *gin.Context) {
	var req createLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
		return
	}

	source := req.Source
	if source == "" {
		source = models.SourceWebsite
	}

	lead := models.Lead{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Message: req.Message,
		Source:  source,
		Status:  models.LeadStatusNew,
	}
	if err := database.DB.Create(&lead).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save lead"})
		return
	}

	// Every staff member gets pinged about a fresh lead.
	_, err := notificationService.CreateForAllStaff(
		models.TypeNewLead,
		"New lead received",
		fmt.Sprintf("%s submitted a new inquiry", lead.Name),
		models.PriorityHigh,
		&services.RelatedRef{Kind: models.KindLead, ID: lead.ID},
		map[string]interface{}{
			"url":    "/admin/leads",
			"source": string(lead.Source),
		},
	)
	if err != nil {
		// Lead is saved; notification failure must not fail the submit.
		c.JSON(http.StatusCreated, lead)
		return
	}

	c.JSON(http.StatusCreated, lead)
}

// GET /api/v1/leads?status=new
func listLeads(c *gin.Context) {
	query := database.DB.Order("created_at DESC")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var leads []models.Lead
	if err := query.Limit(200).Find(&leads).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch leads"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": leads})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// PATCH /api/v1/leads/:id/status
func updateLeadStatus(c *gin.Context) {
	leadID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead ID"})
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Status is required"})
		return
	}

	status := models.LeadStatus(req.Status)
	if !status.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead status"})
		return
	}

	var lead models.Lead
	if err := database.DB.First(&lead, leadID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Lead not found"})
		return
	}

	previous := lead.Status
	lead.Status = status
	if err := database.DB.Save(&lead).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update lead"})
		return
	}

	if previous != status {
		notificationService.CreateForAllStaff(
			models.TypeLeadStatus,
			"Lead status updated",
			fmt.Sprintf("Lead %s moved from %s to %s", lead.Name, previous, status),
			models.PriorityNormal,
			&services.RelatedRef{Kind: models.KindLead, ID: lead.ID},
			map[string]interface{}{"url": "/admin/leads"},
		)
	}

	c.JSON(http.StatusOK, lead)
}
