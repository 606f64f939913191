package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medication-adherence-monitor/internal/authz"
	domainDose "medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/middleware"
	"medication-adherence-monitor/internal/usecase/dose"
	"medication-adherence-monitor/pkg/utils"
)

// DoseHandler serves the patient's day and dashboard dose actions.
type DoseHandler struct {
	service *dose.Service
}

func NewDoseHandler(service *dose.Service) *DoseHandler {
	return &DoseHandler{service: service}
}

func (h *DoseHandler) RegisterRoutes(router *gin.RouterGroup, az *authz.Authorizer) {
	router.GET("/schedule", middleware.Authorize(az, authz.ResourceSchedule, authz.ActionRead), h.Schedule)

	doses := router.Group("/doses")
	doses.Use(middleware.Authorize(az, authz.ResourceDoses, authz.ActionWrite))
	{
		doses.PATCH("/:doseId/mark-taken", h.mark(domainDose.StatusTaken, "Dose marked as taken"))
		doses.PATCH("/:doseId/mark-missed", h.mark(domainDose.StatusMissed, "Dose marked as missed"))
	}
}

func (h *DoseHandler) Schedule(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	items, err := h.service.Today(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Schedule retrieved successfully", items)
}

func (h *DoseHandler) mark(status domainDose.Status, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}

		log, err := h.service.MarkForPatient(c.Request.Context(), userID, c.Param("doseId"), status)
		if err != nil {
			respondWithError(c, err)
			return
		}

		utils.SuccessResponse(c, http.StatusOK, message, dose.ToDoseResponse(log))
	}
}
