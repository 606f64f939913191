package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medication-adherence-monitor/internal/authz"
	"medication-adherence-monitor/internal/middleware"
	"medication-adherence-monitor/internal/usecase/report"
	"medication-adherence-monitor/pkg/utils"
)

type ReportHandler struct {
	service *report.Service
}

func NewReportHandler(service *report.Service) *ReportHandler {
	return &ReportHandler{service: service}
}

func (h *ReportHandler) RegisterRoutes(router *gin.RouterGroup, az *authz.Authorizer) {
	reports := router.Group("")
	reports.Use(middleware.Authorize(az, authz.ResourceAdherence, authz.ActionRead))
	{
		reports.GET("/adherence", h.Adherence)
		reports.GET("/summary", h.Summary)
		reports.GET("/history", h.History)
	}
}

func (h *ReportHandler) Adherence(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	rate, err := h.service.Adherence(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Adherence retrieved successfully", rate)
}

func (h *ReportHandler) Summary(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Summary retrieved successfully", summary)
}

func (h *ReportHandler) History(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	history, err := h.service.History(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "History retrieved successfully", history)
}
