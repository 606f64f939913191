package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medication-adherence-monitor/internal/authz"
	"medication-adherence-monitor/internal/middleware"
	"medication-adherence-monitor/internal/usecase/overview"
	"medication-adherence-monitor/pkg/utils"
)

// OverviewHandler serves the role dashboards.
type OverviewHandler struct {
	service *overview.Service
}

func NewOverviewHandler(service *overview.Service) *OverviewHandler {
	return &OverviewHandler{service: service}
}

func (h *OverviewHandler) RegisterRoutes(router *gin.RouterGroup, az *authz.Authorizer) {
	router.GET("/caretaker/overview", middleware.Authorize(az, authz.ResourceCaretakerOverview, authz.ActionRead), h.Caretaker)
	router.GET("/doctor/overview", middleware.Authorize(az, authz.ResourceDoctorOverview, authz.ActionRead), h.Doctor)
	router.GET("/admin/overview", middleware.Authorize(az, authz.ResourceAdminOverview, authz.ActionRead), h.Admin)
}

func (h *OverviewHandler) Caretaker(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	view, err := h.service.Caretaker(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Caretaker overview retrieved successfully", view)
}

func (h *OverviewHandler) Doctor(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	view, err := h.service.Doctor(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Doctor overview retrieved successfully", view)
}

func (h *OverviewHandler) Admin(c *gin.Context) {
	view, err := h.service.Admin(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Admin overview retrieved successfully", view)
}
