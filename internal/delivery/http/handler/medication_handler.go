package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medication-adherence-monitor/internal/authz"
	"medication-adherence-monitor/internal/middleware"
	"medication-adherence-monitor/internal/usecase/medication"
	"medication-adherence-monitor/pkg/utils"
)

type MedicationHandler struct {
	service *medication.Service
}

func NewMedicationHandler(service *medication.Service) *MedicationHandler {
	return &MedicationHandler{service: service}
}

func (h *MedicationHandler) RegisterRoutes(router *gin.RouterGroup, az *authz.Authorizer) {
	read := middleware.Authorize(az, authz.ResourceMedicines, authz.ActionRead)
	write := middleware.Authorize(az, authz.ResourceMedicines, authz.ActionWrite)

	medicines := router.Group("/medicines")
	{
		medicines.GET("", read, h.List)
		medicines.POST("", write, h.Add)
		medicines.PATCH("/:id", write, h.Update)
		medicines.POST("/:id/refill", write, h.Refill)
	}

	// Older dashboards refill through /medications.
	router.PATCH("/medications/:id/refill", write, h.Refill)
}

func (h *MedicationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	medicines, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Medicines retrieved successfully", medicines)
}

func (h *MedicationHandler) Add(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req medication.AddMedicineRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.Add(c.Request.Context(), userID, &req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Medicine added successfully", resp)
}

func (h *MedicationHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	planID, ok := parseUUIDParam(c, "id", "medicine ID")
	if !ok {
		return
	}

	var req medication.UpdateMedicineRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.Update(c.Request.Context(), userID, planID, &req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Medicine updated successfully", resp)
}

func (h *MedicationHandler) Refill(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	planID, ok := parseUUIDParam(c, "id", "medicine ID")
	if !ok {
		return
	}

	var req medication.RefillRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.Refill(c.Request.Context(), userID, planID, &req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Medicine refilled successfully", resp)
}
