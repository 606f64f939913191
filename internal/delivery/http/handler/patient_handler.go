package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medication-adherence-monitor/internal/authz"
	"medication-adherence-monitor/internal/middleware"
	"medication-adherence-monitor/internal/usecase/patient"
	"medication-adherence-monitor/pkg/utils"
)

// PatientHandler covers the patient's profile, device onboarding and care
// team links.
type PatientHandler struct {
	service *patient.Service
}

func NewPatientHandler(service *patient.Service) *PatientHandler {
	return &PatientHandler{service: service}
}

func (h *PatientHandler) RegisterRoutes(router *gin.RouterGroup, az *authz.Authorizer) {
	profile := router.Group("/profile")
	{
		profile.GET("", middleware.Authorize(az, authz.ResourceProfile, authz.ActionRead), h.GetProfile)
		profile.PATCH("", middleware.Authorize(az, authz.ResourceProfile, authz.ActionWrite), h.UpdateProfile)
	}

	router.POST("/device", middleware.Authorize(az, authz.ResourceDevice, authz.ActionWrite), h.RegisterDevice)

	caretakers := router.Group("/caretakers")
	caretakers.Use(middleware.Authorize(az, authz.ResourceCaretakers, authz.ActionWrite))
	{
		caretakers.POST("", h.AddCaretaker)
		caretakers.PATCH("/:userId/approve", h.ApproveCaretaker)
	}

	router.POST("/doctors", middleware.Authorize(az, authz.ResourceDoctors, authz.ActionWrite), h.AddDoctor)
	router.POST("/caretaker/requests", middleware.Authorize(az, authz.ResourceCaretakerRequests, authz.ActionWrite), h.RequestAccess)
}

func (h *PatientHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Profile retrieved successfully", profile)
}

func (h *PatientHandler) UpdateProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req patient.UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	profile, err := h.service.UpdateProfile(c.Request.Context(), userID, &req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Profile updated successfully", profile)
}

func (h *PatientHandler) RegisterDevice(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req patient.RegisterDeviceRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.RegisterDevice(c.Request.Context(), userID, &req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Device registered successfully", resp)
}

func (h *PatientHandler) AddCaretaker(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req patient.LinkRequest
	if !bindJSON(c, &req) {
		return
	}

	contact, err := h.service.AddCaretaker(c.Request.Context(), userID, &req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Caretaker linked successfully", contact)
}

func (h *PatientHandler) ApproveCaretaker(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	caretakerID, ok := parseUUIDParam(c, "userId", "caretaker ID")
	if !ok {
		return
	}

	if err := h.service.ApproveCaretaker(c.Request.Context(), userID, caretakerID); err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Caretaker approved successfully", nil)
}

func (h *PatientHandler) AddDoctor(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req patient.LinkRequest
	if !bindJSON(c, &req) {
		return
	}

	contact, err := h.service.AddDoctor(c.Request.Context(), userID, &req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Doctor linked successfully", contact)
}

// RequestAccess is called by a caretaker; the patient approves it later.
func (h *PatientHandler) RequestAccess(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req patient.LinkRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.service.RequestAccess(c.Request.Context(), userID, &req); err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusAccepted, "Access request sent", nil)
}
