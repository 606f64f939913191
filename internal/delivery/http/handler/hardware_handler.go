package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	domainDose "medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/usecase/device"
	"medication-adherence-monitor/internal/usecase/dose"
	"medication-adherence-monitor/internal/usecase/patient"
	"medication-adherence-monitor/pkg/utils"
)

// HardwareHandler serves dispensers. Every route sits behind the device
// shared secret.
type HardwareHandler struct {
	doses    *dose.Service
	devices  *device.Service
	patients *patient.Service
}

func NewHardwareHandler(doses *dose.Service, devices *device.Service, patients *patient.Service) *HardwareHandler {
	return &HardwareHandler{doses: doses, devices: devices, patients: patients}
}

func (h *HardwareHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/upcoming", h.Upcoming)
	router.GET("/taken", h.history("Taken doses retrieved successfully", domainDose.StatusTaken))
	router.GET("/missed", h.history("Missed doses retrieved successfully", domainDose.StatusMissed, domainDose.StatusSkipped))
	router.POST("/heartbeat", h.Heartbeat)

	doses := router.Group("/doses")
	{
		doses.PATCH("/:doseId/mark-taken", h.mark(domainDose.StatusTaken, "Dose marked as taken"))
		doses.PATCH("/:doseId/mark-skipped", h.mark(domainDose.StatusSkipped, "Dose marked as skipped"))
		doses.PATCH("/:doseId/mark-dispensed", h.mark(domainDose.StatusDispensed, "Dose marked as dispensed"))
	}
}

// RegisterDeviceRoutes mounts the /device/:deviceId endpoints.
func (h *HardwareHandler) RegisterDeviceRoutes(router *gin.RouterGroup) {
	router.GET("/:deviceId/profile", h.Profile)
}

func (h *HardwareHandler) Upcoming(c *gin.Context) {
	items, err := h.doses.Upcoming(c.Request.Context(), c.Query("deviceId"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Upcoming doses retrieved successfully", items)
}

func (h *HardwareHandler) history(message string, statuses ...domainDose.Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := h.doses.DeviceHistory(c.Request.Context(), c.Query("deviceId"), statuses...)
		if err != nil {
			respondWithError(c, err)
			return
		}

		utils.SuccessResponse(c, http.StatusOK, message, items)
	}
}

type markRequest struct {
	DeviceID string `json:"deviceId"`
	Reason   string `json:"reason"`
}

func (h *HardwareHandler) mark(status domainDose.Status, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req markRequest
		if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
			return
		}
		if req.DeviceID == "" {
			req.DeviceID = c.Query("deviceId")
		}

		log, err := h.doses.MarkForDevice(c.Request.Context(), dose.DeviceMark{
			Ref:      c.Param("doseId"),
			Status:   status,
			DeviceID: req.DeviceID,
			Reason:   req.Reason,
			Source:   dose.SourceHardware,
		})
		if err != nil {
			respondWithError(c, err)
			return
		}

		utils.SuccessResponse(c, http.StatusOK, message, dose.ToDoseResponse(log))
	}
}

func (h *HardwareHandler) Heartbeat(c *gin.Context) {
	var req device.HeartbeatRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.devices.Heartbeat(c.Request.Context(), &req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *HardwareHandler) Profile(c *gin.Context) {
	profile, err := h.patients.DeviceProfile(c.Request.Context(), c.Param("deviceId"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device profile retrieved successfully", profile)
}
