package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"medication-adherence-monitor/internal/authz"
	"medication-adherence-monitor/internal/domain/device"
	"medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/domain/medication"
	"medication-adherence-monitor/internal/domain/patient"
	"medication-adherence-monitor/internal/domain/user"
	"medication-adherence-monitor/internal/logger"
	"medication-adherence-monitor/internal/middleware"
	medicationUsecase "medication-adherence-monitor/internal/usecase/medication"
	patientUsecase "medication-adherence-monitor/internal/usecase/patient"
	appErrors "medication-adherence-monitor/pkg/errors"
	"medication-adherence-monitor/pkg/utils"
)

func respondWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		respondWithAppError(c, appErr)
		return
	}

	switch {
	case errors.Is(err, appErrors.ErrUserAlreadyExists),
		errors.Is(err, user.ErrUserAlreadyExists),
		errors.Is(err, medication.ErrSlotOccupied),
		errors.Is(err, dose.ErrInvalidTransition),
		errors.Is(err, dose.ErrConcurrentUpdate),
		errors.Is(err, patient.ErrLinkAlreadyExists),
		errors.Is(err, patient.ErrPatientAlreadyExists),
		errors.Is(err, device.ErrDeviceAlreadyExists),
		errors.Is(err, patientUsecase.ErrDeviceLinkedElsewhere):
		utils.ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, appErrors.ErrInvalidCredentials),
		errors.Is(err, appErrors.ErrInvalidToken),
		errors.Is(err, appErrors.ErrTokenInvalid),
		errors.Is(err, appErrors.ErrTokenExpired),
		errors.Is(err, appErrors.ErrUnauthorized):
		utils.ErrorResponse(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, appErrors.ErrUserInactive),
		errors.Is(err, appErrors.ErrInsufficientPermissions),
		errors.Is(err, authz.ErrForbidden):
		utils.ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, user.ErrUserNotFound),
		errors.Is(err, patient.ErrPatientNotFound),
		errors.Is(err, patient.ErrLinkNotFound),
		errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, medication.ErrPlanNotFound),
		errors.Is(err, dose.ErrDoseNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, dose.ErrInvalidRef),
		errors.Is(err, dose.ErrUnsupportedAction),
		errors.Is(err, medication.ErrSlotOutOfRange),
		errors.Is(err, medication.ErrInvalidSchedule),
		errors.Is(err, patient.ErrNoDeviceLinked),
		errors.Is(err, patientUsecase.ErrNotACaretaker),
		errors.Is(err, patientUsecase.ErrNotADoctor),
		errors.Is(err, patientUsecase.ErrNotAPatient),
		errors.Is(err, appErrors.ErrInvalidInput),
		errors.Is(err, appErrors.ErrWeakPassword):
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, appErrors.ErrResourceBusy):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, err.Error())
	default:
		internalError(c, err)
	}
}

func respondWithAppError(c *gin.Context, appErr *appErrors.AppError) {
	switch appErr.Code {
	case appErrors.CodeValidation:
		details := utils.ValidationDetails(appErr.Err)
		var schedErr *medicationUsecase.ScheduleError
		if details == nil && errors.As(appErr.Err, &schedErr) {
			details = schedErr.Details
		}
		if details != nil {
			utils.ErrorResponseWithDetails(c, http.StatusBadRequest, appErr.Message, details)
			return
		}
		utils.ErrorResponse(c, http.StatusBadRequest, appErr.Message)
	case appErrors.CodeConflict:
		utils.ErrorResponse(c, http.StatusConflict, appErr.Message)
	case appErrors.CodeNotFound:
		utils.ErrorResponse(c, http.StatusNotFound, appErr.Message)
	default:
		internalError(c, appErr)
	}
}

func internalError(c *gin.Context, err error) {
	logger.Error("Internal server error",
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.Error(err),
	)
	utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error")
}

// bindJSON decodes the body into req, answering 400 on malformed JSON.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// currentUser answers 401 when the auth middleware did not run.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return uuid.Nil, false
	}
	return userID, true
}

func parseUUIDParam(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid "+label)
		return uuid.Nil, false
	}
	return id, true
}
