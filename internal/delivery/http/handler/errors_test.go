package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"medication-adherence-monitor/internal/authz"
	"medication-adherence-monitor/internal/domain/device"
	"medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/domain/medication"
	"medication-adherence-monitor/internal/domain/patient"
	medicationUsecase "medication-adherence-monitor/internal/usecase/medication"
	appErrors "medication-adherence-monitor/pkg/errors"
	"medication-adherence-monitor/pkg/utils"
)

func TestRespondWithError(t *testing.T) {
	scheduleErr := appErrors.NewAppError(appErrors.CodeValidation, "Invalid input", &medicationUsecase.ScheduleError{
		Details: []utils.FieldError{{Field: "times", Message: "must be a time in HH:MM format"}},
	})
	tagErr := appErrors.NewValidationError(utils.ValidateStruct(&struct {
		Name string `json:"name" validate:"required"`
	}{}))

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantDetails bool
	}{
		{"struct validation", tagErr, http.StatusBadRequest, true},
		{"schedule validation", scheduleErr, http.StatusBadRequest, true},
		{"plain validation", appErrors.NewAppError(appErrors.CodeValidation, "deviceId is required", appErrors.ErrInvalidInput), http.StatusBadRequest, false},
		{"app conflict", appErrors.NewAppError(appErrors.CodeConflict, "linked", nil), http.StatusConflict, false},
		{"slot occupied", medication.ErrSlotOccupied, http.StatusConflict, false},
		{"wrapped transition", fmt.Errorf("%w: taken to missed", dose.ErrInvalidTransition), http.StatusConflict, false},
		{"bad credentials", appErrors.ErrInvalidCredentials, http.StatusUnauthorized, false},
		{"forbidden", authz.ErrForbidden, http.StatusForbidden, false},
		{"device not found", device.ErrDeviceNotFound, http.StatusNotFound, false},
		{"dose not found", dose.ErrDoseNotFound, http.StatusNotFound, false},
		{"no device", patient.ErrNoDeviceLinked, http.StatusBadRequest, false},
		{"bad ref", dose.ErrInvalidRef, http.StatusBadRequest, false},
		{"lock busy", appErrors.ErrResourceBusy, http.StatusServiceUnavailable, false},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)

			respondWithError(c, tt.err)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body envelope
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success {
				t.Error("success must be false")
			}
			if got := len(body.Details) > 0; got != tt.wantDetails {
				t.Errorf("details = %v, want present=%v", body.Details, tt.wantDetails)
			}
			if tt.wantStatus == http.StatusInternalServerError && body.Error != "Internal server error" {
				t.Errorf("internal errors must not leak, got %q", body.Error)
			}
		})
	}
}
