package patient

import (
	"time"

	"github.com/google/uuid"

	"medication-adherence-monitor/internal/domain/device"
	domainPatient "medication-adherence-monitor/internal/domain/patient"
	domainUser "medication-adherence-monitor/internal/domain/user"
)

type UpdateProfileRequest struct {
	Name       *string   `json:"name" validate:"omitempty,min=2,max=255"`
	Phone      *string   `json:"phone" validate:"omitempty,phone"`
	Allergies  *[]string `json:"allergies"`
	Illnesses  *[]string `json:"illnesses"`
	OtherNotes *string   `json:"otherNotes" validate:"omitempty,max=2000"`
}

type RegisterDeviceRequest struct {
	DeviceID  string `json:"deviceId" validate:"required,max=100"`
	Name      string `json:"name" validate:"omitempty,max=100"`
	Timezone  string `json:"timezone" validate:"omitempty,timezone"`
	SlotCount int    `json:"slotCount" validate:"omitempty,min=1,max=32"`
}

type LinkRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Relationship string `json:"relationship" validate:"omitempty,max=100"`
}

type UserView struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ContactView struct {
	UserID       uuid.UUID `json:"userId"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Relationship string    `json:"relationship,omitempty"`
	Approved     *bool     `json:"approved,omitempty"`
}

type PatientView struct {
	ID             uuid.UUID                    `json:"id"`
	MedicalProfile domainPatient.MedicalProfile `json:"medicalProfile"`
	Caretakers     []ContactView                `json:"caretakers"`
	Doctors        []ContactView                `json:"doctors"`
}

type DeviceView struct {
	ID              uuid.UUID  `json:"id"`
	DeviceID        string     `json:"deviceId"`
	Name            string     `json:"name"`
	Timezone        string     `json:"timezone"`
	SlotCount       int        `json:"slotCount"`
	LastStatus      *string    `json:"lastStatus"`
	BatteryLevel    *int       `json:"batteryLevel"`
	WifiStrength    *int       `json:"wifiStrength"`
	WifiConnected   bool       `json:"wifiConnected"`
	FirmwareVersion *string    `json:"firmwareVersion,omitempty"`
	LastHeartbeatAt *time.Time `json:"lastHeartbeat"`
}

type ProfileResponse struct {
	User    UserView     `json:"user"`
	Patient *PatientView `json:"patient"`
	Device  *DeviceView  `json:"device"`
}

type RegisterDeviceResponse struct {
	ID        uuid.UUID `json:"id"`
	DeviceID  string    `json:"deviceId"`
	Timezone  string    `json:"timezone"`
	SlotCount int       `json:"slotCount"`
}

// DeviceProfile is what a dispenser shows on its own screen.
type DeviceProfile struct {
	Device struct {
		DeviceID      string     `json:"deviceId"`
		Name          string     `json:"name"`
		Status        string     `json:"status"`
		BatteryLevel  *int       `json:"batteryLevel"`
		WifiStrength  *int       `json:"wifiStrength"`
		LastHeartbeat *time.Time `json:"lastHeartbeat"`
	} `json:"device"`
	Patient *DevicePatient `json:"patient"`
	Support struct {
		Caretaker *DeviceCaretaker `json:"caretaker"`
	} `json:"support"`
	Meta struct {
		SyncedAt   time.Time `json:"syncedAt"`
		APIVersion string    `json:"apiVersion"`
	} `json:"meta"`
}

type DevicePatient struct {
	DisplayName    string `json:"displayName"`
	Timezone       string `json:"timezone"`
	MedicalProfile struct {
		Illnesses []string `json:"illnesses"`
		Allergies []string `json:"allergies"`
		Notes     string   `json:"notes"`
	} `json:"medicalProfile"`
}

type DeviceCaretaker struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
}

func toUserView(u *domainUser.User) UserView {
	return UserView{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      string(u.Role),
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toDeviceView(d *device.Device) *DeviceView {
	if d == nil {
		return nil
	}
	return &DeviceView{
		ID:              d.ID,
		DeviceID:        d.DeviceID,
		Name:            d.Name,
		Timezone:        d.Timezone,
		SlotCount:       d.SlotCount,
		LastStatus:      d.LastStatus,
		BatteryLevel:    d.BatteryLevel,
		WifiStrength:    d.WifiStrength,
		WifiConnected:   d.WifiConnected,
		FirmwareVersion: d.FirmwareVersion,
		LastHeartbeatAt: d.LastHeartbeatAt,
	}
}
