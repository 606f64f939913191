package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medication-adherence-monitor/internal/clock"
	"medication-adherence-monitor/internal/domain"
	"medication-adherence-monitor/internal/domain/device"
	domainPatient "medication-adherence-monitor/internal/domain/patient"
	domainUser "medication-adherence-monitor/internal/domain/user"
	"medication-adherence-monitor/internal/logger"
	appErrors "medication-adherence-monitor/pkg/errors"
	"medication-adherence-monitor/pkg/utils"
)

const (
	DeviceAPIVersion       = "1.0"
	DefaultOnlineThreshold = 10 * time.Minute
)

var (
	ErrDeviceLinkedElsewhere = errors.New("device is linked to another patient")
	ErrNotACaretaker         = errors.New("user is not a caretaker")
	ErrNotADoctor            = errors.New("user is not a doctor")
	ErrNotAPatient           = errors.New("user is not a patient")
)

// Service owns patient profiles, device onboarding and care-team links.
type Service struct {
	userRepo        domainUser.Repository
	patientRepo     domainPatient.Repository
	deviceRepo      device.Repository
	tx              domain.Transactor
	clock           clock.Clock
	onlineThreshold time.Duration
}

func NewService(
	userRepo domainUser.Repository,
	patientRepo domainPatient.Repository,
	deviceRepo device.Repository,
	tx domain.Transactor,
	clk clock.Clock,
	onlineThreshold time.Duration,
) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if onlineThreshold <= 0 {
		onlineThreshold = DefaultOnlineThreshold
	}
	return &Service{
		userRepo:        userRepo,
		patientRepo:     patientRepo,
		deviceRepo:      deviceRepo,
		tx:              tx,
		clock:           clk,
		onlineThreshold: onlineThreshold,
	}
}

// GetProfile returns the user with their patient record and device. Patient
// and device are nil for users who have not onboarded yet.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*ProfileResponse, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := &ProfileResponse{User: toUserView(u)}

	p, err := s.patientRepo.GetByUserID(ctx, userID)
	if errors.Is(err, domainPatient.ErrPatientNotFound) {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}

	view, err := s.patientView(ctx, p)
	if err != nil {
		return nil, err
	}
	resp.Patient = view

	if p.DeviceID != nil {
		d, err := s.deviceRepo.GetByID(ctx, *p.DeviceID)
		if err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
			return nil, err
		}
		resp.Device = toDeviceView(d)
	}

	return resp, nil
}

// UpdateProfile edits account fields and, for patients, the medical profile,
// creating the patient record on first use.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, req *UpdateProfileRequest) (*ProfileResponse, error) {
	req.Name = utils.SanitizeStringPtr(req.Name)
	if req.Phone != nil {
		phone := utils.SanitizePhone(*req.Phone)
		req.Phone = &phone
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewValidationError(err)
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		u, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			return err
		}

		if req.Name != nil || req.Phone != nil {
			if req.Name != nil {
				u.Name = *req.Name
			}
			if req.Phone != nil {
				u.Phone = req.Phone
			}
			u.UpdatedAt = s.clock.Now()
			if err := s.userRepo.Update(ctx, u); err != nil {
				return err
			}
		}

		if req.Allergies == nil && req.Illnesses == nil && req.OtherNotes == nil {
			return nil
		}
		if u.Role != domainUser.RolePatient {
			return appErrors.NewAppError(appErrors.CodeValidation, "Only patients have a medical profile", ErrNotAPatient)
		}

		p, err := s.ensurePatient(ctx, userID)
		if err != nil {
			return err
		}

		if req.Allergies != nil {
			p.MedicalProfile.Allergies = utils.SanitizeList(*req.Allergies)
		}
		if req.Illnesses != nil {
			p.MedicalProfile.Illnesses = mergeIllnesses(p.MedicalProfile.Illnesses, utils.SanitizeList(*req.Illnesses))
		}
		if req.OtherNotes != nil {
			p.MedicalProfile.OtherNotes = utils.SanitizeText(*req.OtherNotes)
		}
		p.UpdatedAt = s.clock.Now()
		return s.patientRepo.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Profile updated",
		zap.String("user_id", userID.String()),
		zap.String("event", "profile_updated"),
	)

	return s.GetProfile(ctx, userID)
}

// RegisterDevice links a dispenser to the caller, creating the patient
// record and the device as needed.
func (s *Service) RegisterDevice(ctx context.Context, userID uuid.UUID, req *RegisterDeviceRequest) (*RegisterDeviceResponse, error) {
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	req.Name = utils.SanitizeString(req.Name)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewValidationError(err)
	}

	var dev *device.Device
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		p, err := s.ensurePatient(ctx, userID)
		if err != nil {
			return err
		}

		dev, err = s.deviceRepo.GetByDeviceID(ctx, req.DeviceID)
		switch {
		case errors.Is(err, device.ErrDeviceNotFound):
			battery := device.DefaultBattery
			dev = &device.Device{
				DeviceID:     req.DeviceID,
				Name:         req.Name,
				Timezone:     req.Timezone,
				SlotCount:    req.SlotCount,
				BatteryLevel: &battery,
			}
			if err := s.deviceRepo.Create(ctx, dev); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			owner, err := s.patientRepo.GetByDeviceID(ctx, dev.ID)
			if err == nil && owner.ID != p.ID {
				return appErrors.NewAppError(appErrors.CodeConflict, "Device is already linked to another patient", ErrDeviceLinkedElsewhere)
			}
			if err != nil && !errors.Is(err, domainPatient.ErrPatientNotFound) {
				return err
			}
		}

		if p.DeviceID != nil && *p.DeviceID == dev.ID {
			return nil
		}
		p.DeviceID = &dev.ID
		p.UpdatedAt = s.clock.Now()
		return s.patientRepo.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Device linked to patient",
		zap.String("user_id", userID.String()),
		zap.String("device_id", dev.DeviceID),
		zap.String("event", "device_linked"),
	)

	return &RegisterDeviceResponse{
		ID:        dev.ID,
		DeviceID:  dev.DeviceID,
		Timezone:  dev.Timezone,
		SlotCount: dev.SlotCount,
	}, nil
}

// AddCaretaker links a caretaker chosen by the patient. The link is approved
// immediately since the patient initiated it.
func (s *Service) AddCaretaker(ctx context.Context, patientUserID uuid.UUID, req *LinkRequest) (*ContactView, error) {
	caretaker, err := s.lookupByRole(ctx, req, domainUser.RoleCaretaker, ErrNotACaretaker)
	if err != nil {
		return nil, err
	}

	p, err := s.ensurePatient(ctx, patientUserID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	link := domainPatient.CaretakerLink{
		CaretakerID:  caretaker.ID,
		Relationship: utils.SanitizeString(req.Relationship),
		Approved:     true,
		RequestedAt:  now,
		ApprovedAt:   &now,
	}
	if err := s.patientRepo.AddCaretaker(ctx, p.ID, link); err != nil {
		return nil, err
	}

	logger.Info("Caretaker linked",
		zap.String("patient_id", p.ID.String()),
		zap.String("caretaker_id", caretaker.ID.String()),
		zap.String("event", "caretaker_linked"),
	)

	return contactView(caretaker, link.Relationship, &link.Approved), nil
}

// RequestAccess lets a caretaker ask to follow a patient. The link stays
// pending until the patient approves it.
func (s *Service) RequestAccess(ctx context.Context, caretakerUserID uuid.UUID, req *LinkRequest) error {
	patientUser, err := s.lookupByRole(ctx, req, domainUser.RolePatient, ErrNotAPatient)
	if err != nil {
		return err
	}

	p, err := s.patientRepo.GetByUserID(ctx, patientUser.ID)
	if err != nil {
		return err
	}

	link := domainPatient.CaretakerLink{
		CaretakerID:  caretakerUserID,
		Relationship: utils.SanitizeString(req.Relationship),
		RequestedAt:  s.clock.Now(),
	}
	if err := s.patientRepo.AddCaretaker(ctx, p.ID, link); err != nil {
		return err
	}

	logger.Info("Caretaker access requested",
		zap.String("patient_id", p.ID.String()),
		zap.String("caretaker_id", caretakerUserID.String()),
		zap.String("event", "caretaker_requested"),
	)
	return nil
}

func (s *Service) ApproveCaretaker(ctx context.Context, patientUserID, caretakerUserID uuid.UUID) error {
	p, err := s.patientRepo.GetByUserID(ctx, patientUserID)
	if err != nil {
		return err
	}
	if err := s.patientRepo.ApproveCaretaker(ctx, p.ID, caretakerUserID, s.clock.Now()); err != nil {
		return err
	}

	logger.Info("Caretaker approved",
		zap.String("patient_id", p.ID.String()),
		zap.String("caretaker_id", caretakerUserID.String()),
		zap.String("event", "caretaker_approved"),
	)
	return nil
}

func (s *Service) AddDoctor(ctx context.Context, patientUserID uuid.UUID, req *LinkRequest) (*ContactView, error) {
	doctor, err := s.lookupByRole(ctx, req, domainUser.RoleDoctor, ErrNotADoctor)
	if err != nil {
		return nil, err
	}

	p, err := s.ensurePatient(ctx, patientUserID)
	if err != nil {
		return nil, err
	}
	if err := s.patientRepo.AddDoctor(ctx, p.ID, doctor.ID); err != nil {
		return nil, err
	}

	logger.Info("Doctor linked",
		zap.String("patient_id", p.ID.String()),
		zap.String("doctor_id", doctor.ID.String()),
		zap.String("event", "doctor_linked"),
	)
	return contactView(doctor, "", nil), nil
}

// DeviceProfile renders the read-only card a dispenser displays.
func (s *Service) DeviceProfile(ctx context.Context, externalDeviceID string) (*DeviceProfile, error) {
	externalDeviceID = strings.TrimSpace(externalDeviceID)
	if externalDeviceID == "" {
		return nil, appErrors.NewAppError(appErrors.CodeValidation, "deviceId is required", appErrors.ErrInvalidInput)
	}

	dev, err := s.deviceRepo.GetByDeviceID(ctx, externalDeviceID)
	if err != nil {
		return nil, err
	}
	p, err := s.patientRepo.GetByDeviceID(ctx, dev.ID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := &DeviceProfile{}
	out.Device.DeviceID = dev.DeviceID
	out.Device.Name = dev.Name
	if out.Device.Name == "" {
		out.Device.Name = "Device"
	}
	out.Device.Status = "offline"
	if dev.LastStatus != nil && *dev.LastStatus != "" && dev.IsOnline(now, s.onlineThreshold) {
		out.Device.Status = *dev.LastStatus
	}
	out.Device.BatteryLevel = dev.BatteryLevel
	out.Device.WifiStrength = dev.WifiStrength
	out.Device.LastHeartbeat = dev.LastHeartbeatAt

	patientName := "Patient"
	if u, err := s.userRepo.GetByID(ctx, p.UserID); err == nil && u.Name != "" {
		patientName = u.Name
	}

	dp := &DevicePatient{DisplayName: patientName, Timezone: dev.Timezone}
	dp.MedicalProfile.Illnesses = make([]string, 0, len(p.MedicalProfile.Illnesses))
	for _, ill := range p.MedicalProfile.Illnesses {
		dp.MedicalProfile.Illnesses = append(dp.MedicalProfile.Illnesses, ill.Name)
	}
	dp.MedicalProfile.Allergies = append([]string{}, p.MedicalProfile.Allergies...)
	dp.MedicalProfile.Notes = p.MedicalProfile.OtherNotes
	out.Patient = dp

	if approved := p.ApprovedCaretakers(); len(approved) > 0 {
		ct := &DeviceCaretaker{Name: "Caretaker", Relationship: approved[0].Relationship}
		if ct.Relationship == "" {
			ct.Relationship = "Caretaker"
		}
		if u, err := s.userRepo.GetByID(ctx, approved[0].CaretakerID); err == nil && u.Name != "" {
			ct.Name = u.Name
		}
		out.Support.Caretaker = ct
	}

	out.Meta.SyncedAt = now.UTC()
	out.Meta.APIVersion = DeviceAPIVersion
	return out, nil
}

// ensurePatient returns the caller's patient record, creating an empty one
// on first use.
func (s *Service) ensurePatient(ctx context.Context, userID uuid.UUID) (*domainPatient.Patient, error) {
	p, err := s.patientRepo.GetByUserID(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domainPatient.ErrPatientNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	p = &domainPatient.Patient{
		UserID: userID,
		MedicalProfile: domainPatient.MedicalProfile{
			Illnesses: []domainPatient.Illness{},
			Allergies: []string{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.patientRepo.Create(ctx, p); err != nil {
		if errors.Is(err, domainPatient.ErrPatientAlreadyExists) {
			return s.patientRepo.GetByUserID(ctx, userID)
		}
		return nil, fmt.Errorf("failed to create patient profile: %w", err)
	}

	logger.Info("Patient profile created",
		zap.String("user_id", userID.String()),
		zap.String("patient_id", p.ID.String()),
		zap.String("event", "patient_created"),
	)
	return p, nil
}

func (s *Service) lookupByRole(ctx context.Context, req *LinkRequest, role domainUser.Role, wrongRole error) (*domainUser.User, error) {
	req.Email = utils.SanitizeEmail(req.Email)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewValidationError(err)
	}

	u, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if u.Role != role {
		return nil, appErrors.NewAppError(appErrors.CodeValidation, fmt.Sprintf("User is not a %s", role), wrongRole)
	}
	return u, nil
}

func (s *Service) patientView(ctx context.Context, p *domainPatient.Patient) (*PatientView, error) {
	ids := make([]uuid.UUID, 0, len(p.Caretakers)+len(p.DoctorIDs))
	for _, c := range p.Caretakers {
		ids = append(ids, c.CaretakerID)
	}
	ids = append(ids, p.DoctorIDs...)

	byID := make(map[uuid.UUID]*domainUser.User, len(ids))
	if len(ids) > 0 {
		users, err := s.userRepo.GetByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			byID[u.ID] = u
		}
	}

	view := &PatientView{
		ID:             p.ID,
		MedicalProfile: p.MedicalProfile,
		Caretakers:     make([]ContactView, 0, len(p.Caretakers)),
		Doctors:        make([]ContactView, 0, len(p.DoctorIDs)),
	}
	if view.MedicalProfile.Illnesses == nil {
		view.MedicalProfile.Illnesses = []domainPatient.Illness{}
	}
	if view.MedicalProfile.Allergies == nil {
		view.MedicalProfile.Allergies = []string{}
	}

	for _, c := range p.Caretakers {
		if u, ok := byID[c.CaretakerID]; ok {
			approved := c.Approved
			view.Caretakers = append(view.Caretakers, *contactView(u, c.Relationship, &approved))
		}
	}
	for _, id := range p.DoctorIDs {
		if u, ok := byID[id]; ok {
			view.Doctors = append(view.Doctors, *contactView(u, "", nil))
		}
	}
	return view, nil
}

func contactView(u *domainUser.User, relationship string, approved *bool) *ContactView {
	return &ContactView{
		UserID:       u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Relationship: relationship,
		Approved:     approved,
	}
}

// mergeIllnesses keeps existing entries (with their status) for names still
// listed and adds new names as ongoing.
func mergeIllnesses(existing []domainPatient.Illness, names []string) []domainPatient.Illness {
	known := make(map[string]domainPatient.Illness, len(existing))
	for _, ill := range existing {
		known[strings.ToLower(ill.Name)] = ill
	}

	out := make([]domainPatient.Illness, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if ill, ok := known[key]; ok {
			out = append(out, ill)
			continue
		}
		out = append(out, domainPatient.Illness{Name: name, Status: domainPatient.IllnessOngoing})
	}
	return out
}
