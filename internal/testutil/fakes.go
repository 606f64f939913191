// Package testutil holds in-memory repositories for service tests.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"medication-adherence-monitor/internal/domain/device"
	"medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/domain/medication"
	"medication-adherence-monitor/internal/domain/patient"
	"medication-adherence-monitor/internal/domain/user"
)

// NoopTx runs fn directly.
type NoopTx struct{}

func (NoopTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ---- users ----

type UserRepo struct {
	mu    sync.Mutex
	Users map[uuid.UUID]*user.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{Users: make(map[uuid.UUID]*user.User)}
}

func (r *UserRepo) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.Users {
		if strings.EqualFold(existing.Email, u.Email) {
			return user.ErrUserAlreadyExists
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.IsActive = true
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	r.Users[u.ID] = &cp
	return nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.Users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.Users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*user.User
	for _, id := range ids {
		if u, ok := r.Users[id]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *UserRepo) Update(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Users[u.ID]; !ok {
		return user.ErrUserNotFound
	}
	cp := *u
	r.Users[u.ID] = &cp
	return nil
}

func (r *UserRepo) CountByRole(_ context.Context, role user.Role) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, u := range r.Users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

// Add stores u as-is and returns it.
func (r *UserRepo) Add(u *user.User) *user.User {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.mu.Lock()
	r.Users[u.ID] = u
	r.mu.Unlock()
	return u
}

type RefreshTokenRepo struct {
	mu     sync.Mutex
	Tokens map[string]*user.RefreshToken
}

func NewRefreshTokenRepo() *RefreshTokenRepo {
	return &RefreshTokenRepo{Tokens: make(map[string]*user.RefreshToken)}
}

func (r *RefreshTokenRepo) Create(_ context.Context, t *user.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	cp := *t
	r.Tokens[t.Token] = &cp
	return nil
}

func (r *RefreshTokenRepo) GetByToken(_ context.Context, token string) (*user.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.Tokens[token]
	if !ok {
		return nil, user.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *RefreshTokenRepo) Revoke(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.Tokens {
		if t.ID == id && !t.Revoked {
			now := time.Now()
			t.Revoked = true
			t.RevokedAt = &now
			return nil
		}
	}
	return user.ErrTokenNotFound
}

func (r *RefreshTokenRepo) RevokeAllUserTokens(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, t := range r.Tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			t.RevokedAt = &now
		}
	}
	return nil
}

func (r *RefreshTokenRepo) DeleteExpired(_ context.Context, olderThan time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for k, t := range r.Tokens {
		if t.ExpiresAt.Before(cutoff) || (t.Revoked && t.RevokedAt != nil && t.RevokedAt.Before(cutoff)) {
			delete(r.Tokens, k)
			n++
		}
	}
	return n, nil
}

// ---- patients ----

type PatientRepo struct {
	mu       sync.Mutex
	Patients map[uuid.UUID]*patient.Patient
}

func NewPatientRepo() *PatientRepo {
	return &PatientRepo{Patients: make(map[uuid.UUID]*patient.Patient)}
}

func clonePatient(p *patient.Patient) *patient.Patient {
	cp := *p
	cp.Caretakers = append([]patient.CaretakerLink(nil), p.Caretakers...)
	cp.DoctorIDs = append([]uuid.UUID(nil), p.DoctorIDs...)
	cp.MedicalProfile.Illnesses = append([]patient.Illness(nil), p.MedicalProfile.Illnesses...)
	cp.MedicalProfile.Allergies = append([]string(nil), p.MedicalProfile.Allergies...)
	return &cp
}

func (r *PatientRepo) Create(_ context.Context, p *patient.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.Patients {
		if existing.UserID == p.UserID {
			return patient.ErrPatientAlreadyExists
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.Patients[p.ID] = clonePatient(p)
	return nil
}

func (r *PatientRepo) find(match func(*patient.Patient) bool) (*patient.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.Patients {
		if match(p) {
			return clonePatient(p), nil
		}
	}
	return nil, patient.ErrPatientNotFound
}

func (r *PatientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	return r.find(func(p *patient.Patient) bool { return p.ID == id })
}

func (r *PatientRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*patient.Patient, error) {
	return r.find(func(p *patient.Patient) bool { return p.UserID == userID })
}

func (r *PatientRepo) GetByDeviceID(_ context.Context, deviceID uuid.UUID) (*patient.Patient, error) {
	return r.find(func(p *patient.Patient) bool { return p.DeviceID != nil && *p.DeviceID == deviceID })
}

func (r *PatientRepo) Update(_ context.Context, p *patient.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.Patients[p.ID]
	if !ok {
		return patient.ErrPatientNotFound
	}
	updated := clonePatient(p)
	updated.Caretakers = existing.Caretakers
	updated.DoctorIDs = existing.DoctorIDs
	r.Patients[p.ID] = updated
	return nil
}

func (r *PatientRepo) AddCaretaker(_ context.Context, patientID uuid.UUID, link patient.CaretakerLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.Patients[patientID]
	if !ok {
		return patient.ErrPatientNotFound
	}
	for _, c := range p.Caretakers {
		if c.CaretakerID == link.CaretakerID {
			return patient.ErrLinkAlreadyExists
		}
	}
	p.Caretakers = append(p.Caretakers, link)
	return nil
}

func (r *PatientRepo) ApproveCaretaker(_ context.Context, patientID, caretakerID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.Patients[patientID]
	if !ok {
		return patient.ErrLinkNotFound
	}
	for i := range p.Caretakers {
		if p.Caretakers[i].CaretakerID == caretakerID {
			p.Caretakers[i].Approved = true
			p.Caretakers[i].ApprovedAt = &at
			return nil
		}
	}
	return patient.ErrLinkNotFound
}

func (r *PatientRepo) AddDoctor(_ context.Context, patientID, doctorID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.Patients[patientID]
	if !ok {
		return patient.ErrPatientNotFound
	}
	for _, id := range p.DoctorIDs {
		if id == doctorID {
			return patient.ErrLinkAlreadyExists
		}
	}
	p.DoctorIDs = append(p.DoctorIDs, doctorID)
	return nil
}

func (r *PatientRepo) list(match func(*patient.Patient) bool) []*patient.Patient {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*patient.Patient
	for _, p := range r.Patients {
		if match(p) {
			out = append(out, clonePatient(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *PatientRepo) ListByApprovedCaretaker(_ context.Context, caretakerID uuid.UUID) ([]*patient.Patient, error) {
	return r.list(func(p *patient.Patient) bool {
		for _, c := range p.Caretakers {
			if c.CaretakerID == caretakerID && c.Approved {
				return true
			}
		}
		return false
	}), nil
}

func (r *PatientRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*patient.Patient, error) {
	return r.list(func(p *patient.Patient) bool { return p.HasDoctor(doctorID) }), nil
}

func (r *PatientRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.Patients)), nil
}

// ---- devices ----

type DeviceRepo struct {
	mu      sync.Mutex
	Devices map[uuid.UUID]*device.Device
}

func NewDeviceRepo() *DeviceRepo {
	return &DeviceRepo{Devices: make(map[uuid.UUID]*device.Device)}
}

func (r *DeviceRepo) Create(_ context.Context, d *device.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.Devices {
		if existing.DeviceID == d.DeviceID {
			return device.ErrDeviceAlreadyExists
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.SlotCount == 0 {
		d.SlotCount = device.DefaultSlotCount
	}
	if d.Timezone == "" {
		d.Timezone = device.DefaultTimezone
	}
	cp := *d
	r.Devices[d.ID] = &cp
	return nil
}

func (r *DeviceRepo) GetByID(_ context.Context, id uuid.UUID) (*device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.Devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *DeviceRepo) GetByDeviceID(_ context.Context, deviceID string) (*device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.Devices {
		if d.DeviceID == deviceID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, device.ErrDeviceNotFound
}

func (r *DeviceRepo) UpdateTelemetry(_ context.Context, deviceID string, t device.Telemetry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.Devices {
		if d.DeviceID != deviceID {
			continue
		}
		at := t.ReceivedAt
		d.LastHeartbeatAt = &at
		if t.Status != nil {
			d.LastStatus = t.Status
		}
		if t.BatteryLevel != nil {
			d.BatteryLevel = t.BatteryLevel
		}
		if t.WifiStrength != nil {
			d.WifiStrength = t.WifiStrength
		}
		if t.WifiConnected != nil {
			d.WifiConnected = *t.WifiConnected
		}
		if t.FirmwareVersion != nil {
			d.FirmwareVersion = t.FirmwareVersion
		}
		return nil
	}
	return device.ErrDeviceNotFound
}

func (r *DeviceRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.Devices)), nil
}

func (r *DeviceRepo) CountOnlineSince(_ context.Context, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, d := range r.Devices {
		if d.LastHeartbeatAt != nil && !d.LastHeartbeatAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// ---- medication plans ----

type PlanRepo struct {
	mu    sync.Mutex
	Plans map[uuid.UUID]*medication.Plan
	order []uuid.UUID
}

func NewPlanRepo() *PlanRepo {
	return &PlanRepo{Plans: make(map[uuid.UUID]*medication.Plan)}
}

func clonePlan(p *medication.Plan) *medication.Plan {
	cp := *p
	cp.Times = append([]string(nil), p.Times...)
	cp.DaysOfWeek = append([]int(nil), p.DaysOfWeek...)
	return &cp
}

func (r *PlanRepo) slotTaken(p *medication.Plan) bool {
	if !p.Active {
		return false
	}
	for _, existing := range r.Plans {
		if existing.ID != p.ID && existing.Active && existing.PatientID == p.PatientID && existing.SlotIndex == p.SlotIndex {
			return true
		}
	}
	return false
}

func (r *PlanRepo) Create(_ context.Context, p *medication.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if r.slotTaken(p) {
		return medication.ErrSlotOccupied
	}
	r.Plans[p.ID] = clonePlan(p)
	r.order = append(r.order, p.ID)
	return nil
}

func (r *PlanRepo) GetByID(_ context.Context, id uuid.UUID) (*medication.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.Plans[id]
	if !ok {
		return nil, medication.ErrPlanNotFound
	}
	return clonePlan(p), nil
}

func (r *PlanRepo) Update(_ context.Context, p *medication.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Plans[p.ID]; !ok {
		return medication.ErrPlanNotFound
	}
	if r.slotTaken(p) {
		return medication.ErrSlotOccupied
	}
	r.Plans[p.ID] = clonePlan(p)
	return nil
}

func (r *PlanRepo) list(match func(*medication.Plan) bool) []*medication.Plan {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*medication.Plan
	for _, id := range r.order {
		if p := r.Plans[id]; match(p) {
			out = append(out, clonePlan(p))
		}
	}
	return out
}

func (r *PlanRepo) ListByPatient(_ context.Context, patientID uuid.UUID, activeOnly bool) ([]*medication.Plan, error) {
	return r.list(func(p *medication.Plan) bool {
		return p.PatientID == patientID && (!activeOnly || p.Active)
	}), nil
}

func (r *PlanRepo) ListByDevice(_ context.Context, deviceID uuid.UUID, activeOnly bool) ([]*medication.Plan, error) {
	return r.list(func(p *medication.Plan) bool {
		return p.DeviceID == deviceID && (!activeOnly || p.Active)
	}), nil
}

func (r *PlanRepo) FindActiveBySlot(_ context.Context, patientID uuid.UUID, slotIndex int) (*medication.Plan, error) {
	found := r.list(func(p *medication.Plan) bool {
		return p.Active && p.PatientID == patientID && p.SlotIndex == slotIndex
	})
	if len(found) == 0 {
		return nil, medication.ErrPlanNotFound
	}
	return found[0], nil
}

func (r *PlanRepo) ListLowStock(_ context.Context, threshold int) ([]*medication.Plan, error) {
	out := r.list(func(p *medication.Plan) bool {
		return p.Active && p.Stock.Remaining <= threshold
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Stock.Remaining < out[j].Stock.Remaining })
	return out, nil
}

// ---- dose logs ----

// DoseRepo enforces the (plan, scheduledAt) uniqueness the database index provides.
type DoseRepo struct {
	mu    sync.Mutex
	Logs  map[uuid.UUID]*dose.Log
	order []uuid.UUID
}

func NewDoseRepo() *DoseRepo {
	return &DoseRepo{Logs: make(map[uuid.UUID]*dose.Log)}
}

func cloneLog(l *dose.Log) *dose.Log {
	cp := *l
	return &cp
}

func (r *DoseRepo) byKey(key dose.Key) *dose.Log {
	for _, l := range r.Logs {
		if l.Key() == key {
			return l
		}
	}
	return nil
}

func (r *DoseRepo) insert(l *dose.Log) bool {
	if r.byKey(l.Key()) != nil {
		return false
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = dose.StatusPending
	}
	now := time.Now()
	l.CreatedAt, l.UpdatedAt = now, now
	r.Logs[l.ID] = cloneLog(l)
	r.order = append(r.order, l.ID)
	return true
}

// Add stores l directly, bypassing conflict checks, and returns it.
func (r *DoseRepo) Add(l *dose.Log) *dose.Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	r.Logs[l.ID] = cloneLog(l)
	r.order = append(r.order, l.ID)
	return l
}

func (r *DoseRepo) GetByID(_ context.Context, id uuid.UUID) (*dose.Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.Logs[id]
	if !ok {
		return nil, dose.ErrDoseNotFound
	}
	return cloneLog(l), nil
}

func (r *DoseRepo) GetByNaturalKey(_ context.Context, planID uuid.UUID, scheduledAt time.Time) (*dose.Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l := r.byKey(dose.NewKey(planID, scheduledAt)); l != nil {
		return cloneLog(l), nil
	}
	return nil, dose.ErrDoseNotFound
}

func (r *DoseRepo) CreateIfAbsent(_ context.Context, l *dose.Log) (*dose.Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(l)
	return cloneLog(r.byKey(l.Key())), nil
}

func (r *DoseRepo) CreateMissing(_ context.Context, logs []*dose.Log) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range logs {
		r.insert(l)
	}
	return nil
}

func (r *DoseRepo) UpdateStatus(_ context.Context, l *dose.Log, expected dose.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.Logs[l.ID]
	if !ok {
		return dose.ErrDoseNotFound
	}
	if stored.Status != expected {
		return dose.ErrConcurrentUpdate
	}
	stored.Status = l.Status
	stored.DispensedAt = l.DispensedAt
	stored.TakenAt = l.TakenAt
	stored.MissedReason = l.MissedReason
	stored.UpdatedAt = l.UpdatedAt
	return nil
}

func (r *DoseRepo) ResetStaleDispensed(_ context.Context, deviceID uuid.UUID, dispensedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.Logs {
		if l.DeviceID == deviceID && l.Status == dose.StatusDispensed &&
			l.DispensedAt != nil && !l.DispensedAt.After(dispensedBefore) {
			l.Status = dose.StatusPending
			l.DispensedAt = nil
			n++
		}
	}
	return n, nil
}

func (r *DoseRepo) MarkOverdueMissed(_ context.Context, deviceID uuid.UUID, scheduledBefore time.Time, reason string) ([]*dose.Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*dose.Log
	for _, id := range r.order {
		l := r.Logs[id]
		if l.DeviceID != deviceID || l.ScheduledAt.After(scheduledBefore) {
			continue
		}
		if l.Status != dose.StatusPending && l.Status != dose.StatusDispensed {
			continue
		}
		reasonCopy := reason
		l.Status = dose.StatusMissed
		l.MissedReason = &reasonCopy
		l.TakenAt = nil
		out = append(out, cloneLog(l))
	}
	return out, nil
}

func (r *DoseRepo) List(_ context.Context, f dose.Filter) ([]*dose.Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*dose.Log
	for _, id := range r.order {
		if l := r.Logs[id]; f.Matches(l) {
			out = append(out, cloneLog(l))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if f.Desc {
			return out[i].ScheduledAt.After(out[j].ScheduledAt)
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Count returns the number of stored logs.
func (r *DoseRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Logs)
}
