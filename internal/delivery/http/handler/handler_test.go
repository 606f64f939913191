package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"medication-adherence-monitor/internal/authz"
	"medication-adherence-monitor/internal/clock"
	"medication-adherence-monitor/internal/config"
	"medication-adherence-monitor/internal/middleware"
	"medication-adherence-monitor/internal/testutil"
	deviceUsecase "medication-adherence-monitor/internal/usecase/device"
	"medication-adherence-monitor/internal/usecase/dose"
	"medication-adherence-monitor/internal/usecase/medication"
	"medication-adherence-monitor/internal/usecase/overview"
	"medication-adherence-monitor/internal/usecase/patient"
	"medication-adherence-monitor/internal/usecase/report"
	"medication-adherence-monitor/internal/usecase/user"
	"medication-adherence-monitor/pkg/utils"
)

const (
	testSecret    = "handler-test-secret"
	testDeviceKey = "device-key"
)

// Wednesday, before the 08:00 dose.
var testNow = time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Data    json.RawMessage    `json:"data"`
	Error   string             `json:"error"`
	Details []utils.FieldError `json:"details"`
}

type testApp struct {
	t      *testing.T
	router *gin.Engine
	users  *testutil.UserRepo
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cfg := &config.Config{JWT: config.JWTConfig{Secret: testSecret, ExpiryHours: 1, RefreshExpiryHours: 1}}
	clk := clock.NewFixed(testNow)

	users := testutil.NewUserRepo()
	tokens := testutil.NewRefreshTokenRepo()
	patients := testutil.NewPatientRepo()
	devices := testutil.NewDeviceRepo()
	plans := testutil.NewPlanRepo()
	doses := testutil.NewDoseRepo()
	tx := testutil.NoopTx{}

	az, err := authz.New()
	if err != nil {
		t.Fatalf("authz.New: %v", err)
	}

	doseSvc := dose.NewService(doses, plans, patients, devices, tx, dose.Options{Location: time.UTC, Clock: clk})
	patientSvc := patient.NewService(users, patients, devices, tx, clk, 0)

	r := gin.New()
	api := r.Group("/api")
	requireAuth := middleware.AuthMiddleware(testSecret)
	NewAuthHandler(user.NewService(users, tokens, cfg)).RegisterRoutes(api, requireAuth)

	dashboard := api.Group("/dashboard")
	dashboard.Use(requireAuth)
	NewDoseHandler(doseSvc).RegisterRoutes(dashboard, az)
	NewReportHandler(report.NewService(patients, plans, doses, clk, time.UTC)).RegisterRoutes(dashboard, az)
	NewMedicationHandler(medication.NewService(plans, patients, devices, tx, clk)).RegisterRoutes(dashboard, az)
	NewPatientHandler(patientSvc).RegisterRoutes(dashboard, az)
	NewOverviewHandler(overview.NewService(patients, users, plans, doses, devices, overview.Options{
		Location: time.UTC,
		Clock:    clk,
	})).RegisterRoutes(dashboard, az)

	hw := NewHardwareHandler(doseSvc, deviceUsecase.NewService(devices, clk), patientSvc)
	hardware := api.Group("/hardware")
	hardware.Use(middleware.DeviceAuthMiddleware(testDeviceKey))
	hw.RegisterRoutes(hardware)
	deviceGroup := api.Group("/device")
	deviceGroup.Use(middleware.DeviceAuthMiddleware(testDeviceKey))
	hw.RegisterDeviceRoutes(deviceGroup)

	return &testApp{t: t, router: r, users: users}
}

func (a *testApp) request(method, path, bearer string, body interface{}) (int, envelope) {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			a.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code, env
}

func (a *testApp) signup(email, role string) string {
	a.t.Helper()

	status, env := a.request(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name":     "Test User",
		"email":    email,
		"password": "secret123",
		"role":     role,
	})
	if status != http.StatusCreated {
		a.t.Fatalf("signup %s: status %d (%s)", email, status, env.Error)
	}

	var auth user.AuthResponse
	decodeData(a.t, env, &auth)
	return auth.Token
}

func decodeData(t *testing.T, env envelope, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func addMetforminBody(slot int, times ...string) map[string]interface{} {
	return map[string]interface{}{
		"medicationName":     "Metformin",
		"medicationStrength": "500mg",
		"dosagePerIntake":    1,
		"slotIndex":          slot,
		"times":              times,
		"daysOfWeek":         []int{1, 2, 3, 4, 5, 6, 7},
		"startDate":          "2024-04-01T00:00:00Z",
		"stock":              map[string]int{"totalLoaded": 30, "remaining": 30},
	}
}

func TestAuth_SignupLoginAndConflicts(t *testing.T) {
	app := newTestApp(t)
	app.signup("pat@example.com", "patient")

	status, env := app.request(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Dup", "email": "pat@example.com", "password": "secret123",
	})
	if status != http.StatusConflict {
		t.Fatalf("duplicate signup: status %d (%s)", status, env.Error)
	}

	status, env = app.request(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "X", "email": "not-an-email", "password": "1",
	})
	if status != http.StatusBadRequest || len(env.Details) == 0 {
		t.Fatalf("invalid signup: status %d, details %v", status, env.Details)
	}

	status, _ = app.request(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "pat@example.com", "password": "wrong123",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("bad password: status %d", status)
	}

	status, env = app.request(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "PAT@example.com", "password": "secret123",
	})
	if status != http.StatusOK {
		t.Fatalf("login: status %d (%s)", status, env.Error)
	}

	var auth user.AuthResponse
	decodeData(t, env, &auth)
	status, env = app.request(http.MethodGet, "/api/auth/me", auth.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("me: status %d (%s)", status, env.Error)
	}
}

func TestDashboard_MedicineScheduleAndAdherence(t *testing.T) {
	app := newTestApp(t)
	token := app.signup("pat@example.com", "patient")

	status, env := app.request(http.MethodPost, "/api/dashboard/medicines", token, addMetforminBody(1, "08:00"))
	if status != http.StatusNotFound {
		t.Fatalf("add before onboarding: status %d (%s)", status, env.Error)
	}

	status, env = app.request(http.MethodPost, "/api/dashboard/device", token, map[string]interface{}{
		"deviceId": "DISP-001", "timezone": "UTC", "slotCount": 4,
	})
	if status != http.StatusCreated {
		t.Fatalf("register device: status %d (%s)", status, env.Error)
	}

	status, env = app.request(http.MethodPost, "/api/dashboard/medicines", token, addMetforminBody(1, "08:00"))
	if status != http.StatusCreated {
		t.Fatalf("add medicine: status %d (%s)", status, env.Error)
	}
	var med medication.MedicineResponse
	decodeData(t, env, &med)

	tests := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"occupied slot", addMetforminBody(1, "09:00"), http.StatusConflict},
		{"slot beyond device", addMetforminBody(5, "09:00"), http.StatusBadRequest},
		{"bad clock time", addMetforminBody(2, "25:00"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := app.request(http.MethodPost, "/api/dashboard/medicines", token, tt.body)
			if status != tt.want {
				t.Fatalf("status %d, want %d (%s)", status, tt.want, env.Error)
			}
		})
	}

	status, env = app.request(http.MethodGet, "/api/dashboard/schedule", token, nil)
	if status != http.StatusOK {
		t.Fatalf("schedule: status %d (%s)", status, env.Error)
	}
	var items []dose.ScheduleItem
	decodeData(t, env, &items)
	if len(items) != 1 || items[0].Persisted {
		t.Fatalf("expected one projected dose, got %+v", items)
	}
	wantID := fmt.Sprintf("%s_%d", med.ID, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC).UnixMilli())
	if items[0].ID != wantID {
		t.Errorf("item id = %q, want %q", items[0].ID, wantID)
	}

	status, env = app.request(http.MethodPatch, "/api/dashboard/doses/"+items[0].ID+"/mark-taken", token, nil)
	if status != http.StatusOK {
		t.Fatalf("mark taken: status %d (%s)", status, env.Error)
	}
	status, _ = app.request(http.MethodPatch, "/api/dashboard/doses/"+items[0].ID+"/mark-missed", token, nil)
	if status != http.StatusConflict {
		t.Fatalf("taken -> missed should conflict, got %d", status)
	}
	status, _ = app.request(http.MethodPatch, "/api/dashboard/doses/garbage/mark-taken", token, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("garbage ref: status %d", status)
	}

	status, env = app.request(http.MethodGet, "/api/dashboard/adherence", token, nil)
	if status != http.StatusOK {
		t.Fatalf("adherence: status %d (%s)", status, env.Error)
	}
	var rate struct {
		Taken int     `json:"taken"`
		Rate  float64 `json:"rate"`
	}
	decodeData(t, env, &rate)
	if rate.Taken != 1 || rate.Rate != 100 {
		t.Errorf("adherence = %+v", rate)
	}

	status, env = app.request(http.MethodPost, "/api/dashboard/medicines/"+med.ID.String()+"/refill", token, map[string]int{"amount": 5})
	if status != http.StatusOK {
		t.Fatalf("refill: status %d (%s)", status, env.Error)
	}
	status, _ = app.request(http.MethodPatch, "/api/dashboard/medications/"+med.ID.String()+"/refill", token, map[string]int{"amount": 0})
	if status != http.StatusBadRequest {
		t.Fatalf("zero refill: status %d", status)
	}
	status, _ = app.request(http.MethodPatch, "/api/dashboard/medicines/not-a-uuid", token, map[string]interface{}{})
	if status != http.StatusBadRequest {
		t.Fatalf("bad id: status %d", status)
	}
}

func TestDashboard_RoleGating(t *testing.T) {
	app := newTestApp(t)
	caretaker := app.signup("care@example.com", "caretaker")
	doctor := app.signup("doc@example.com", "doctor")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/dashboard/schedule", "", http.StatusUnauthorized},
		{"caretaker cannot list medicines", http.MethodGet, "/api/dashboard/medicines", caretaker, http.StatusForbidden},
		{"caretaker overview", http.MethodGet, "/api/dashboard/caretaker/overview", caretaker, http.StatusOK},
		{"doctor cannot read caretaker overview", http.MethodGet, "/api/dashboard/caretaker/overview", doctor, http.StatusForbidden},
		{"doctor overview", http.MethodGet, "/api/dashboard/doctor/overview", doctor, http.StatusOK},
		{"admin overview needs admin", http.MethodGet, "/api/dashboard/admin/overview", doctor, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := app.request(tt.method, tt.path, tt.token, nil)
			if status != tt.want {
				t.Fatalf("status %d, want %d (%s)", status, tt.want, env.Error)
			}
		})
	}
}

func TestDashboard_CareTeamLinks(t *testing.T) {
	app := newTestApp(t)
	patientToken := app.signup("pat@example.com", "patient")
	caretakerToken := app.signup("care@example.com", "caretaker")
	app.signup("doc@example.com", "doctor")

	status, env := app.request(http.MethodPost, "/api/dashboard/caretakers", patientToken, map[string]string{
		"email": "doc@example.com",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("linking a doctor as caretaker: status %d (%s)", status, env.Error)
	}

	status, env = app.request(http.MethodPost, "/api/dashboard/doctors", patientToken, map[string]string{
		"email": "doc@example.com",
	})
	if status != http.StatusCreated {
		t.Fatalf("add doctor: status %d (%s)", status, env.Error)
	}

	status, env = app.request(http.MethodPost, "/api/dashboard/caretaker/requests", caretakerToken, map[string]string{
		"email": "pat@example.com", "relationship": "daughter",
	})
	if status != http.StatusAccepted {
		t.Fatalf("request access: status %d (%s)", status, env.Error)
	}

	care, err := app.users.GetByEmail(context.Background(), "care@example.com")
	if err != nil {
		t.Fatalf("caretaker lookup: %v", err)
	}
	status, env = app.request(http.MethodPatch, "/api/dashboard/caretakers/"+care.ID.String()+"/approve", patientToken, nil)
	if status != http.StatusOK {
		t.Fatalf("approve: status %d (%s)", status, env.Error)
	}

	status, env = app.request(http.MethodGet, "/api/dashboard/caretaker/overview", caretakerToken, nil)
	if status != http.StatusOK {
		t.Fatalf("overview: status %d (%s)", status, env.Error)
	}
	var view overview.CaretakerOverview
	decodeData(t, env, &view)
	if len(view.Patients) != 1 {
		t.Fatalf("expected the approved patient, got %+v", view.Patients)
	}
}

func TestHardware(t *testing.T) {
	app := newTestApp(t)
	token := app.signup("pat@example.com", "patient")
	if status, env := app.request(http.MethodPost, "/api/dashboard/device", token, map[string]interface{}{
		"deviceId": "DISP-001", "timezone": "UTC", "slotCount": 4,
	}); status != http.StatusCreated {
		t.Fatalf("register device: status %d (%s)", status, env.Error)
	}
	if status, env := app.request(http.MethodPost, "/api/dashboard/medicines", token, addMetforminBody(2, "08:00")); status != http.StatusCreated {
		t.Fatalf("add medicine: status %d (%s)", status, env.Error)
	}

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		body   interface{}
		want   int
	}{
		{"missing device key", http.MethodGet, "/api/hardware/upcoming?deviceId=DISP-001", "", nil, http.StatusUnauthorized},
		{"wrong device key", http.MethodGet, "/api/hardware/upcoming?deviceId=DISP-001", "nope", nil, http.StatusUnauthorized},
		{"missing deviceId", http.MethodGet, "/api/hardware/upcoming", testDeviceKey, nil, http.StatusBadRequest},
		{"unknown device", http.MethodGet, "/api/hardware/upcoming?deviceId=DISP-404", testDeviceKey, nil, http.StatusNotFound},
		{"taken history", http.MethodGet, "/api/hardware/taken?deviceId=DISP-001", testDeviceKey, nil, http.StatusOK},
		{"invalid heartbeat", http.MethodPost, "/api/hardware/heartbeat", testDeviceKey, map[string]interface{}{"deviceId": "DISP-001", "batteryLevel": 150}, http.StatusBadRequest},
		{"device profile", http.MethodGet, "/api/device/DISP-001/profile", testDeviceKey, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := app.request(tt.method, tt.path, tt.key, tt.body)
			if status != tt.want {
				t.Fatalf("status %d, want %d (%s)", status, tt.want, env.Error)
			}
		})
	}

	status, env := app.request(http.MethodGet, "/api/hardware/upcoming?deviceId=DISP-001", testDeviceKey, nil)
	if status != http.StatusOK {
		t.Fatalf("upcoming: status %d (%s)", status, env.Error)
	}
	var upcoming []dose.DeviceDose
	decodeData(t, env, &upcoming)
	if len(upcoming) == 0 || upcoming[0].ScheduledTime != "08:00" || upcoming[0].Slot != 2 {
		t.Fatalf("upcoming = %+v", upcoming)
	}

	path := "/api/hardware/doses/" + upcoming[0].ID.String() + "/mark-dispensed"
	if status, env := app.request(http.MethodPatch, path, testDeviceKey, map[string]string{"deviceId": "DISP-001"}); status != http.StatusOK {
		t.Fatalf("mark dispensed: status %d (%s)", status, env.Error)
	}
	path = "/api/hardware/doses/" + upcoming[0].ID.String() + "/mark-taken?deviceId=DISP-001"
	if status, env := app.request(http.MethodPatch, path, testDeviceKey, nil); status != http.StatusOK {
		t.Fatalf("mark taken: status %d (%s)", status, env.Error)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/hardware/heartbeat", bytes.NewBufferString(`{"deviceId":"DISP-001","batteryLevel":80}`))
	req.Header.Set("Authorization", "Bearer "+testDeviceKey)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != `{"ok":true}` {
		t.Fatalf("heartbeat: %d %s", w.Code, w.Body.String())
	}
}
