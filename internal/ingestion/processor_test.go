package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"

	domainDose "medication-adherence-monitor/internal/domain/dose"
	deviceUsecase "medication-adherence-monitor/internal/usecase/device"
	doseUsecase "medication-adherence-monitor/internal/usecase/dose"
	"medication-adherence-monitor/pkg/utils"
)

type fakeHeartbeats struct {
	mu   sync.Mutex
	reqs []*deviceUsecase.HeartbeatRequest
	err  error
}

func (f *fakeHeartbeats) Heartbeat(_ context.Context, req *deviceUsecase.HeartbeatRequest) (*deviceUsecase.HeartbeatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.reqs = append(f.reqs, req)
	return &deviceUsecase.HeartbeatResponse{OK: true}, nil
}

type fakeMarker struct {
	mu    sync.Mutex
	marks []doseUsecase.DeviceMark
}

func (f *fakeMarker) MarkForDevice(_ context.Context, m doseUsecase.DeviceMark) (*domainDose.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, m)
	return &domainDose.Log{Status: m.Status}, nil
}

func TestProcessor_DispatchesToHandlers(t *testing.T) {
	hb, marker := &fakeHeartbeats{}, &fakeMarker{}
	p := NewProcessor(hb, marker, ProcessorConfig{WorkerCount: 2, BufferSize: 8})
	p.Start()

	if err := p.ProcessHeartbeat(&HeartbeatMessage{DeviceID: "DISP-1", BatteryLevel: utils.IntPtr(80)}); err != nil {
		t.Fatal(err)
	}
	if err := p.ProcessDoseEvent(&DoseEventMessage{DeviceID: "DISP-1", DoseID: "abc", Status: "taken"}); err != nil {
		t.Fatal(err)
	}
	p.Stop()

	if len(hb.reqs) != 1 || hb.reqs[0].DeviceID != "DISP-1" || *hb.reqs[0].BatteryLevel != 80 {
		t.Errorf("heartbeat calls = %+v", hb.reqs)
	}
	if len(marker.marks) != 1 {
		t.Fatalf("dose calls = %+v", marker.marks)
	}
	m := marker.marks[0]
	if m.Ref != "abc" || m.Status != domainDose.StatusTaken || m.DeviceID != "DISP-1" || m.Source != doseUsecase.SourceMQTT {
		t.Errorf("mark = %+v", m)
	}

	got := p.GetMetrics()
	if got.MessagesReceived != 2 || got.MessagesProcessed != 2 || got.MessagesFailed != 0 {
		t.Errorf("metrics = %+v", got)
	}
}

func TestProcessor_Failures(t *testing.T) {
	hb := &fakeHeartbeats{err: errors.New("device not found")}
	p := NewProcessor(hb, &fakeMarker{}, ProcessorConfig{WorkerCount: 1, BufferSize: 4})
	p.Start()

	var verr *ValidationError
	if err := p.ProcessHeartbeat(&HeartbeatMessage{DeviceID: "DISP-1", BatteryLevel: utils.IntPtr(200)}); !errors.As(err, &verr) {
		t.Errorf("expected validation error, got %v", err)
	}
	if err := p.ProcessDoseEvent(&DoseEventMessage{DeviceID: "DISP-1", DoseID: "abc", Status: "missed"}); !errors.As(err, &verr) {
		t.Errorf("missed is not a hardware event: %v", err)
	}
	if err := p.ProcessHeartbeat(&HeartbeatMessage{DeviceID: "DISP-1"}); err != nil {
		t.Fatal(err)
	}
	p.Stop()

	if got := p.GetMetrics(); got.MessagesFailed != 3 || got.MessagesProcessed != 0 {
		t.Errorf("metrics = %+v", got)
	}

	if err := p.ProcessHeartbeat(&HeartbeatMessage{DeviceID: "DISP-1"}); !errors.Is(err, ErrProcessorStopped) {
		t.Errorf("expected ErrProcessorStopped, got %v", err)
	}
	p.Stop()
}

func TestProcessor_DropsWhenBufferFull(t *testing.T) {
	hb := &fakeHeartbeats{}
	p := NewProcessor(hb, &fakeMarker{}, ProcessorConfig{WorkerCount: 1, BufferSize: 1})

	for i := 0; i < 3; i++ {
		if err := p.ProcessHeartbeat(&HeartbeatMessage{DeviceID: "DISP-1"}); err != nil {
			t.Fatal(err)
		}
	}
	p.Start()
	p.Stop()

	got := p.GetMetrics()
	if got.MessagesDropped != 2 || got.MessagesProcessed != 1 || len(hb.reqs) != 1 {
		t.Errorf("metrics = %+v, calls = %d", got, len(hb.reqs))
	}
}
