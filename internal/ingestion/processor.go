package ingestion

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	domainDose "medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/logger"
	"medication-adherence-monitor/internal/metrics"
	deviceUsecase "medication-adherence-monitor/internal/usecase/device"
	doseUsecase "medication-adherence-monitor/internal/usecase/dose"
)

const (
	DefaultWorkerCount    = 4
	DefaultBufferSize     = 256
	DefaultMessageTimeout = 10 * time.Second
)

var ErrProcessorStopped = errors.New("ingestion processor stopped")

// HeartbeatRecorder stores device telemetry.
type HeartbeatRecorder interface {
	Heartbeat(ctx context.Context, req *deviceUsecase.HeartbeatRequest) (*deviceUsecase.HeartbeatResponse, error)
}

// DoseMarker applies a hardware dose transition.
type DoseMarker interface {
	MarkForDevice(ctx context.Context, m doseUsecase.DeviceMark) (*domainDose.Log, error)
}

type ProcessorConfig struct {
	WorkerCount    int
	BufferSize     int
	MessageTimeout time.Duration
	Metrics        *metrics.Metrics
}

type envelope struct {
	kind      string
	heartbeat *HeartbeatMessage
	dose      *DoseEventMessage
}

func (e envelope) deviceID() string {
	if e.heartbeat != nil {
		return e.heartbeat.DeviceID
	}
	return e.dose.DeviceID
}

// Processor fans decoded MQTT messages out to a fixed pool of workers.
type Processor struct {
	heartbeats HeartbeatRecorder
	doses      DoseMarker

	workerCount    int
	messageTimeout time.Duration
	queue          chan envelope

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool

	// Metrics
	tracker *MetricsTracker
	prom    *metrics.Metrics
}

// NewProcessor creates a new message processor
func NewProcessor(heartbeats HeartbeatRecorder, doses DoseMarker, cfg ProcessorConfig) *Processor {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = DefaultMessageTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		heartbeats:     heartbeats,
		doses:          doses,
		workerCount:    cfg.WorkerCount,
		messageTimeout: cfg.MessageTimeout,
		queue:          make(chan envelope, cfg.BufferSize),
		ctx:            ctx,
		cancel:         cancel,
		tracker:        NewMetricsTracker(),
		prom:           cfg.Metrics,
	}
}

// Start starts the processor workers
func (p *Processor) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	logger.Info("Ingestion processor started",
		zap.Int("workers", p.workerCount),
		zap.Int("buffer_size", cap(p.queue)),
		zap.String("event", "ingestion_started"),
	)
}

// Stop drains queued messages and waits for the workers. Messages that
// arrive afterwards are rejected.
func (p *Processor) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()

	snapshot := p.tracker.Snapshot()
	logger.Info("Ingestion processor stopped",
		zap.Int64("processed", snapshot.MessagesProcessed),
		zap.Int64("failed", snapshot.MessagesFailed),
		zap.Int64("dropped", snapshot.MessagesDropped),
		zap.String("event", "ingestion_stopped"),
	)
}

// ProcessHeartbeat queues a heartbeat for processing
func (p *Processor) ProcessHeartbeat(msg *HeartbeatMessage) error {
	if err := ValidateHeartbeat(msg); err != nil {
		p.fail(KindHeartbeat)
		return err
	}
	return p.enqueue(envelope{kind: KindHeartbeat, heartbeat: msg})
}

// ProcessDoseEvent queues a dose event for processing
func (p *Processor) ProcessDoseEvent(msg *DoseEventMessage) error {
	if err := ValidateDoseEvent(msg); err != nil {
		p.fail(KindDose)
		return err
	}
	return p.enqueue(envelope{kind: KindDose, dose: msg})
}

func (p *Processor) enqueue(e envelope) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrProcessorStopped
	}

	p.prom.IngestReceived(e.kind)
	select {
	case p.queue <- e:
		p.tracker.Update(func(m *IngestMetrics) {
			m.MessagesReceived++
			m.BufferSize = len(p.queue)
		})
		return nil
	default:
		logger.Warn("Ingestion buffer full, dropping message",
			zap.String("kind", e.kind),
			zap.String("device_id", e.deviceID()),
			zap.String("event", "ingestion_dropped"),
		)
		p.prom.IngestFailed(e.kind)
		p.tracker.Update(func(m *IngestMetrics) {
			m.MessagesDropped++
		})
		return nil
	}
}

func (p *Processor) worker(id int) {
	defer p.wg.Done()

	for e := range p.queue {
		start := time.Now()

		if err := p.handle(e); err != nil {
			logger.Warn("Failed to process ingestion message",
				zap.Int("worker", id),
				zap.String("kind", e.kind),
				zap.String("device_id", e.deviceID()),
				zap.Error(err),
				zap.String("event", "ingestion_failed"),
			)
			p.fail(e.kind)
			continue
		}

		elapsed := time.Since(start)
		p.tracker.Update(func(m *IngestMetrics) {
			m.MessagesProcessed++
			m.LastProcessedAt = time.Now()
			m.BufferSize = len(p.queue)
			if m.AverageProcessingTime == 0 {
				m.AverageProcessingTime = elapsed
			} else {
				m.AverageProcessingTime = (m.AverageProcessingTime + elapsed) / 2
			}
		})
	}
}

func (p *Processor) handle(e envelope) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.messageTimeout)
	defer cancel()

	switch e.kind {
	case KindHeartbeat:
		hb := e.heartbeat
		_, err := p.heartbeats.Heartbeat(ctx, &deviceUsecase.HeartbeatRequest{
			DeviceID:        hb.DeviceID,
			Status:          hb.Status,
			BatteryLevel:    hb.BatteryLevel,
			WifiStrength:    hb.WifiStrength,
			WifiConnected:   hb.WifiConnected,
			FirmwareVersion: hb.FirmwareVersion,
		})
		return err
	case KindDose:
		ev := e.dose
		_, err := p.doses.MarkForDevice(ctx, doseUsecase.DeviceMark{
			Ref:      ev.DoseID,
			Status:   domainDose.Status(ev.Status),
			DeviceID: ev.DeviceID,
			Reason:   ev.Reason,
			Source:   doseUsecase.SourceMQTT,
		})
		return err
	default:
		return errors.New("unknown message kind " + e.kind)
	}
}

func (p *Processor) fail(kind string) {
	p.prom.IngestFailed(kind)
	p.tracker.Update(func(m *IngestMetrics) {
		m.MessagesFailed++
	})
}

// GetMetrics returns current metrics
func (p *Processor) GetMetrics() IngestMetrics {
	return p.tracker.Snapshot()
}
