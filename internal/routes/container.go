package routes

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"medication-adherence-monitor/internal/authz"
	"medication-adherence-monitor/internal/clock"
	"medication-adherence-monitor/internal/config"
	"medication-adherence-monitor/internal/delivery/http/handler"
	"medication-adherence-monitor/internal/infrastructure/cache/redis"
	"medication-adherence-monitor/internal/infrastructure/database/postgres"
	"medication-adherence-monitor/internal/infrastructure/notify/email"
	"medication-adherence-monitor/internal/ingestion"
	"medication-adherence-monitor/internal/logger"
	"medication-adherence-monitor/internal/metrics"
	"medication-adherence-monitor/internal/usecase/device"
	"medication-adherence-monitor/internal/usecase/dose"
	"medication-adherence-monitor/internal/usecase/medication"
	"medication-adherence-monitor/internal/usecase/notification"
	"medication-adherence-monitor/internal/usecase/overview"
	"medication-adherence-monitor/internal/usecase/patient"
	"medication-adherence-monitor/internal/usecase/report"
	"medication-adherence-monitor/internal/usecase/user"
	pkgmqtt "medication-adherence-monitor/pkg/mqtt"
)

// Container holds the wired application graph.
type Container struct {
	Config  *config.Config
	DB      *postgres.DB
	Redis   *goredis.Client
	Metrics *metrics.Metrics
	Authz   *authz.Authorizer

	Users         *user.Service
	Patients      *patient.Service
	Medications   *medication.Service
	Doses         *dose.Service
	Reports       *report.Service
	Overview      *overview.Service
	Devices       *device.Service
	Notifications *notification.Service

	Processor *ingestion.Processor
	MQTT      *ingestion.MQTTIngestionClient
}

// NewContainer wires repositories, services and ingestion on top of db.
// Redis and MQTT are only touched when enabled in cfg.
func NewContainer(ctx context.Context, cfg *config.Config, db *postgres.DB) (*Container, error) {
	loc, err := cfg.Schedule.Location()
	if err != nil {
		return nil, err
	}

	az, err := authz.New()
	if err != nil {
		return nil, err
	}

	c := &Container{
		Config:  cfg,
		DB:      db,
		Metrics: metrics.New(),
		Authz:   az,
	}

	userRepo := postgres.NewUserRepository(db)
	refreshTokenRepo := postgres.NewRefreshTokenRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	deviceRepo := postgres.NewDeviceRepository(db)
	planRepo := postgres.NewMedicationRepository(db)
	doseRepo := postgres.NewDoseRepository(db)

	var locker dose.Locker
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.Redis = rdb
		locker = redis.NewLocker(rdb, 0, 0)
		logger.Info("Redis reconcile lock enabled", zap.String("addr", cfg.Redis.Addr))
	}

	var sender notification.Sender
	if cfg.SMTP.Enabled {
		sender = email.NewClient(cfg.SMTP)
	}
	c.Notifications = notification.NewService(patientRepo, userRepo, planRepo, sender, c.Metrics, loc)

	c.Users = user.NewService(userRepo, refreshTokenRepo, cfg)
	c.Patients = patient.NewService(userRepo, patientRepo, deviceRepo, db, clock.Real(), cfg.Device.OnlineThreshold)
	c.Medications = medication.NewService(planRepo, patientRepo, deviceRepo, db, clock.Real())
	c.Doses = dose.NewService(doseRepo, planRepo, patientRepo, deviceRepo, db, dose.Options{
		GraceWindow: cfg.Schedule.GraceWindow,
		RetryWindow: cfg.Schedule.RetryWindow,
		Horizon:     cfg.Schedule.Horizon,
		Location:    loc,
		Clock:       clock.Real(),
		Locker:      locker,
		Notifier:    c.Notifications,
		Metrics:     c.Metrics,
	})
	c.Reports = report.NewService(patientRepo, planRepo, doseRepo, clock.Real(), loc)
	c.Overview = overview.NewService(patientRepo, userRepo, planRepo, doseRepo, deviceRepo, overview.Options{
		OnlineThreshold: cfg.Device.OnlineThreshold,
		Location:        loc,
		Clock:           clock.Real(),
	})
	c.Devices = device.NewService(deviceRepo, clock.Real())

	c.Processor = ingestion.NewProcessor(c.Devices, c.Doses, ingestion.ProcessorConfig{
		WorkerCount: cfg.MQTT.Workers,
		BufferSize:  cfg.MQTT.BufferSize,
		Metrics:     c.Metrics,
	})
	if cfg.MQTT.Enabled {
		c.MQTT, err = ingestion.NewMQTTIngestionClient(&ingestion.MQTTIngestionConfig{
			ClientConfig: &pkgmqtt.Config{
				Broker:               cfg.MQTT.Broker,
				ClientID:             cfg.MQTT.ClientID,
				Username:             cfg.MQTT.Username,
				Password:             cfg.MQTT.Password,
				CleanSession:         true,
				KeepAlive:            60,
				ConnectTimeout:       10,
				AutoReconnect:        true,
				MaxReconnectInterval: time.Minute,
				Logger:               logger.Logger,
			},
			HeartbeatTopic: cfg.MQTT.HeartbeatTopic,
			DoseTopic:      cfg.MQTT.DoseTopic,
			QoS:            byte(cfg.MQTT.QoS),
		}, c.Processor)
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

// StartIngestion starts the worker pool and, when configured, subscribes to
// the device topics.
func (c *Container) StartIngestion() error {
	c.Processor.Start()
	if c.MQTT == nil {
		return nil
	}
	if err := c.MQTT.Start(); err != nil {
		c.Processor.Stop()
		return fmt.Errorf("failed to start mqtt ingestion: %w", err)
	}
	return nil
}

// Close stops ingestion, waits for queued notifications and releases Redis.
func (c *Container) Close() {
	if c.MQTT != nil {
		c.MQTT.Stop()
	}
	c.Processor.Stop()
	c.Notifications.Wait()

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Error("Failed to close redis client", zap.Error(err))
		}
	}
}

// Handlers builds the HTTP handlers over the container's services.
type Handlers struct {
	Auth       *handler.AuthHandler
	Medication *handler.MedicationHandler
	Dose       *handler.DoseHandler
	Report     *handler.ReportHandler
	Patient    *handler.PatientHandler
	Overview   *handler.OverviewHandler
	Hardware   *handler.HardwareHandler
}

func (c *Container) Handlers() *Handlers {
	return &Handlers{
		Auth:       handler.NewAuthHandler(c.Users),
		Medication: handler.NewMedicationHandler(c.Medications),
		Dose:       handler.NewDoseHandler(c.Doses),
		Report:     handler.NewReportHandler(c.Reports),
		Patient:    handler.NewPatientHandler(c.Patients),
		Overview:   handler.NewOverviewHandler(c.Overview),
		Hardware:   handler.NewHardwareHandler(c.Doses, c.Devices, c.Patients),
	}
}
