package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benmeehan/devmon/internal/bus"
	"github.com/benmeehan/devmon/internal/checker"
	"github.com/benmeehan/devmon/internal/controllers"
	"github.com/benmeehan/devmon/internal/models"
	"github.com/benmeehan/devmon/internal/registry"
	"github.com/benmeehan/devmon/internal/service_registry"
	"github.com/benmeehan/devmon/internal/services"
	"github.com/benmeehan/devmon/internal/store"
	"github.com/benmeehan/devmon/internal/utils"
	"github.com/benmeehan/devmon/pkg/file"
	"github.com/benmeehan/devmon/pkg/logging"
	"github.com/benmeehan/devmon/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// Bootstrap logger until the configured one is built
	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	fileClient := file.NewFileService()

	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		bootLogger.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load configuration")
	}

	logger, err := logging.New(logging.Config{
		Level:      config.Logging.Level,
		File:       config.Logging.File,
		MaxSizeMB:  config.Logging.MaxSizeMB,
		MaxBackups: config.Logging.MaxBackups,
		Console:    config.Logging.Console,
	})
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("Failed to build logger")
	}
	logger = logger.With().Str("app", config.App.Name).Logger()

	if err := os.MkdirAll(config.App.DataDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("dir", config.App.DataDir).Msg("Failed to create data directory")
	}

	// Core instances: bus, store, registry, checker, scheduler. All explicit,
	// owned here, no package-level singletons.
	eventBus := bus.NewEventBus(logger)

	deviceStore := store.NewFileDeviceStore(config.Monitor.DevicesFile, fileClient, logger)
	deviceRegistry := registry.NewDeviceRegistry(deviceStore, eventBus, logger)
	if err := deviceRegistry.Load(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to load device registry")
	}

	tcpChecker := checker.NewTCPChecker(
		time.Duration(config.Monitor.DefaultTimeoutSeconds)*time.Second,
		config.Monitor.MaxConcurrency,
		logger,
	)

	scheduler := services.NewSchedulerService(logger)

	controller := controllers.NewMainController(
		eventBus,
		deviceRegistry,
		tcpChecker,
		scheduler,
		config.Monitor.DefaultTimeoutSeconds,
		config.Monitor.AutoCheck.Enabled,
		time.Duration(config.Monitor.AutoCheck.IntervalSeconds)*time.Second,
		logger,
	)

	serviceRegistry := service_registry.NewServiceRegistry(logger)
	serviceRegistry.RegisterService("scheduler", scheduler)
	serviceRegistry.RegisterService("controller", controller)

	if config.Telemetry.Enabled {
		telemetry := services.NewTelemetryService(
			eventBus,
			time.Duration(config.Telemetry.IntervalSeconds)*time.Second,
			&models.TelemetryConfig{
				MonitorCPU:        config.Telemetry.MonitorCPU,
				MonitorMemory:     config.Telemetry.MonitorMemory,
				MonitorGoroutines: config.Telemetry.MonitorGoroutines,
			},
			logger,
		)
		serviceRegistry.RegisterService("telemetry", telemetry)
	}

	var mqttClient *mqtt.MqttService
	if config.MQTT.Enabled {
		clientID := config.MQTT.ClientID + "-" + uuid.NewString()
		logger.Info().Str("client_id", clientID).Msg("Connecting to MQTT broker")

		mqttClient = mqtt.NewMqttService(fileClient)
		if err := mqttClient.Initialize(config.MQTT.Broker, clientID, config.MQTT.CACertificate); err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}

		gateway := services.NewMQTTGatewayService(eventBus, mqttClient, config.MQTT.TopicPrefix, config.MQTT.QOS, logger)
		serviceRegistry.RegisterService("mqtt_gateway", gateway)
	}

	if err := serviceRegistry.StartServices(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start services")
	}
	logger.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		logger.Error().Err(err).Msg("Errors while stopping services")
	}
	if mqttClient != nil {
		mqttClient.Disconnect(250)
	}
}
