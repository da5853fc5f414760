package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appchat "github.com/VozVule/local-knowledge/application/chat"
	appdocument "github.com/VozVule/local-knowledge/application/document"
	"github.com/VozVule/local-knowledge/domain/catalog"
	"github.com/VozVule/local-knowledge/domain/chat"
	infrapersistence "github.com/VozVule/local-knowledge/infrastructure/persistence"
	"github.com/VozVule/local-knowledge/infrastructure/provider"
	httpiface "github.com/VozVule/local-knowledge/interfaces/http"
	"github.com/VozVule/local-knowledge/internal/config"

	"github.com/sirupsen/logrus"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadYAML("")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	configureLogging(cfg.Logging)

	logrus.WithFields(logrus.Fields{
		"port":    cfg.Server.Port,
		"host":    cfg.Server.Host,
		"catalog": cfg.LLM.CatalogPath,
	}).Info("Starting local-knowledge")

	modelCatalog, err := catalog.LoadFile(cfg.LLM.CatalogPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load model catalog")
	}

	logrus.WithFields(logrus.Fields{
		"providers":        modelCatalog.Providers(),
		"default_provider": modelCatalog.DefaultProvider(),
		"default_model":    modelCatalog.DefaultModel(),
	}).Info("Model catalog loaded")

	dbManager := infrapersistence.NewDatabaseManager()
	if err := dbManager.Connect(ctx, cfg.Database.URL); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	if err := dbManager.Migrate(); err != nil {
		logrus.WithError(err).Fatal("Failed to run database migrations")
	}

	if cfg.Database.ResetModelConfig {
		err = infrapersistence.ResetModelConfig(ctx, dbManager.ModelConfigs(), modelCatalog)
	} else {
		_, err = infrapersistence.EnsureModelConfigSeeded(ctx, dbManager.ModelConfigs(), modelCatalog)
	}
	if err != nil {
		// app_config only gates model switching
		logrus.WithError(err).Warn("Failed to seed model config")
	}

	factory, err := provider.NewFactory(modelCatalog, provider.FactoryConfig{
		OllamaBaseURL:  cfg.LLM.OllamaBaseURL,
		RequestTimeout: cfg.LLM.RequestTimeout,
		CacheSize:      cfg.LLM.AdapterCacheSize,
		CircuitBreaker: provider.CircuitBreakerConfig{
			Enabled:          cfg.CircuitBreaker.Enabled,
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			Timeout:          cfg.CircuitBreaker.Timeout,
			MaxRequests:      cfg.CircuitBreaker.MaxRequests,
		},
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create adapter factory")
	}

	logrus.WithFields(logrus.Fields{
		"enabled":           cfg.CircuitBreaker.Enabled,
		"failure_threshold": cfg.CircuitBreaker.FailureThreshold,
		"timeout":           cfg.CircuitBreaker.Timeout,
	}).Info("Circuit breaker configured")

	var initial chat.ProviderAdapter
	if adapter, err := factory.Default(); err != nil {
		logrus.WithError(err).Warn("No default language model, chat is unavailable until one is configured")
	} else {
		initial = adapter
	}

	store := infrapersistence.NewMessageStore(dbManager.Messages(), dbManager.ModelConfigs(), dbManager)
	router := appchat.NewRouter(appchat.NewActiveAdapterBinding(initial))
	assembler := appchat.NewSessionAssembler(store)

	eventProcessor := infrapersistence.NewEventProcessor(dbManager.Exchanges(), cfg.Database.Workers, cfg.Database.BufferSize)
	if err := eventProcessor.Start(ctx); err != nil {
		logrus.WithError(err).Fatal("Failed to start event processor")
	}

	service := appchat.NewService(appchat.Dependencies{
		Router:    router,
		Assembler: assembler,
		Store:     store,
		Messages:  dbManager.Messages(),
		Configs:   dbManager.ModelConfigs(),
		Factory:   factory,
		Tracker:   infrapersistence.NewExchangeTracker(eventProcessor),
	})
	documents := appdocument.NewService(dbManager.Documents())

	ginRouter := httpiface.NewRouterWithPersistence(
		service,
		documents,
		cfg.Server.CorsOrigins,
		dbManager,
		eventProcessor,
		dbManager.Exchanges(),
	).SetupRoutes()

	address := cfg.Address()
	server := &http.Server{
		Addr:              address,
		Handler:           ginRouter,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		// model calls may take as long as the adapter timeout
		WriteTimeout: cfg.LLM.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for interrupt signal to trigger shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		logrus.WithField("address", address).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-c
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	} else {
		logrus.Info("Server shutdown complete")
	}

	if err := eventProcessor.Stop(); err != nil {
		logrus.WithError(err).Error("Failed to stop event processor")
	}

	if err := dbManager.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close database connection")
	}
}

func configureLogging(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	switch cfg.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logrus.SetReportCaller(cfg.ReportCaller)
}
