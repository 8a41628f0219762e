// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hardware-service/internal/config"
	"hardware-service/internal/database"
	"hardware-service/internal/driver"
	"hardware-service/internal/event"
	"hardware-service/internal/handler"
	"hardware-service/internal/model"
	"hardware-service/internal/registry"
	"hardware-service/internal/render"
	"hardware-service/internal/repository"
	"hardware-service/internal/routes"
	"hardware-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	bus      *event.Bus
	registry *registry.Registry

	deviceRepo      *repository.DeviceRepository
	transactionRepo *repository.TransactionRepository

	browser  *render.BrowserPrinter
	printers *driver.PrinterDriver
	scanners *driver.ScannerDriver
	drawers  *driver.DrawerDriver
	payments *driver.PaymentDriver

	monitorStop chan struct{}
}

func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Starting service",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	app := &Application{
		config:      cfg,
		logger:      logger,
		monitorStop: make(chan struct{}),
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := app.initializeRegistry(); err != nil {
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}
	app.initializeDrivers()
	app.initializeServer()

	return app, nil
}

// initializeDatabase connects the optional inventory store and migrates it.
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Device store disabled, running in memory")
		return nil
	}

	db, err := database.NewConnection(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(db, app.logger)
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.deviceRepo = repository.NewDeviceRepository(db, app.logger)
	app.transactionRepo = repository.NewTransactionRepository(db, app.logger)
	return nil
}

// initializeRegistry builds the event bus and device registry, reseeding from
// the store when one is configured.
func (app *Application) initializeRegistry() error {
	app.bus = event.NewBus(app.logger)
	go app.bus.Start()

	var store registry.Store
	if app.deviceRepo != nil {
		store = app.deviceRepo
	}
	app.registry = registry.New(app.bus, store, app.logger)

	if app.deviceRepo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		devices, err := app.deviceRepo.ListDevices(ctx)
		if err != nil {
			return fmt.Errorf("failed to load persisted devices: %w", err)
		}
		app.registry.Load(devices)
	}
	return nil
}

// initializeDrivers wires the four peripheral drivers over a shared
// transport factory.
func (app *Application) initializeDrivers() {
	factory := driver.DefaultTransportFactory
	app.browser = render.NewBrowserPrinter(app.logger)

	app.printers = driver.NewPrinterDriver(app.registry, app.bus, factory, app.logger,
		driver.WithPrinterTimeouts(app.config.Device.OperationTimeout, app.config.Device.ConnectTimeout),
		driver.WithRasterRenderer(app.browser),
	)
	app.scanners = driver.NewScannerDriver(app.registry, app.bus, factory, app.logger,
		driver.WithFlushDelay(app.config.Device.ScanFlushDelay),
	)
	app.drawers = driver.NewDrawerDriver(app.registry, app.bus, app.printers, factory, app.logger,
		driver.WithOpenDelay(app.config.Device.DrawerOpenDelay),
		driver.WithCloseDelay(app.config.Device.DrawerCloseDelay),
	)

	paymentOpts := []driver.PaymentOption{
		driver.WithCurrency(app.config.Printer.Currency),
	}
	if app.transactionRepo != nil {
		paymentOpts = append(paymentOpts, driver.WithTransactionStore(app.transactionRepo))
	}
	app.payments = driver.NewPaymentDriver(app.registry, app.bus, factory, app.logger, paymentOpts...)

	app.logger.Info("Drivers initialized")
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	deviceHandler := handler.NewDeviceHandler(app.registry, app.printers, &app.config.Printer, app.logger)
	operationHandler := handler.NewOperationHandler(
		app.printers, app.scanners, app.drawers, app.payments,
		app.transactionRepo, app.browser, app.logger,
	)
	healthHandler := handler.NewHealthHandler(app.database, app.registry, app.config, app.logger,
		app.printers, app.scanners, app.drawers, app.payments,
	)
	wsHandler := handler.NewWebSocketHandler(app.bus, app.logger)

	router := routes.NewRouter(
		app.config, app.logger,
		deviceHandler, operationHandler, healthHandler, wsHandler,
	).SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)
}

// startStatusMonitor periodically pings connected printers so dead transports
// surface as ERROR without waiting for the next print.
func (app *Application) startStatusMonitor() {
	interval := app.config.Device.HealthCheckInterval
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	app.logger.Info("Device status monitor started", zap.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			app.pingConnectedPrinters()
		case <-app.monitorStop:
			return
		}
	}
}

func (app *Application) pingConnectedPrinters() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, device := range app.registry.ListByKind(model.DeviceKindPrinter) {
		if !device.IsConnected() || !device.Enabled {
			continue
		}
		if err := app.printers.TestConnection(ctx, device.ID); err != nil {
			app.logger.Warn("Status ping failed",
				zap.String("device_id", device.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// waitForShutdown blocks until a termination signal arrives.
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	close(app.monitorStop)

	// Drivers flush their queues and drop transports before the bus stops.
	app.printers.Stop()
	app.scanners.Stop()
	app.drawers.Stop()
	app.payments.Stop()
	app.bus.Stop()

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

func (app *Application) Start() error {
	go func() {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	go app.startStatusMonitor()

	app.waitForShutdown()
	return nil
}
