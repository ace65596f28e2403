// internal/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	router "consult-core/internal/api"
	"consult-core/internal/api/handler"
	"consult-core/internal/config"
	"consult-core/internal/notify"
	"consult-core/internal/repository"
	"consult-core/internal/repository/postgres"
	"consult-core/internal/service"
	"consult-core/internal/timer"
	"consult-core/internal/util"
	"consult-core/pkg/db"
)

// Application holds all the initialized components of the application.
type Application struct {
	Config *config.AppConfig
	Logger *slog.Logger
	DB     *sqlx.DB

	// Repositories
	WalletRepository  repository.WalletAccountRepository
	LedgerRepository  repository.LedgerRepository
	SessionRepository repository.SessionRepository
	ThreadRepository  repository.ThreadRepository

	// Engine
	Notifier       notify.Notifier
	Timers         *timer.Supervisor
	WalletEngine   service.WalletEngine
	SessionService service.SessionService

	// HTTP API
	HTTPHandler http.Handler

	kafkaNotifier *notify.KafkaNotifier
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	return &Application{}
}

// Initialize initializes all application components.
func (app *Application) Initialize(ctx context.Context) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	app.Config = cfg

	// 2. Initialize Logger
	util.InitLogger()
	app.Logger = util.GetLogger()
	app.Logger.Info("Application configuration loaded successfully.")

	// 3. Connect to Database
	database, err := db.NewPostgresDB(app.Config.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = database
	app.Logger.Info("Database connection established.")

	// 4. Initialize Repositories
	app.WalletRepository = postgres.NewWalletAccountRepository(app.DB)
	app.LedgerRepository = postgres.NewLedgerRepository(app.DB)
	app.SessionRepository = postgres.NewSessionRepository(app.DB)
	app.ThreadRepository = postgres.NewThreadRepository(app.DB)
	app.Logger.Info("Repositories initialized.")

	// 5. Initialize Notification Port
	if app.Config.Kafka.Enabled() {
		kafkaNotifier, err := notify.NewKafkaNotifier(app.Config.Kafka.Brokers, app.Config.Kafka.Topic, app.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize kafka notifier: %w", err)
		}
		app.kafkaNotifier = kafkaNotifier
		app.Notifier = kafkaNotifier
		app.Logger.Info("Kafka notifier initialized.", "topic", app.Config.Kafka.Topic)
	} else {
		app.Notifier = notify.NewLogNotifier(app.Logger)
		app.Logger.Info("Log notifier initialized (no kafka brokers configured).")
	}

	// 6. Initialize Timer Supervisor and Services
	app.Timers = timer.NewSupervisor(app.Logger)
	app.WalletEngine = service.NewWalletEngine(
		app.DB, // This is the DBTxBeginner
		app.DB, // This is the DBExecutor
		app.WalletRepository,
		app.LedgerRepository,
		db.BeginTx,
		db.CommitTx,
		db.RollbackTx,
		app.Logger,
	)
	sessionService, err := service.NewSessionService(
		app.DB,
		app.DB,
		app.SessionRepository,
		app.ThreadRepository,
		app.WalletEngine,
		app.Timers,
		app.Notifier,
		app.Config.Engine,
		db.BeginTx,
		db.CommitTx,
		db.RollbackTx,
		app.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize session service: %w", err)
	}
	app.SessionService = sessionService
	// Timer firings re-enter the session state machine.
	app.Timers.SetHandler(app.SessionService.(timer.TransitionHandler))
	app.Logger.Info("Services initialized.")

	// 7. Recover timers for sessions that were live before a restart.
	if err := app.SessionService.RecoverTimers(ctx); err != nil {
		return fmt.Errorf("failed to recover session timers: %w", err)
	}

	// 8. Initialize HTTP Handlers and Router
	validate := validator.New()
	sessionHandler := handler.NewSessionHandler(app.SessionService, validate, app.Logger)
	walletHandler := handler.NewWalletHandler(app.WalletEngine, validate, app.Logger)
	app.HTTPHandler = router.NewRouter(sessionHandler, walletHandler, app.Logger)
	app.Logger.Info("HTTP router and handlers initialized.")

	return nil
}

// Shutdown gracefully shuts down application resources.
func (app *Application) Shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down application...")
	if app.Timers != nil {
		app.Timers.Shutdown()
		app.Logger.Info("Timer supervisor stopped.")
	}
	if app.kafkaNotifier != nil {
		if err := app.kafkaNotifier.Close(); err != nil {
			app.Logger.Error("Failed to close kafka notifier", "error", err)
		}
	}
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			app.Logger.Error("Failed to close database connection", "error", err)
			return fmt.Errorf("failed to close database connection: %w", err)
		}
		app.Logger.Info("Database connection closed.")
	}
	app.Logger.Info("Application shut down gracefully.")
	return nil
}
