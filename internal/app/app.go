package app

import (
	"context"
	"os"
	"time"
	_ "time/tzdata"

	evbus "github.com/asaskevich/EventBus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"github.com/evacnet/poekeeper/config"
	"github.com/evacnet/poekeeper/internal/domain"
	"github.com/evacnet/poekeeper/internal/inventory"
	"github.com/evacnet/poekeeper/internal/keepalive"
	"github.com/evacnet/poekeeper/internal/notify"
	"github.com/evacnet/poekeeper/internal/switchctl"
	"github.com/evacnet/poekeeper/pkg/metrics"
)

// Bus topics consumed from the audio detection pipeline.
const (
	TopicAudioDetected = "audio.detected"
	TopicAudioIdle     = "audio.idle"
)

type Application struct {
	appConfig     *config.AppConfig
	gormDB        *gorm.DB
	sched         *cron.Cron
	bus           evbus.Bus
	registry      *switchctl.Registry
	orchestrator  *switchctl.Orchestrator
	repo          *inventory.Repository
	coordinator   *keepalive.Coordinator
	mailer        *notify.Mailer
	configManager *ConfigManager
}

// Ensure Application implements all interfaces
var (
	_ DBProvider      = (*Application)(nil)
	_ ConfigProvider  = (*Application)(nil)
	_ ControlProvider = (*Application)(nil)
	_ AppContext      = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	cfg.InitDirs()
	a.initLogger(cfg)

	if err = metrics.InitMetrics(cfg.System.Workdir); err != nil {
		zap.S().Warn("Failed to initialize metrics:", err)
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	a.gormDB = getDatabase(cfg.Database, cfg.System.Workdir)
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}
	a.checkSettings()

	a.configManager = NewConfigManager(a)

	a.repo, err = inventory.NewRepository(a.gormDB)
	if err != nil {
		panic(err)
	}

	a.bus = evbus.New()
	a.registry = switchctl.NewRegistry(switchctl.Options{})
	a.orchestrator, err = switchctl.NewOrchestrator(a.registry, 16)
	if err != nil {
		panic(err)
	}
	a.mailer = notify.NewMailer(cfg.Smtp)

	a.coordinator = keepalive.NewCoordinator(a.repo, a.keepaliveToggler(), a.bus, keepalive.Config{
		Holdoff:  time.Duration(cfg.Keepalive.HoldoffSeconds) * time.Second,
		Simulate: cfg.Keepalive.Simulate,
	})
	a.subscribeAudioEvents()

	a.initJob()
}

func (a *Application) initLogger(cfg *config.AppConfig) {
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.OutputPaths = []string{"stdout"}
	if cfg.Logger.FileEnable {
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, cfg.Logger.Filename)
	}

	var logger *zap.Logger
	var err error
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		logger, err = zapConfig.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			panic(err)
		}
	}

	zap.ReplaceGlobals(logger)
}

func (a *Application) MigrateDB(track bool) error {
	if track {
		return a.gormDB.Debug().Migrator().AutoMigrate(domain.Tables...)
	}
	return a.gormDB.Migrator().AutoMigrate(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
		zap.S().Error(err)
	}
}

// ConfigMgr returns the configuration manager
func (a *Application) ConfigMgr() *ConfigManager {
	return a.configManager
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

func (a *Application) Bus() evbus.Bus {
	return a.bus
}

func (a *Application) Inventory() *inventory.Repository {
	return a.repo
}

func (a *Application) Registry() *switchctl.Registry {
	return a.registry
}

func (a *Application) Coordinator() *keepalive.Coordinator {
	return a.coordinator
}

// subscribeAudioEvents binds the detection pipeline to the keep-alive
// state machine. Detection bursts are harmless; the coordinator
// coalesces repeated enables itself.
func (a *Application) subscribeAudioEvents() {
	_ = a.bus.Subscribe(TopicAudioDetected, func() {
		a.coordinator.Enable()
	})
	_ = a.bus.Subscribe(TopicAudioIdle, func() {
		a.coordinator.Disable(false)
	})
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.coordinator != nil {
		a.coordinator.Stop()
	}
	if a.registry != nil {
		a.registry.Close(context.Background())
	}
	if a.orchestrator != nil {
		a.orchestrator.Close()
	}
	_ = metrics.Close()
	_ = zap.L().Sync()
}
