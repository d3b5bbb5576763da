// poekeeperd keeps evacuation speakers powered while an audio
// monitoring session runs, driving PoE switch ports over each
// switch's web interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/evacnet/poekeeper/config"
	"github.com/evacnet/poekeeper/internal/adminapi"
	"github.com/evacnet/poekeeper/internal/app"
)

var version = "dev"

var (
	configFile  = flag.String("c", "/etc/poekeeper.yml", "config file path")
	initDb      = flag.Bool("initdb", false, "drop and recreate all tables, then exit")
	showVersion = flag.Bool("v", false, "print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("poekeeperd", version)
		return
	}

	cfg := config.LoadConfig(*configFile)
	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initDb {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	server := adminapi.NewAdminServer(application)
	errc := make(chan error, 1)
	go func() {
		errc <- server.Start()
	}()

	zap.L().Info("poekeeperd started", zap.String("version", version))

	select {
	case <-ctx.Done():
		zap.L().Info("shutdown signal received")
	case err := <-errc:
		if err != nil {
			zap.L().Error("admin api failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	server.Shutdown(10 * time.Second)

	// Leave no dangling web sessions on the switches.
	logoutCtx, logoutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	application.ClearAllSessions(logoutCtx)
	logoutCancel()

	zap.L().Info("poekeeperd stopped")
}
