package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/feedad/kilusi-bill-sub000/config"
	"github.com/feedad/kilusi-bill-sub000/internal/app"
	"github.com/feedad/kilusi-bill-sub000/internal/isolir"
	"github.com/feedad/kilusi-bill-sub000/internal/netaction"
	"github.com/feedad/kilusi-bill-sub000/internal/notify"
	"github.com/feedad/kilusi-bill-sub000/internal/radiusd"
	"go.uber.org/zap"
)

var (
	configFile  = flag.String("c", "/etc/kilusibill.yml", "config file path")
	initDb      = flag.Bool("initdb", false, "drop and recreate all tables, then exit")
	isolirUser  = flag.String("isolir", "", "manually suspend one subscriber by username, then exit")
	restoreUser = flag.String("unisolir", "", "manually restore one subscriber by username, then exit")
)

func main() {
	flag.Parse()

	cfg := config.LoadConfig(*configFile)
	cfg.InitDirs()

	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	db := application.DB()

	if *initDb {
		application.InitDb()
		zap.S().Info("database initialized")
		return
	}

	// Enforcement wiring: group tables for radius mode, RouterOS API for
	// device mode. Modes come from sys_config and are parsed once.
	authMode, err := netaction.ParseAuthMode(application.GetSettingsStringValue(app.SettingsRadius, app.SettingsRadiusAuthMode))
	if err != nil {
		zap.S().Warnf("invalid auth_mode setting, using radius: %s", err)
		authMode = netaction.AuthRadius
	}
	monitorMode, err := netaction.ParseMonitorMode(application.GetSettingsStringValue(app.SettingsRadius, app.SettingsRadiusMonitorMode))
	if err != nil {
		zap.S().Warnf("invalid monitor_mode setting, using snmp: %s", err)
		monitorMode = netaction.MonitorSnmp
	}
	dispatcher := netaction.NewDispatcher(authMode, monitorMode,
		netaction.NewGormGroupStore(db), netaction.DialMikrotik)

	var billing isolir.BillingProvider = isolir.NullBillingProvider{}
	if cfg.Billing.Enabled {
		billing = isolir.NewHTTPBillingProvider(cfg.Billing.BaseURL, cfg.Billing.ApiKey)
	}

	bus := EventBus.New()
	engine := isolir.NewEngine(
		isolir.NewGormSubscriberStore(db),
		billing,
		dispatcher,
		application.IsolirSettings(),
		bus,
	)
	application.SetSweeper(func(ctx context.Context) string {
		report := engine.Sweep(ctx)
		return fmt.Sprintf("%d suspended, %d skipped, %d errors",
			report.Suspended, report.Skipped, report.Errors)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Manual one-shot operations
	if *isolirUser != "" {
		runManual(ctx, engine.Isolate, *isolirUser)
		return
	}
	if *restoreUser != "" {
		runManual(ctx, engine.Restore, *restoreUser)
		return
	}

	// WhatsApp notifications ride on the same database; skipped when the
	// session store cannot initialize.
	if sqlDB, derr := db.DB(); derr == nil {
		sender, werr := notify.NewWhatsAppSender(ctx, sqlDB, "postgres")
		if werr != nil {
			zap.S().Warnf("whatsapp sender unavailable: %s", werr)
		} else {
			if err := notify.NewNotifier(sender).Subscribe(bus); err != nil {
				zap.S().Errorf("notifier subscribe failed: %s", err)
			}
			go func() {
				if err := sender.Start(ctx); err != nil {
					zap.S().Warnf("whatsapp sender stopped: %s", err)
				}
			}()
		}
	}

	application.StartBackgroundJobs(ctx)

	errCh := make(chan error, 1)
	if cfg.Radiusd.Enabled {
		radiusService, err := radiusd.NewRadiusService(cfg,
			radiusd.NewGormNasRepository(db),
			radiusd.NewGormAuthRepository(db),
			radiusd.NewGormAcctRepository(db))
		if err != nil {
			zap.S().Fatalf("radius service init failed: %s", err)
		}
		go func() {
			errCh <- radiusService.Start(ctx)
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = radiusService.Shutdown(shutdownCtx)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		zap.S().Infof("received signal %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			zap.S().Errorf("radius service exited: %s", err)
		}
	}
	cancel()
}

func runManual(ctx context.Context, op func(context.Context, string, string) (isolir.Outcome, error), username string) {
	out, err := op(ctx, username, isolir.TriggerManual)
	if err != nil {
		zap.S().Fatalf("%s %s failed: %s", out.Action, username, err)
	}
	switch {
	case out.NoOp:
		zap.S().Infof("%s %s: already in requested state", out.Action, username)
	case out.Skipped:
		zap.S().Warnf("%s %s: skipped, no enforcement mechanism", out.Action, username)
	default:
		zap.S().Infof("%s %s: done via %s", out.Action, username, out.Mechanism)
	}
}
