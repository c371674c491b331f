package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/discord"

	"github.com/leeineian/singularity/internal/bot"
	"github.com/leeineian/singularity/internal/commands"
	"github.com/leeineian/singularity/internal/config"
	"github.com/leeineian/singularity/internal/logger"
	"github.com/leeineian/singularity/internal/permissions"
	"github.com/leeineian/singularity/internal/store"
	"github.com/leeineian/singularity/internal/worker"
)

const (
	msgBotStarting  = "Starting Singularity (%s)..."
	msgRegisterFail = "Failed to register commands: %v"
	shutdownTimeout = 10 * time.Second
)

func main() {
	// LogFatal panics so deferred cleanup runs before exit.
	defer func() {
		if r := recover(); r != nil {
			if msg, ok := r.(string); ok {
				fmt.Fprintf(os.Stderr, "\n[FATAL] %s\n", msg)
				os.Exit(1)
			}
			panic(r)
		}
	}()

	silent := flag.Bool("silent", false, "Disable all log output")
	skipReg := flag.Bool("skip-reg", false, "Skip command registration")
	clearAll := flag.Bool("clear-all", false, "Force command registration and clear stale guild commands")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.LogFatal("Failed to load config: %v", err)
	}
	logger.InitLogger(os.Stdout, *silent || cfg.Silent, cfg.Debug)
	logger.LogInfo(msgBotStarting, cfg.Env)

	lock, err := acquirePIDLock(pidFileName)
	if err != nil {
		logger.LogFatal("%v", err)
	}
	defer lock.Release()

	if err := run(cfg, *skipReg, *clearAll); err != nil {
		logger.LogFatal("%v", err)
	}
}

func run(cfg *config.Config, skipReg, clearAll bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	startedAt := time.Now()

	db, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	fileSink := logger.NewFileSink(cfg.LogDir, string(cfg.Env))
	hub := logger.NewHub(logger.HubOptions{File: fileSink})
	logger.LogInfo("Writing logs to %s", fileSink.Dir())
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = hub.Close(closeCtx)
	}()

	table, err := permissions.Load(cfg.PermissionsPath)
	if err != nil {
		return fmt.Errorf("failed to load command permissions: %w", err)
	}

	b, err := bot.New(ctx, bot.Options{
		Config:      cfg,
		Store:       db,
		Permissions: table,
		Hub:         hub,
		StartedAt:   startedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to create Discord client: %w", err)
	}

	workers := worker.NewRegistry()
	for _, d := range []worker.Descriptor{
		worker.Presence(b, b, startedAt),
		worker.LogRetention(fileSink, db, cfg.LogRetentionDays),
		worker.GatewayLatency(b),
	} {
		if err := workers.Register(d); err != nil {
			return err
		}
	}
	manager := worker.NewManager(workers, worker.Options{
		Logger:   hub.Error("WORKER"),
		Recorder: db,
	})
	b.Workers = manager

	err = commands.Register(b.Registry, commands.Deps{
		SupportInvite: cfg.SupportServerInvite,
		Workers:       manager,
		Self: func() (discord.User, bool) {
			u, ok := b.Client.Caches.SelfUser()
			return u.User, ok
		},
	})
	if err != nil {
		return err
	}

	if !skipReg {
		if err := b.SyncCommands(ctx, cfg.DevGuildID(), clearAll); err != nil {
			logger.LogError(msgRegisterFail, err)
		}
	} else {
		logger.LogInfo("Skipping command registration as requested.")
	}

	var metrics *http.Server
	if cfg.MetricsAddr != "" {
		metrics = b.MetricsServer(cfg.MetricsAddr)
		go func() {
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.LogError("Metrics server stopped: %v", err)
			}
		}()
	}

	if err := b.Open(ctx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if metrics != nil {
		_ = metrics.Shutdown(shutdownCtx)
	}
	b.Close(shutdownCtx)
	return nil
}
