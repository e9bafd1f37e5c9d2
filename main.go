package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"posevault/internal/backup"
	"posevault/internal/config"
	"posevault/internal/extractor"
	"posevault/internal/handler"
	"posevault/internal/notify"
	"posevault/internal/repository/bolt"
	"posevault/internal/repository/sqlite"
	"posevault/internal/service"
	"posevault/internal/task"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.LogFormat, cfg.LogLevel))

	// Structured store. Opening is lazy; readiness is probed in a bounded
	// retry loop, and the process keeps serving in degraded mode if the
	// store never comes up — database/sql re-dials on later queries.
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		slog.Error("open pose store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	startupCtx := context.Background()
	if err := db.WaitReady(startupCtx, cfg.StoreRetryAttempts, cfg.StoreRetryDelay); err != nil {
		slog.Warn("pose store not ready, continuing in degraded mode", "error", err)
	} else if err := db.Migrate(startupCtx); err != nil {
		slog.Error("run migrations", "error", err)
		os.Exit(1)
	} else {
		slog.Info("database migrations applied")
	}

	// Asset store. bbolt holds an exclusive file lock, so retry the open a
	// few times before giving up; without a handle there is nothing to
	// serve assets from.
	bdb := openAssetStore(cfg.AssetDBPath, cfg.StoreRetryAttempts, cfg.StoreRetryDelay)
	defer bdb.Close()

	notifier, err := notify.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom, cfg.MailTo)
	if err != nil {
		slog.Error("configure notifier", "error", err)
		os.Exit(1)
	}

	tasks := task.NewRunner(cfg.TaskWorkers, cfg.TaskQueue)

	engine := extractor.NewRunner(cfg.PythonBin, cfg.ScriptsDir, cfg.ExtractTimeout)
	verifyCtx, cancelVerify := context.WithTimeout(startupCtx, cfg.ExtractTimeout)
	if err := engine.Verify(verifyCtx); err != nil {
		slog.Warn("pose engine self-check failed, uploads will be rejected until it recovers", "error", err)
	} else {
		slog.Info("pose engine ready")
	}
	cancelVerify()

	builder := backup.NewBuilder(backup.BuilderConfig{
		Poses:      db.Poses(),
		Assets:     bdb.Assets(),
		Log:        db.ProcessingLog(),
		PoseStore:  db,
		AssetStore: bdb,
		UploadDir:  cfg.UploadDir,
		LogDir:     cfg.LogDir,
		ArchiveDir: cfg.ArchiveDir,
	})
	scheduler := backup.NewScheduler(builder, notifier, cfg.ArchiveDir, cfg.BackupSchedule, cfg.BackupRetention)
	if err := scheduler.Start(); err != nil {
		slog.Error("start backup scheduler", "error", err)
		os.Exit(1)
	}

	limiter := service.NewTokenBucket(cfg.IngestRate, cfg.IngestBurst)
	writer := service.NewRecordWriter(db.Poses(), bdb.Assets(), db.ProcessingLog())
	ingestion := service.NewIngestionService(service.IngestionConfig{
		Extractor:     engine,
		Writer:        writer,
		Log:           db.ProcessingLog(),
		Notifier:      notifier,
		Archiver:      scheduler,
		Tasks:         tasks,
		Limiter:       limiter,
		UploadDir:     cfg.UploadDir,
		MaxUploadSize: cfg.MaxUploadSize,
	})
	poseService := service.NewPoseService(db.Poses(), bdb.Assets(), db.ProcessingLog())

	tokens, err := service.NewTokenService(cfg.TokenSecret, 15*time.Minute)
	if err != nil {
		slog.Error("configure download tokens", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux,
		handler.NewPoseHandler(ingestion, poseService, cfg.MaxUploadSize),
		handler.NewBackupHandler(scheduler, tokens, cfg.ArchiveDir),
		handler.NewHealthHandler(db, bdb, engine),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.RequestLogger(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	scheduler.Stop()
	tasks.Shutdown(shutdownCtx)
	limiter.Close()
	slog.Info("server stopped")
}

func openAssetStore(path string, attempts int, delay time.Duration) *bolt.DB {
	for attempt := 1; ; attempt++ {
		bdb, err := bolt.New(path)
		if err == nil {
			return bdb
		}
		if attempt >= attempts {
			slog.Error("open asset store", "error", err)
			os.Exit(1)
		}
		slog.Warn("asset store open failed, retrying", "attempt", attempt, "error", err)
		time.Sleep(delay)
	}
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
