package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/accounts"
	"github.com/maheshrc27/crosspost/internal/api"
	"github.com/maheshrc27/crosspost/internal/api/handlers"
	"github.com/maheshrc27/crosspost/internal/database"
	job "github.com/maheshrc27/crosspost/internal/jobs"
	"github.com/maheshrc27/crosspost/internal/ledger"
	"github.com/maheshrc27/crosspost/internal/notify"
	"github.com/maheshrc27/crosspost/internal/orchestrator"
	"github.com/maheshrc27/crosspost/internal/postqueue"
	"github.com/maheshrc27/crosspost/internal/queue"
	"github.com/maheshrc27/crosspost/internal/records"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/storage"
	"github.com/maheshrc27/crosspost/internal/validation"
	"github.com/maheshrc27/crosspost/internal/website"
	"github.com/maheshrc27/crosspost/internal/website/youtube"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the post queue loop and the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireSecretKey(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before starting")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.PostgresURI)
	if err != nil {
		return err
	}
	defer closeDB(db)

	if migrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	files, err := storage.NewR2Store(ctx, storage.R2Config{
		AccountID:  cfg.R2.AccountID,
		AccessKey:  cfg.R2.AccessKey,
		SecretKey:  cfg.R2.SecretKey,
		BucketName: cfg.R2.BucketName,
	})
	if err != nil {
		return err
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer rdb.Close()

	accountRepo := repository.NewAccountRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	recordRepo := repository.NewPostRecordRepository(db)
	eventRepo := repository.NewPostEventRepository(db)
	queueRepo := repository.NewPostQueueRepository(db)

	registry := website.NewRegistry(
		youtube.New(youtube.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			SecretKey:    []byte(cfg.SecretKey),
		}, accountRepo),
	)
	directory := accounts.NewDirectory(accountRepo)
	validator := validation.New(accountRepo, registry, files)

	postLedger := ledger.New(eventRepo)
	recordManager := records.NewManager(recordRepo, submissionRepo, accountRepo, postLedger)
	postQueue := postqueue.New(queueRepo, submissionRepo, recordRepo, validator, postqueue.NewCancellations())

	redisNotifier := notify.NewRedisNotifier(rdb, cfg.NotifyChannel)
	orch := orchestrator.New(orchestrator.Config{
		PollInterval:            cfg.PollInterval,
		DefaultPostTimeout:      cfg.DefaultPostTimeout,
		DefaultWaitBetweenPosts: cfg.DefaultWaitBetweenPosts,
		ParallelAccounts:        cfg.ParallelAccounts,
		MaxParallelAccounts:     cfg.MaxParallelAccounts,
	}, orchestrator.Deps{
		Queue:       postQueue,
		Records:     recordManager,
		Ledger:      postLedger,
		Submissions: submissionRepo,
		Directory:   directory,
		Registry:    registry,
		Files:       files,
		Notifier:    notify.Multi{notify.LogNotifier{}, redisNotifier},
	})

	events, unsubscribe := orch.Subscribe(256)
	defer unsubscribe()
	go notify.Forward(ctx, events, redisNotifier)

	// cron jobs
	loginRefreshJob := job.NewLoginRefreshJob(directory, registry, 0)
	c := cron.New()
	if err := c.AddFunc(cfg.LoginRefreshSpec, loginRefreshJob.RefreshLogins); err != nil {
		return fmt.Errorf("schedule login refresh: %w", err)
	}
	c.Start()
	defer c.Stop()

	// scheduled submissions
	scheduler := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: cfg.SchedulerConcurrency,
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeScheduleSubmission, queue.NewQueue(postQueue).HandleScheduleSubmissionTask)
	if err := scheduler.Start(mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	defer scheduler.Shutdown()

	app := api.NewApp(*cfg, api.Handlers{
		Queue:       handlers.NewQueueHandler(postQueue),
		Submissions: handlers.NewSubmissionHandler(submissionRepo, postLedger, recordManager, client),
	})

	errs := make(chan error, 2)
	go func() {
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()
	slog.Info("server is running", "addr", cfg.HTTPAddr)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs <- fmt.Errorf("post queue loop: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
		stop()
	}

	slog.Info("shutting down server")
	if err := app.Shutdown(); err != nil {
		slog.Error("failed to shut down http server", "error", err)
	}
	<-runDone

	slog.Info("server shutdown complete")
	return runErr
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
		return
	}
	slog.Info("database connection closed")
}
