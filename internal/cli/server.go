package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"lingua-practice-service/internal/app"
	"lingua-practice-service/internal/config"
	"lingua-practice-service/internal/domain"
	"lingua-practice-service/internal/evaluation"
	"lingua-practice-service/internal/infra/memory"
	pginfra "lingua-practice-service/internal/infra/postgres"
	redisinfra "lingua-practice-service/internal/infra/redis"
	"lingua-practice-service/internal/media"
	transport "lingua-practice-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the practice server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	lessonTTL := config.TTLDuration(cfg.Lesson.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.LessonLoader = memory.NewStaticLessonLoader(sampleLessons())
	if pool != nil {
		loader = pginfra.NewLessonLoader(pool)
	}

	var lessons app.LessonRepository
	if redisClient != nil {
		lessons = redisinfra.NewLessonRepository(redisClient, loader, lessonTTL)
	} else {
		lessons = memory.NewLessonRepository(loader, lessonTTL)
	}

	var subs app.SubmissionRepository = memory.NewSubmissionRepository()
	if pool != nil {
		subs = pginfra.NewSubmissionRepository(pool)
	}

	broker := media.NewBroker(
		func() media.CaptureDevice { return media.NewMicrophoneCapture(cfg.Media.Dir) },
		func() media.PlaybackController { return media.NewTimedPlayback(media.PCMFileDuration) },
		logger,
	)

	var opts []app.ServiceOption
	if redisClient != nil {
		opts = append(opts, app.WithSessionTracker(redisinfra.NewSessionTracker(redisClient, redisTTL)))
	}
	service := app.NewPracticeService(lessons, subs, evaluation.New(), broker, logger, opts...)

	wsHandler := transport.NewWSHandler(service, logger)
	subsHandler := transport.NewSubmissionsHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	subsHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("port", finalPort).Msg("starting practice service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

// sampleLessons provides a minimal lesson set for running without Postgres.
func sampleLessons() map[string]domain.PracticeLesson {
	return map[string]domain.PracticeLesson{
		"speak-intro": {
			ID:                 "speak-intro",
			Title:              "Introduce yourself",
			Prompt:             "Record a 60-second self-introduction.",
			Hints:              []string{"name", "hometown", "hobbies"},
			Modality:           domain.ModalitySpeech,
			PrepSeconds:        20,
			RecordLimitSeconds: 60,
		},
		"write-daily": {
			ID:                "write-daily",
			Title:             "Describe your day",
			Prompt:            "Write a short paragraph about a typical day.",
			Modality:          domain.ModalityText,
			WriteLimitSeconds: 600,
			MinWords:          50,
			MaxWords:          300,
			SampleAnswer:      "I usually wake up at seven and make coffee before work...",
		},
	}
}
