package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"lingua-practice-service/internal/app"
	"lingua-practice-service/internal/domain"
	"lingua-practice-service/internal/evaluation"
	pginfra "lingua-practice-service/internal/infra/postgres"
	pgmigrations "lingua-practice-service/internal/infra/postgres/migrations"
	infraredis "lingua-practice-service/internal/infra/redis"
	"lingua-practice-service/internal/media"
)

func TestPracticeLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedLesson(t, ctx, pgURL, sampleLesson())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	lessons := infraredis.NewLessonRepository(redisClient, pginfra.NewLessonLoader(pool), 5*time.Minute)
	subs := pginfra.NewSubmissionRepository(pool)
	broker := media.NewBroker(
		func() media.CaptureDevice { return media.NewFakeCapture(media.Recording{}) },
		nil,
		zerolog.Nop(),
	)
	tracker := infraredis.NewSessionTracker(redisClient, 5*time.Minute)
	service := app.NewPracticeService(lessons, subs, evaluation.New(), broker, zerolog.Nop(),
		app.WithSessionTracker(tracker),
		app.WithSessionClockUnit(5*time.Millisecond))

	ctrl, err := service.OpenSession(ctx, "learner-1", "write-1")
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	if err := ctrl.FinalizeText(ctx, strings.Repeat("word ", 60)); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	sub, err := service.Submit(ctx, "learner-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Status != domain.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", sub.Status)
	}

	scores := map[domain.Criterion]float64{
		domain.CriterionGrammar:    8,
		domain.CriterionVocabulary: 7,
		domain.CriterionStructure:  9,
		domain.CriterionContent:    8,
		domain.CriterionCoherence:  6,
	}
	evaluated, err := service.Evaluate(ctx, sub.ID, scores, "good effort", "fix article use", "read more")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if evaluated.Status != domain.StatusEvaluated {
		t.Fatalf("expected evaluated, got %s", evaluated.Status)
	}
	if evaluated.Evaluation == nil || evaluated.Evaluation.TotalScore != 7.8 {
		t.Fatalf("expected total 7.8, got %+v", evaluated.Evaluation)
	}

	returned, err := service.ReturnSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if returned.Status != domain.StatusReturned {
		t.Fatalf("expected returned, got %s", returned.Status)
	}

	resubmitted, err := service.Resubmit(ctx, sub.ID)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if resubmitted.Status != domain.StatusResubmitted {
		t.Fatalf("expected resubmitted, got %s", resubmitted.Status)
	}

	// Re-evaluation after resubmission is always legal.
	if _, err := service.Evaluate(ctx, sub.ID, scores, "improved", "", ""); err != nil {
		t.Fatalf("re-evaluate: %v", err)
	}

	// Resubmit again: evaluated -> resubmitted is not in the graph, and the
	// stored record must be untouched by the rejected change.
	if _, err := service.Resubmit(ctx, sub.ID); err == nil {
		t.Fatalf("expected transition error")
	} else {
		var terr *domain.TransitionError
		if !errors.As(err, &terr) {
			t.Fatalf("expected TransitionError, got %v", err)
		}
	}
	current, err := service.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.Status != domain.StatusEvaluated {
		t.Fatalf("expected evaluated after rejected change, got %s", current.Status)
	}

	listed, err := service.ListSubmissions(ctx, domain.SubmissionFilter{LearnerID: "learner-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != sub.ID {
		t.Fatalf("expected one submission for learner-1, got %+v", listed)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "practice", "POSTGRES_PASSWORD": "practicepass", "POSTGRES_DB": "practicedb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://practice:practicepass@%s:%s/practicedb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedLesson(t *testing.T, ctx context.Context, dsn string, lesson domain.PracticeLesson) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(lesson)
	if err != nil {
		t.Fatalf("marshal lesson: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO lessons (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, lesson.ID, string(data)); err != nil {
		t.Fatalf("insert lesson: %v", err)
	}
}

func sampleLesson() domain.PracticeLesson {
	return domain.PracticeLesson{
		ID:                "write-1",
		Title:             "Describe your weekend",
		Prompt:            "Write a short paragraph about last weekend.",
		Modality:          domain.ModalityText,
		WriteLimitSeconds: 1000,
		MinWords:          50,
		MaxWords:          300,
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
