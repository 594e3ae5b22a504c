package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/modelreg/upload-module/internal/config"
	"github.com/bigkaa/modelreg/upload-module/internal/database"
	"github.com/bigkaa/modelreg/upload-module/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
// Возвращает pgxpool.Pool, закрываемый через t.Cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("modelreg_test"),
		postgres.WithUsername("modelreg"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	cfg := &config.Config{
		DBHost:     host,
		DBPort:     port.Int(),
		DBUser:     "modelreg",
		DBPassword: "test-password",
		DBName:     "modelreg_test",
		DBSSLMode:  "disable",
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// pgTestFile создаёт файл с уникальным содержимым для вставки.
func pgTestFile(artifactID, seed string) *model.FinalizedFile {
	return &model.FinalizedFile{
		FileID:           uuid.New().String(),
		ArtifactID:       artifactID,
		Filename:         "model.bin",
		SizeBytes:        1024,
		SHA256:           strings.Repeat(seed[:1], 64),
		MD5:              strings.Repeat(seed[:1], 32),
		DownloadLocation: "/data/objects/" + seed,
		UploadedBy:       "test-user",
		UploadedAt:       time.Now().UTC(),
	}
}

func TestPostgresInsertAutoVersion(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewPostgres(pool)

	first := pgTestFile("artifact-pg-1", "a")
	if err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}
	if first.Version != 1 {
		t.Errorf("Версия первого файла: хотели 1, получили %d", first.Version)
	}

	second := pgTestFile("artifact-pg-1", "b")
	if err := repo.Insert(ctx, second); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}
	if second.Version != 2 {
		t.Errorf("Версия второго файла: хотели 2, получили %d", second.Version)
	}

	// Другой артефакт версионируется независимо
	other := pgTestFile("artifact-pg-2", "c")
	if err := repo.Insert(ctx, other); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}
	if other.Version != 1 {
		t.Errorf("Версия файла другого артефакта: хотели 1, получили %d", other.Version)
	}
}

func TestPostgresInsertExplicitVersion(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewPostgres(pool)

	f := pgTestFile("artifact-pg-3", "d")
	f.Version = 7
	if err := repo.Insert(ctx, f); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	got, err := repo.GetByID(ctx, f.FileID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Version != 7 {
		t.Errorf("Версия: хотели 7, получили %d", got.Version)
	}
}

func TestPostgresGetByID(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewPostgres(pool)

	f := pgTestFile("artifact-pg-4", "e")
	if err := repo.Insert(ctx, f); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	got, err := repo.GetByID(ctx, f.FileID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.FileID != f.FileID || got.ArtifactID != f.ArtifactID ||
		got.Filename != f.Filename || got.SizeBytes != f.SizeBytes ||
		got.SHA256 != f.SHA256 || got.MD5 != f.MD5 ||
		got.DownloadLocation != f.DownloadLocation || got.UploadedBy != f.UploadedBy {
		t.Errorf("Поля файла не совпали: хотели %+v, получили %+v", f, got)
	}

	if _, err := repo.GetByID(ctx, uuid.New().String()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID несуществующего файла: хотели ErrNotFound, получили %v", err)
	}
}

func TestPostgresFindBySHA256(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewPostgres(pool)

	// Две записи с одним дайджестом: ранняя — каноническая
	early := pgTestFile("artifact-pg-5", "f")
	early.UploadedAt = time.Now().UTC().Add(-time.Hour)
	if err := repo.Insert(ctx, early); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}
	late := pgTestFile("artifact-pg-6", "f")
	if err := repo.Insert(ctx, late); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	got, err := repo.FindBySHA256(ctx, early.SHA256)
	if err != nil {
		t.Fatalf("FindBySHA256() ошибка: %v", err)
	}
	if got.FileID != early.FileID {
		t.Errorf("FindBySHA256: хотели раннюю запись %s, получили %s", early.FileID, got.FileID)
	}

	if _, err := repo.FindBySHA256(ctx, strings.Repeat("0", 64)); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindBySHA256 неизвестного дайджеста: хотели ErrNotFound, получили %v", err)
	}
}

func TestPostgresListByArtifact(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewPostgres(pool)

	for _, seed := range []string{"1", "2", "3"} {
		if err := repo.Insert(ctx, pgTestFile("artifact-pg-7", seed)); err != nil {
			t.Fatalf("Insert() ошибка: %v", err)
		}
	}

	list, err := repo.ListByArtifact(ctx, "artifact-pg-7")
	if err != nil {
		t.Fatalf("ListByArtifact() ошибка: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("Количество файлов: хотели 3, получили %d", len(list))
	}
	// Новые версии первыми
	for i, want := range []int{3, 2, 1} {
		if list[i].Version != want {
			t.Errorf("list[%d].Version: хотели %d, получили %d", i, want, list[i].Version)
		}
	}

	empty, err := repo.ListByArtifact(ctx, "artifact-pg-none")
	if err != nil {
		t.Fatalf("ListByArtifact() пустого артефакта: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Пустой артефакт: хотели 0 файлов, получили %d", len(empty))
	}
}
