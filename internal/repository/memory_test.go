package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/modelreg/upload-module/internal/domain/model"
)

func testFile(id, artifactID, sha string) *model.FinalizedFile {
	return &model.FinalizedFile{
		FileID:           id,
		ArtifactID:       artifactID,
		Filename:         "model.bin",
		SizeBytes:        1024,
		SHA256:           sha,
		MD5:              "d41d8cd98f00b204e9800998ecf8427e",
		DownloadLocation: "blobs/aa/bb/" + sha,
		UploadedBy:       "alice",
		UploadedAt:       time.Now().UTC(),
	}
}

func TestInsertAssignsVersion(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()

	first := testFile("file-1", "art-1", "sha-1")
	if err := reg.Insert(ctx, first); err != nil {
		t.Fatalf("Insert вернул ошибку: %v", err)
	}
	if first.Version != 1 {
		t.Errorf("Version: хотели 1, получили %d", first.Version)
	}

	second := testFile("file-2", "art-1", "sha-2")
	if err := reg.Insert(ctx, second); err != nil {
		t.Fatalf("Insert вернул ошибку: %v", err)
	}
	if second.Version != 2 {
		t.Errorf("Version: хотели 2, получили %d", second.Version)
	}

	// Версии считаются в рамках артефакта.
	other := testFile("file-3", "art-2", "sha-3")
	if err := reg.Insert(ctx, other); err != nil {
		t.Fatalf("Insert вернул ошибку: %v", err)
	}
	if other.Version != 1 {
		t.Errorf("Version другого артефакта: хотели 1, получили %d", other.Version)
	}
}

func TestInsertExplicitVersion(t *testing.T) {
	reg := NewMemory()
	f := testFile("file-1", "art-1", "sha-1")
	f.Version = 7
	if err := reg.Insert(context.Background(), f); err != nil {
		t.Fatalf("Insert вернул ошибку: %v", err)
	}
	if f.Version != 7 {
		t.Errorf("Version: хотели 7, получили %d", f.Version)
	}
}

func TestGetByID(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()
	if err := reg.Insert(ctx, testFile("file-1", "art-1", "sha-1")); err != nil {
		t.Fatalf("Insert вернул ошибку: %v", err)
	}

	f, err := reg.GetByID(ctx, "file-1")
	if err != nil {
		t.Fatalf("GetByID вернул ошибку: %v", err)
	}
	if f.SHA256 != "sha-1" {
		t.Errorf("SHA256: хотели sha-1, получили %s", f.SHA256)
	}

	if _, err := reg.GetByID(ctx, "нет-такого"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID: хотели ErrNotFound, получили %v", err)
	}
}

func TestFindBySHA256(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()

	if _, err := reg.FindBySHA256(ctx, "sha-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindBySHA256 в пустом реестре: хотели ErrNotFound, получили %v", err)
	}

	if err := reg.Insert(ctx, testFile("file-1", "art-1", "sha-1")); err != nil {
		t.Fatalf("Insert вернул ошибку: %v", err)
	}
	if err := reg.Insert(ctx, testFile("file-2", "art-2", "sha-1")); err != nil {
		t.Fatalf("Insert вернул ошибку: %v", err)
	}

	// Возвращается самая ранняя (каноническая) запись.
	f, err := reg.FindBySHA256(ctx, "sha-1")
	if err != nil {
		t.Fatalf("FindBySHA256 вернул ошибку: %v", err)
	}
	if f.FileID != "file-1" {
		t.Errorf("FileID: хотели file-1, получили %s", f.FileID)
	}
}

func TestListByArtifact(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()
	for _, f := range []*model.FinalizedFile{
		testFile("file-1", "art-1", "sha-1"),
		testFile("file-2", "art-1", "sha-2"),
		testFile("file-3", "art-2", "sha-3"),
	} {
		if err := reg.Insert(ctx, f); err != nil {
			t.Fatalf("Insert вернул ошибку: %v", err)
		}
	}

	files, err := reg.ListByArtifact(ctx, "art-1")
	if err != nil {
		t.Fatalf("ListByArtifact вернул ошибку: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("ListByArtifact: хотели 2 файла, получили %d", len(files))
	}
	// Новые версии первыми.
	if files[0].Version != 2 || files[1].Version != 1 {
		t.Errorf("порядок версий: хотели [2 1], получили [%d %d]",
			files[0].Version, files[1].Version)
	}
}

func TestSnapshotsIndependent(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()
	if err := reg.Insert(ctx, testFile("file-1", "art-1", "sha-1")); err != nil {
		t.Fatalf("Insert вернул ошибку: %v", err)
	}

	f, _ := reg.GetByID(ctx, "file-1")
	f.Filename = "изменено"

	again, _ := reg.GetByID(ctx, "file-1")
	if again.Filename != "model.bin" {
		t.Error("мутация снимка видна в реестре")
	}
}
