package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
)

func TestJobStoreRoundTrip(t *testing.T) {
	store := NewObjectJobStore(newMemObjects())
	ctx := context.Background()

	job := &models.TrainingJob{
		ID:        "job-1",
		ModelType: models.ModelBoostedTree,
		Symbol:    "EURUSD",
		Mode:      models.TrainFull,
		Status:    models.JobPending,
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("save: %v", err)
	}

	job.Status = models.JobCompleted
	job.FinalAccuracy = 0.61
	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.JobCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.FinalAccuracy != 0.61 {
		t.Fatalf("final accuracy = %v", got.FinalAccuracy)
	}
}

func TestJobStoreGetUnknown(t *testing.T) {
	store := NewObjectJobStore(newMemObjects())
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, domrepo.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobStoreListNewestFirst(t *testing.T) {
	store := NewObjectJobStore(newMemObjects())
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		job := &models.TrainingJob{
			ID:        []string{"a", "b", "c", "d"}[i],
			ModelType: models.ModelRL,
			Symbol:    "EURUSD",
			Mode:      models.TrainIncremental,
			Status:    models.JobPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Save(ctx, job); err != nil {
			t.Fatalf("save %s: %v", job.ID, err)
		}
	}

	jobs, err := store.List(ctx, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("len = %d, want 3", len(jobs))
	}
	if jobs[0].ID != "d" || jobs[1].ID != "c" || jobs[2].ID != "b" {
		t.Fatalf("order = %s,%s,%s want d,c,b", jobs[0].ID, jobs[1].ID, jobs[2].ID)
	}
}
