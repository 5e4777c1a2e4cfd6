package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
)

// ObjectJobStore implements JobStore over an ObjectStore, one object per job
// at jobs/<id>.json. Saves overwrite the whole record on every status change.
type ObjectJobStore struct {
	objects domrepo.ObjectStore
}

func NewObjectJobStore(objects domrepo.ObjectStore) *ObjectJobStore {
	return &ObjectJobStore{objects: objects}
}

var _ domrepo.JobStore = (*ObjectJobStore)(nil)

func (s *ObjectJobStore) Save(ctx context.Context, job *models.TrainingJob) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("save job: missing id")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := s.objects.Put(ctx, s.path(job.ID), data, "application/json", map[string]string{
		"status": string(job.Status),
	}); err != nil {
		return fmt.Errorf("store job %s: %w", job.ID, err)
	}
	return nil
}

func (s *ObjectJobStore) Get(ctx context.Context, id string) (*models.TrainingJob, error) {
	data, err := s.objects.Get(ctx, s.path(id))
	if err != nil {
		if errors.Is(err, domrepo.ErrObjectNotFound) {
			return nil, domrepo.ErrJobNotFound
		}
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	var job models.TrainingJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// List returns jobs newest first, up to limit.
func (s *ObjectJobStore) List(ctx context.Context, limit int) ([]models.TrainingJob, error) {
	paths, err := s.objects.List(ctx, "jobs/")
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	out := make([]models.TrainingJob, 0, len(paths))
	for _, p := range paths {
		data, err := s.objects.Get(ctx, p)
		if err != nil {
			if errors.Is(err, domrepo.ErrObjectNotFound) {
				continue // deleted between list and get
			}
			return nil, fmt.Errorf("load job %s: %w", p, err)
		}
		var job models.TrainingJob
		if err := json.Unmarshal(data, &job); err != nil {
			continue // skip corrupt records
		}
		out = append(out, job)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ObjectJobStore) path(id string) string {
	return fmt.Sprintf("jobs/%s.json", id)
}
