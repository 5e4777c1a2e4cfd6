package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradePilot/internal/domain/models"
	domsvc "TradePilot/internal/domain/service"
	"TradePilot/internal/repository"
)

type pipelineHarness struct {
	pipeline  *TrainingPipeline
	trainer   *fakeTrainer
	versions  *repository.ObjectVersionStore
	samples   *fakeSampleStore
	jobs      *repository.ObjectJobStore
	publisher *fakePublisher
	metrics   *nopMetrics
}

func newPipelineHarness(t *testing.T) *pipelineHarness {
	t.Helper()
	objects := newMemObjects()
	trainer := &fakeTrainer{
		result: &domsvc.TrainingResult{
			Weights:            &models.ModelWeights{ModelType: models.ModelSequence},
			History:            []models.EpochMetric{{Epoch: 1, Loss: 0.5, Accuracy: 0.6}},
			TrainingAccuracy:   0.7,
			ValidationAccuracy: 0.65,
			FinalAccuracy:      0.65,
		},
	}
	samples := newFakeSampleStore()
	samples.samples["EURUSD"] = risingSamples("EURUSD", 200, 100, 0.001)
	publisher := &fakePublisher{}
	metrics := newNopMetrics()
	versions := repository.NewObjectVersionStore(objects, testLogger(t))
	jobs := repository.NewObjectJobStore(objects)

	p := NewTrainingPipeline(testConfig(), trainer, versions, samples, jobs,
		&fakeTrainingLog{}, publisher, metrics, testLogger(t))
	return &pipelineHarness{
		pipeline:  p,
		trainer:   trainer,
		versions:  versions,
		samples:   samples,
		jobs:      jobs,
		publisher: publisher,
		metrics:   metrics,
	}
}

func (h *pipelineHarness) submitAndRun(t *testing.T, mode models.TrainingMode) *models.TrainingJob {
	t.Helper()
	ctx := context.Background()
	job, err := h.pipeline.Submit(ctx, models.ModelSequence, "EURUSD", mode)
	require.NoError(t, err)
	require.NoError(t, h.pipeline.Handle(ctx, trainingJobPayload{JobID: job.ID}))
	done, err := h.pipeline.Job(ctx, job.ID)
	require.NoError(t, err)
	return done
}

func TestSubmitEnqueuesPendingJob(t *testing.T) {
	h := newPipelineHarness(t)

	job, err := h.pipeline.Submit(context.Background(), models.ModelSequence, "EURUSD", models.TrainFull)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, 100, job.Params.Epochs)

	require.Len(t, h.publisher.messages, 1)
	assert.Equal(t, TrainingJobType, h.publisher.messages[0])

	stored, err := h.pipeline.Job(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, stored.Status)
}

func TestSubmitRejectsUnknownInputs(t *testing.T) {
	h := newPipelineHarness(t)
	ctx := context.Background()

	_, err := h.pipeline.Submit(ctx, models.ModelSequence, "", models.TrainFull)
	assert.Error(t, err)
	_, err = h.pipeline.Submit(ctx, models.ModelType("nonsense"), "EURUSD", models.TrainFull)
	assert.Error(t, err)
	_, err = h.pipeline.Submit(ctx, models.ModelSequence, "EURUSD", models.TrainingMode("sideways"))
	assert.Error(t, err)
	assert.Empty(t, h.publisher.messages)
}

func TestFirstTrainingRunPromotes(t *testing.T) {
	h := newPipelineHarness(t)

	job := h.submitAndRun(t, models.TrainFull)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.True(t, job.Promoted, "first version for a pair always promotes")
	assert.Equal(t, 1, job.ResultVersion)
	assert.InDelta(t, 0.65, job.FinalAccuracy, 1e-9)
	require.NotNil(t, job.FinishedAt)

	active, err := h.versions.Active(context.Background(), models.ModelSequence, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1, active.Version)
	assert.Equal(t, 1, h.metrics.jobs[string(models.JobCompleted)])
}

func TestCandidateBelowPromotionBarStaysStored(t *testing.T) {
	h := newPipelineHarness(t)

	// v1 promotes with validation accuracy 0.65
	h.submitAndRun(t, models.TrainFull)

	// v2 lands more than the 0.05 margin below the active bar
	h.trainer.result = &domsvc.TrainingResult{
		Weights:            &models.ModelWeights{ModelType: models.ModelSequence},
		TrainingAccuracy:   0.5,
		ValidationAccuracy: 0.5,
		FinalAccuracy:      0.5,
	}
	job := h.submitAndRun(t, models.TrainFull)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.False(t, job.Promoted)
	assert.Equal(t, 2, job.ResultVersion)

	ctx := context.Background()
	active, err := h.versions.Active(ctx, models.ModelSequence, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1, active.Version, "losing candidate never displaces the active version")

	// the candidate itself remains retrievable
	stored, err := h.versions.Get(ctx, models.ModelSequence, "EURUSD", 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, stored.ValidationAccuracy, 1e-9)
}

func TestCandidateWithinMarginPromotes(t *testing.T) {
	h := newPipelineHarness(t)
	h.submitAndRun(t, models.TrainFull)

	// 0.62 sits within the 0.05 margin of the 0.65 bar
	h.trainer.result = &domsvc.TrainingResult{
		Weights:            &models.ModelWeights{ModelType: models.ModelSequence},
		TrainingAccuracy:   0.62,
		ValidationAccuracy: 0.62,
		FinalAccuracy:      0.62,
	}
	job := h.submitAndRun(t, models.TrainFull)
	assert.True(t, job.Promoted)

	active, err := h.versions.Active(context.Background(), models.ModelSequence, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 2, active.Version)
}

func TestFineTuneWithoutPriorWeightsStillCompletes(t *testing.T) {
	h := newPipelineHarness(t)

	job := h.submitAndRun(t, models.TrainFineTune)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 30, job.Params.Epochs)

	req := h.trainer.request()
	require.NotNil(t, req)
	assert.Empty(t, req.PreviousWeightsID, "no active version to fine-tune from")
	assert.Nil(t, req.PreviousWeights)
}

func TestFineTuneCarriesActiveWeights(t *testing.T) {
	h := newPipelineHarness(t)
	h.submitAndRun(t, models.TrainFull)

	job := h.submitAndRun(t, models.TrainFineTune)
	assert.Equal(t, models.JobCompleted, job.Status)

	req := h.trainer.request()
	require.NotNil(t, req)
	assert.Equal(t, models.TrainFineTune, req.Mode)
	assert.NotEmpty(t, req.PreviousWeightsID)
	assert.NotNil(t, req.PreviousWeights)
}

func TestTrainingFailureIsTerminal(t *testing.T) {
	h := newPipelineHarness(t)
	h.submitAndRun(t, models.TrainFull)

	h.trainer.err = fmt.Errorf("diverged")
	ctx := context.Background()
	job, err := h.pipeline.Submit(ctx, models.ModelSequence, "EURUSD", models.TrainFull)
	require.NoError(t, err)

	// handler swallows training errors so the queue never retries them
	require.NoError(t, h.pipeline.Handle(ctx, trainingJobPayload{JobID: job.ID}))

	failed, err := h.pipeline.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, failed.Status)
	assert.Contains(t, failed.Error, "diverged")

	// the active version is untouched by the failed run
	active, aerr := h.versions.Active(ctx, models.ModelSequence, "EURUSD")
	require.NoError(t, aerr)
	assert.Equal(t, 1, active.Version)
	assert.Equal(t, 1, h.metrics.jobs[string(models.JobFailed)])
}

func TestInsufficientSamplesFailTheJob(t *testing.T) {
	h := newPipelineHarness(t)
	h.samples.samples["EURUSD"] = risingSamples("EURUSD", 10, 100, 0.001)

	ctx := context.Background()
	job, err := h.pipeline.Submit(ctx, models.ModelSequence, "EURUSD", models.TrainFull)
	require.NoError(t, err)
	require.NoError(t, h.pipeline.Handle(ctx, trainingJobPayload{JobID: job.ID}))

	failed, err := h.pipeline.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, failed.Status)
	assert.Contains(t, failed.Error, "insufficient training data")
}

func TestHandleSkipsNonPendingJobs(t *testing.T) {
	h := newPipelineHarness(t)

	job := h.submitAndRun(t, models.TrainFull)
	require.Equal(t, models.JobCompleted, job.Status)

	// re-delivery of a finished job is a no-op
	require.NoError(t, h.pipeline.Handle(context.Background(), trainingJobPayload{JobID: job.ID}))
	again, err := h.pipeline.Job(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, again.Status)
	assert.Equal(t, 1, h.trainer.trainCount())
}

func TestHandleReturnsErrorForUnknownJob(t *testing.T) {
	h := newPipelineHarness(t)
	err := h.pipeline.Handle(context.Background(), trainingJobPayload{JobID: "missing"})
	assert.Error(t, err, "job-store misses re-enter the retry machinery")
}

func TestOldVersionsArePruned(t *testing.T) {
	h := newPipelineHarness(t)

	for i := 0; i < 7; i++ {
		job := h.submitAndRun(t, models.TrainFull)
		require.Equal(t, models.JobCompleted, job.Status)
	}

	versions, err := h.versions.List(context.Background(), models.ModelSequence, "EURUSD")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(versions), 5, "keep_versions caps stored versions")
}
