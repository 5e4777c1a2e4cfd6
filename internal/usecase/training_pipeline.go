package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	domsvc "TradePilot/internal/domain/service"
	"TradePilot/pkg/config"
	"TradePilot/pkg/logger"
	"TradePilot/pkg/queue"
)

// TrainingJobType is the queue message type training jobs travel under.
const TrainingJobType = "training.job"

type trainingJobPayload struct {
	JobID string `json:"job_id"`
}

// TrainingPipeline owns the retraining lifecycle: submission, the queued run,
// version promotion and pruning. It is the queue job handler for
// TrainingJobType messages. Training failures are terminal for the job; only
// payload and store errors bounce back into the queue's retry machinery.
type TrainingPipeline struct {
	trainer     domsvc.TrainingService
	versions    domrepo.VersionStore
	samples     domrepo.SampleStore
	jobs        domrepo.JobStore
	trainingLog domrepo.TrainingLog
	publisher   queue.QueueService
	metrics     domrepo.Metrics
	log         *logger.Logger

	historySamples  int
	keepVersions    int
	promotionMargin float64
	sequenceLength  int
	params          map[models.TrainingMode]models.Hyperparameters
}

func NewTrainingPipeline(
	cfg *config.Config,
	trainer domsvc.TrainingService,
	versions domrepo.VersionStore,
	samples domrepo.SampleStore,
	jobs domrepo.JobStore,
	trainingLog domrepo.TrainingLog,
	publisher queue.QueueService,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *TrainingPipeline {
	return &TrainingPipeline{
		trainer:         trainer,
		versions:        versions,
		samples:         samples,
		jobs:            jobs,
		trainingLog:     trainingLog,
		publisher:       publisher,
		metrics:         metrics,
		log:             log.Component("training_pipeline"),
		historySamples:  cfg.Training.HistorySamples,
		keepVersions:    cfg.Training.KeepVersions,
		promotionMargin: cfg.Training.PromotionMargin,
		sequenceLength:  cfg.Inference.SequenceLength,
		params: map[models.TrainingMode]models.Hyperparameters{
			models.TrainFull: {
				Epochs:         cfg.Training.Epochs,
				LearningRate:   cfg.Training.LearningRate,
				BatchSize:      cfg.Training.BatchSize,
				SequenceLength: cfg.Inference.SequenceLength,
			},
			models.TrainFineTune: {
				Epochs:         cfg.Training.FineTuneEpochs,
				LearningRate:   cfg.Training.FineTuneLearningRate,
				BatchSize:      cfg.Training.BatchSize,
				SequenceLength: cfg.Inference.SequenceLength,
				Patience:       cfg.Training.Patience,
			},
			models.TrainIncremental: {
				Epochs:         cfg.Training.IncrementalEpochs,
				LearningRate:   cfg.Training.FineTuneLearningRate,
				BatchSize:      cfg.Training.BatchSize,
				SequenceLength: cfg.Inference.SequenceLength,
				Patience:       cfg.Training.Patience,
			},
		},
	}
}

var _ queue.Job = (*TrainingPipeline)(nil)

// Submit creates a pending job and enqueues it for the workers.
func (p *TrainingPipeline) Submit(ctx context.Context, modelType models.ModelType, symbol string, mode models.TrainingMode) (*models.TrainingJob, error) {
	if symbol == "" {
		return nil, fmt.Errorf("submit training job: symbol is required")
	}
	if !validModelType(modelType) {
		return nil, fmt.Errorf("submit training job: unknown model type %q", modelType)
	}
	params, ok := p.params[mode]
	if !ok {
		return nil, fmt.Errorf("submit training job: unknown mode %q", mode)
	}

	job := &models.TrainingJob{
		ID:        uuid.NewString(),
		ModelType: modelType,
		Symbol:    symbol,
		Mode:      mode,
		Params:    params,
		Status:    models.JobPending,
		CreatedAt: time.Now(),
	}
	if err := p.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save training job: %w", err)
	}
	if err := p.publisher.PublishMessage(ctx, TrainingJobType, trainingJobPayload{JobID: job.ID}); err != nil {
		return nil, fmt.Errorf("enqueue training job: %w", err)
	}

	p.metrics.RecordTrainingJob(string(models.JobPending))
	p.log.Info("training job submitted",
		logger.String("job_id", job.ID),
		logger.String("model_type", string(modelType)),
		logger.String("symbol", symbol),
		logger.String("mode", string(mode)),
		logger.Any("params", job.Params))
	return job, nil
}

// Job returns a job by id.
func (p *TrainingPipeline) Job(ctx context.Context, id string) (*models.TrainingJob, error) {
	return p.jobs.Get(ctx, id)
}

// Jobs lists the most recent jobs.
func (p *TrainingPipeline) Jobs(ctx context.Context, limit int) ([]models.TrainingJob, error) {
	return p.jobs.List(ctx, limit)
}

func (p *TrainingPipeline) Name() string { return "training-runner" }

func (p *TrainingPipeline) Type() string { return TrainingJobType }

// Handle runs one queued training job. A returned error re-enters the queue's
// retry machinery, so only payload and job-store failures return one;
// everything downstream marks the job failed and returns nil.
func (p *TrainingPipeline) Handle(ctx context.Context, payload interface{}) error {
	parsed, err := queue.ParsePayload[trainingJobPayload](payload)
	if err != nil {
		return fmt.Errorf("parse training payload: %w", err)
	}
	job, err := p.jobs.Get(ctx, parsed.JobID)
	if err != nil {
		return fmt.Errorf("load training job %s: %w", parsed.JobID, err)
	}
	if job.Status != models.JobPending {
		p.log.Warn("skipping job not in pending state",
			logger.String("job_id", job.ID),
			logger.String("status", string(job.Status)))
		return nil
	}

	p.run(ctx, job)
	return nil
}

func (p *TrainingPipeline) run(ctx context.Context, job *models.TrainingJob) {
	started := time.Now()
	job.Status = models.JobRunning
	job.StartedAt = &started
	p.saveJob(ctx, job)

	samples, err := p.samples.LatestN(ctx, job.Symbol, p.historySamples)
	if err != nil {
		p.fail(ctx, job, fmt.Errorf("load training samples: %w", err))
		return
	}
	if len(samples) < p.sequenceLength+1 {
		p.fail(ctx, job, fmt.Errorf("insufficient training data: %d samples, need %d", len(samples), p.sequenceLength+1))
		return
	}

	req := domsvc.TrainingRequest{
		ModelType: job.ModelType,
		Symbol:    job.Symbol,
		Mode:      job.Mode,
		ModelID:   fmt.Sprintf("%s-%s", job.ModelType, job.Symbol),
		Samples:   samples,
		Params:    job.Params,
	}
	if job.Mode != models.TrainFull {
		req.PreviousWeightsID, req.PreviousWeights = p.previousWeights(ctx, job)
	}

	result, err := p.trainer.Train(ctx, req)
	if err != nil {
		p.fail(ctx, job, fmt.Errorf("train %s/%s: %w", job.ModelType, job.Symbol, err))
		return
	}

	version, err := p.versions.NextVersion(ctx, job.ModelType, job.Symbol)
	if err != nil {
		p.fail(ctx, job, fmt.Errorf("next version: %w", err))
		return
	}
	v := &models.ModelVersion{
		ModelType:          job.ModelType,
		Symbol:             job.Symbol,
		Version:            version,
		TrainingAccuracy:   result.TrainingAccuracy,
		ValidationAccuracy: result.ValidationAccuracy,
		CreatedAt:          time.Now(),
	}
	if err := p.versions.Save(ctx, v, result.Weights); err != nil {
		p.fail(ctx, job, fmt.Errorf("save version %d: %w", version, err))
		return
	}

	job.Promoted = p.maybePromote(ctx, job, version, result.FinalAccuracy)
	p.prune(ctx, job)

	finished := time.Now()
	job.Status = models.JobCompleted
	job.History = result.History
	job.FinalAccuracy = result.FinalAccuracy
	job.ResultVersion = version
	job.FinishedAt = &finished
	p.saveJob(ctx, job)

	if err := p.trainingLog.Record(ctx, job); err != nil {
		p.metrics.RecordError("persistence")
		p.log.Warn("training history write failed", logger.String("job_id", job.ID), logger.Error(err))
	}
	p.metrics.RecordTrainingJob(string(models.JobCompleted))
	p.log.Info("training job completed",
		logger.String("job_id", job.ID),
		logger.String("model_type", string(job.ModelType)),
		logger.String("symbol", job.Symbol),
		logger.Int("version", version),
		logger.Bool("promoted", job.Promoted),
		logger.Float64("final_accuracy", result.FinalAccuracy),
		logger.Duration("took", finished.Sub(started)))
}

// previousWeights resolves the active weights for fine-tune and incremental
// runs. Anything unavailable degrades to full training, never a failure.
func (p *TrainingPipeline) previousWeights(ctx context.Context, job *models.TrainingJob) (string, *models.ModelWeights) {
	active, err := p.versions.Active(ctx, job.ModelType, job.Symbol)
	if err != nil {
		if !errors.Is(err, domrepo.ErrNoActiveVersion) {
			p.log.Warn("active version lookup failed, training from scratch",
				logger.String("job_id", job.ID), logger.Error(err))
		}
		return "", nil
	}
	weights, err := p.versions.Weights(ctx, job.ModelType, job.Symbol, active.Version)
	if err != nil {
		p.log.Warn("active weights unavailable, training from scratch",
			logger.String("job_id", job.ID),
			logger.Int("version", active.Version),
			logger.Error(err))
		return "", nil
	}
	return active.WeightsKey, weights
}

// maybePromote activates the candidate when it beats the active version's
// accuracy within the promotion margin, or when no active version exists.
// A candidate that falls short stays stored for inspection.
func (p *TrainingPipeline) maybePromote(ctx context.Context, job *models.TrainingJob, version int, finalAccuracy float64) bool {
	active, err := p.versions.Active(ctx, job.ModelType, job.Symbol)
	switch {
	case err == nil:
		if finalAccuracy < active.ValidationAccuracy-p.promotionMargin {
			p.log.Info("candidate below promotion bar",
				logger.String("job_id", job.ID),
				logger.Int("version", version),
				logger.Float64("candidate_accuracy", finalAccuracy),
				logger.Float64("active_accuracy", active.ValidationAccuracy))
			return false
		}
	case errors.Is(err, domrepo.ErrNoActiveVersion):
		// first version for the pair always promotes
	default:
		p.log.Warn("promotion check failed, keeping candidate inactive",
			logger.String("job_id", job.ID), logger.Error(err))
		return false
	}

	if err := p.versions.Activate(ctx, job.ModelType, job.Symbol, version); err != nil {
		p.log.Warn("promotion failed",
			logger.String("job_id", job.ID),
			logger.Int("version", version),
			logger.Error(err))
		return false
	}
	return true
}

func (p *TrainingPipeline) prune(ctx context.Context, job *models.TrainingJob) {
	deleted, err := p.versions.Prune(ctx, job.ModelType, job.Symbol, p.keepVersions)
	if err != nil {
		p.log.Warn("version prune failed", logger.String("job_id", job.ID), logger.Error(err))
		return
	}
	if deleted > 0 {
		p.log.Debug("old versions pruned",
			logger.String("model_type", string(job.ModelType)),
			logger.String("symbol", job.Symbol),
			logger.Int("deleted", deleted))
	}
}

func (p *TrainingPipeline) fail(ctx context.Context, job *models.TrainingJob, err error) {
	finished := time.Now()
	job.Status = models.JobFailed
	job.Error = err.Error()
	job.FinishedAt = &finished
	p.saveJob(ctx, job)

	p.metrics.RecordTrainingJob(string(models.JobFailed))
	p.log.Error("training job failed",
		logger.String("job_id", job.ID),
		logger.String("model_type", string(job.ModelType)),
		logger.String("symbol", job.Symbol),
		logger.Error(err))
}

func (p *TrainingPipeline) saveJob(ctx context.Context, job *models.TrainingJob) {
	if err := p.jobs.Save(ctx, job); err != nil {
		p.metrics.RecordError("persistence")
		p.log.Warn("job state write failed", logger.String("job_id", job.ID), logger.Error(err))
	}
}

func validModelType(mt models.ModelType) bool {
	for _, known := range models.AllModelTypes() {
		if mt == known {
			return true
		}
	}
	return false
}
