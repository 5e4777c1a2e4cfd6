package training

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/service"
	"TradePilot/internal/services/inference"
	"TradePilot/pkg/logger"
)

// Mode defaults; request params override but the fine-tune and incremental
// epoch caps always apply.
const (
	defaultFullEpochs     = 100
	defaultFullLR         = 0.001
	defaultTuneEpochs     = 30
	defaultTuneLR         = 0.0001
	defaultIncrEpochs     = 20
	defaultPatience       = 10
	defaultSequenceLength = 60
)

// minExamples is the floor after windowing; fewer rows cannot produce a
// meaningful validation split.
const minExamples = 10

// LocalTrainer trains models in process. It implements the same boundary as
// the HTTP trainer, so the pipeline switches between them by config alone.
type LocalTrainer struct {
	log *logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

var _ service.TrainingService = (*LocalTrainer)(nil)

func NewLocalTrainer(log *logger.Logger) *LocalTrainer {
	return &LocalTrainer{
		log: log.Component("training"),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (t *LocalTrainer) seed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rng.Int63()
}

func (t *LocalTrainer) Train(ctx context.Context, req service.TrainingRequest) (*service.TrainingResult, error) {
	mode := req.Mode
	if mode != models.TrainFull && req.PreviousWeights == nil {
		t.log.Info("no previous weights, falling back to full training",
			logger.String("model_type", string(req.ModelType)),
			logger.String("symbol", req.Symbol),
			logger.String("mode", string(mode)))
		mode = models.TrainFull
	}
	p := resolveParams(mode, req.Params)

	all := buildDataset(req.Samples, p.SequenceLength)
	if len(all) < minExamples {
		return nil, fmt.Errorf("train %s/%s: %d examples from %d samples, need at least %d",
			req.ModelType, req.Symbol, len(all), len(req.Samples), minExamples)
	}
	trainSet, valSet := splitDataset(all)
	if len(trainSet) == 0 || len(valSet) == 0 {
		return nil, fmt.Errorf("train %s/%s: degenerate split", req.ModelType, req.Symbol)
	}

	rng := rand.New(rand.NewSource(t.seed()))
	w, err := startingWeights(req.ModelType, mode, req.PreviousWeights, p, rng)
	if err != nil {
		return nil, fmt.Errorf("train %s/%s: %w", req.ModelType, req.Symbol, err)
	}

	started := time.Now()
	var fit *fitResult
	switch req.ModelType {
	case models.ModelSequence:
		fit, err = trainHead(ctx, w, trainSet, valSet, p,
			func(win []float64) ([]float64, error) { return inference.EncodeSequence(w.Sequence, win) },
			func(m *models.ModelWeights) ([][]float64, []float64) { return m.Sequence.OutW, m.Sequence.OutBias })
	case models.ModelAttention:
		fit, err = trainHead(ctx, w, trainSet, valSet, p,
			func(win []float64) ([]float64, error) { return inference.EncodeAttention(w.Attention, win) },
			func(m *models.ModelWeights) ([][]float64, []float64) { return m.Attention.OutW, m.Attention.OutBias })
	case models.ModelBoostedTree:
		fit, err = trainTree(ctx, w, trainSet, valSet, p)
	case models.ModelRL:
		fit, err = trainQNet(ctx, w, trainSet, valSet, p, rng)
	default:
		return nil, fmt.Errorf("unknown model type %q", req.ModelType)
	}
	if err != nil {
		return nil, fmt.Errorf("train %s/%s: %w", req.ModelType, req.Symbol, err)
	}

	t.log.Info("training run finished",
		logger.String("model_type", string(req.ModelType)),
		logger.String("symbol", req.Symbol),
		logger.String("mode", string(mode)),
		logger.Int("epochs_run", len(fit.history)),
		logger.Float64("val_accuracy", fit.valAcc),
		logger.Duration("took", time.Since(started)))

	return &service.TrainingResult{
		Weights:            fit.weights,
		History:            fit.history,
		TrainingAccuracy:   fit.trainAcc,
		ValidationAccuracy: fit.valAcc,
		FinalAccuracy:      fit.valAcc,
	}, nil
}

func resolveParams(mode models.TrainingMode, p models.Hyperparameters) models.Hyperparameters {
	out := p
	if out.SequenceLength <= 0 {
		out.SequenceLength = defaultSequenceLength
	}
	switch mode {
	case models.TrainFineTune:
		if out.Epochs <= 0 || out.Epochs > defaultTuneEpochs {
			out.Epochs = defaultTuneEpochs
		}
		if out.LearningRate <= 0 {
			out.LearningRate = defaultTuneLR
		}
		if out.Patience <= 0 {
			out.Patience = defaultPatience
		}
	case models.TrainIncremental:
		if out.Epochs <= 0 || out.Epochs > defaultIncrEpochs {
			out.Epochs = defaultIncrEpochs
		}
		if out.LearningRate <= 0 {
			out.LearningRate = defaultTuneLR
		}
		if out.Patience <= 0 {
			out.Patience = defaultPatience
		}
	default:
		if out.Epochs <= 0 {
			out.Epochs = defaultFullEpochs
		}
		if out.LearningRate <= 0 {
			out.LearningRate = defaultFullLR
		}
	}
	return out
}

// startingWeights clones the previous blob for warm modes and initializes
// fresh weights for full runs. The clone keeps the stored blob untouched.
func startingWeights(mt models.ModelType, mode models.TrainingMode, prev *models.ModelWeights, p models.Hyperparameters, rng *rand.Rand) (*models.ModelWeights, error) {
	if mode != models.TrainFull {
		w := prev.Clone()
		w.ModelType = mt
		ok := (mt == models.ModelSequence && w.Sequence != nil) ||
			(mt == models.ModelAttention && w.Attention != nil) ||
			(mt == models.ModelBoostedTree && w.Trees != nil) ||
			(mt == models.ModelRL && w.QNet != nil)
		if !ok {
			return nil, fmt.Errorf("previous weights missing %s payload", mt)
		}
		return w, nil
	}

	w := &models.ModelWeights{ModelType: mt}
	switch mt {
	case models.ModelSequence:
		w.Sequence = newSequenceWeights(rng)
	case models.ModelAttention:
		w.Attention = newAttentionWeights(rng)
	case models.ModelBoostedTree:
		w.Trees = newTreeWeights(0.1)
	case models.ModelRL:
		w.QNet = newQNetWeights(rng, p.SequenceLength)
	default:
		return nil, fmt.Errorf("unknown model type %q", mt)
	}
	return w, nil
}
