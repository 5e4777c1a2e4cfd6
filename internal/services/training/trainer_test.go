package training

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/service"
	"TradePilot/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func zigzagSamples(n int) []models.MarketSample {
	out := make([]models.MarketSample, n)
	price := 100.0
	ts := time.Now().Add(-time.Duration(n) * time.Minute)
	for i := range out {
		if i%2 == 0 {
			price *= 1.02
		} else {
			price *= 0.99
		}
		out[i] = models.MarketSample{
			Symbol:    "BTCUSD",
			Bid:       price - 0.5,
			Ask:       price + 0.5,
			Volume:    1000 + float64(i%7)*10,
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func prevSequenceEnvelope() *models.ModelWeights {
	hidden := 4
	w := &models.SequenceWeights{
		InputW:  make([]float64, hidden),
		HiddenW: make([][]float64, hidden),
		Bias:    make([]float64, hidden),
		OutW:    make([][]float64, 3),
		OutBias: []float64{0.1, 0.2, 0.3},
	}
	for i := range w.HiddenW {
		w.HiddenW[i] = make([]float64, hidden)
	}
	for i := range w.OutW {
		w.OutW[i] = make([]float64, hidden)
	}
	w.InputW[0] = 0.5
	return &models.ModelWeights{ModelType: models.ModelSequence, Sequence: w}
}

func TestTrainFullSequence(t *testing.T) {
	tr := NewLocalTrainer(testLogger(t))

	res, err := tr.Train(context.Background(), service.TrainingRequest{
		ModelType: models.ModelSequence,
		Symbol:    "BTCUSD",
		Mode:      models.TrainFull,
		Samples:   zigzagSamples(120),
		Params:    models.Hyperparameters{Epochs: 5, LearningRate: 0.01, SequenceLength: 20},
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if res.Weights == nil || res.Weights.Sequence == nil {
		t.Fatalf("expected sequence weights in result")
	}
	if len(res.History) == 0 || len(res.History) > 5 {
		t.Fatalf("history length = %d, want 1..5", len(res.History))
	}
	if res.FinalAccuracy < 0 || res.FinalAccuracy > 1 {
		t.Fatalf("final accuracy = %v", res.FinalAccuracy)
	}
	if res.FinalAccuracy != res.ValidationAccuracy {
		t.Fatalf("final accuracy %v != validation accuracy %v", res.FinalAccuracy, res.ValidationAccuracy)
	}
	for i, m := range res.History {
		if m.Epoch != i+1 {
			t.Fatalf("history[%d].Epoch = %d", i, m.Epoch)
		}
		if math.IsNaN(m.Loss) || math.IsNaN(m.ValLoss) {
			t.Fatalf("NaN loss at epoch %d", m.Epoch)
		}
	}
}

func TestFineTuneWithoutPreviousFallsBackToFull(t *testing.T) {
	tr := NewLocalTrainer(testLogger(t))

	res, err := tr.Train(context.Background(), service.TrainingRequest{
		ModelType: models.ModelAttention,
		Symbol:    "ETHUSD",
		Mode:      models.TrainFineTune,
		Samples:   zigzagSamples(100),
		Params:    models.Hyperparameters{Epochs: 3, LearningRate: 0.01, SequenceLength: 15},
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if res.Weights == nil || res.Weights.Attention == nil {
		t.Fatalf("expected fresh attention weights")
	}
}

func TestFineTuneDoesNotMutatePrevious(t *testing.T) {
	tr := NewLocalTrainer(testLogger(t))
	prev := prevSequenceEnvelope()
	snapshot := append([]float64(nil), prev.Sequence.OutBias...)

	res, err := tr.Train(context.Background(), service.TrainingRequest{
		ModelType:       models.ModelSequence,
		Symbol:          "BTCUSD",
		Mode:            models.TrainFineTune,
		PreviousWeights: prev,
		Samples:         zigzagSamples(60),
		Params:          models.Hyperparameters{Epochs: 2, LearningRate: 0.05, SequenceLength: 10},
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	for i, v := range prev.Sequence.OutBias {
		if v != snapshot[i] {
			t.Fatalf("previous weights mutated at %d: %v -> %v", i, snapshot[i], v)
		}
	}
	if res.Weights == prev {
		t.Fatalf("result must not alias the previous envelope")
	}
}

func TestFineTuneEpochCap(t *testing.T) {
	tr := NewLocalTrainer(testLogger(t))

	res, err := tr.Train(context.Background(), service.TrainingRequest{
		ModelType:       models.ModelSequence,
		Symbol:          "BTCUSD",
		Mode:            models.TrainFineTune,
		PreviousWeights: prevSequenceEnvelope(),
		Samples:         zigzagSamples(60),
		Params:          models.Hyperparameters{Epochs: 500, LearningRate: 0.05, SequenceLength: 10, Patience: 500},
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if len(res.History) > defaultTuneEpochs {
		t.Fatalf("ran %d epochs, cap is %d", len(res.History), defaultTuneEpochs)
	}
}

func TestTrainRejectsShortHistory(t *testing.T) {
	tr := NewLocalTrainer(testLogger(t))

	_, err := tr.Train(context.Background(), service.TrainingRequest{
		ModelType: models.ModelSequence,
		Symbol:    "BTCUSD",
		Mode:      models.TrainFull,
		Samples:   zigzagSamples(20),
		Params:    models.Hyperparameters{SequenceLength: 60},
	})
	if err == nil {
		t.Fatalf("expected error for short history")
	}
}

func sepExamples(n int) []example {
	out := make([]example, n)
	for i := range out {
		x, label := 1.0, classBuy
		if i%2 == 1 {
			x, label = -1.0, classSell
		}
		out[i] = example{features: []float64{x}, label: label, move: x * 0.01, window: []float64{0}}
	}
	return out
}

func TestTrainTreeSeparableData(t *testing.T) {
	all := sepExamples(20)
	w := &models.ModelWeights{ModelType: models.ModelBoostedTree, Trees: newTreeWeights(0.5)}

	fit, err := trainTree(context.Background(), w, all[:16], all[16:], models.Hyperparameters{Epochs: 30})
	if err != nil {
		t.Fatalf("train tree: %v", err)
	}
	if fit.valAcc != 1 {
		t.Fatalf("val accuracy = %v, want 1 on separable data", fit.valAcc)
	}
	if len(fit.weights.Trees.Stumps) == 0 {
		t.Fatalf("expected fitted stumps")
	}
}

func TestTrainQNetRuns(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	w := &models.ModelWeights{ModelType: models.ModelRL, QNet: newQNetWeights(rng, 4)}

	all := make([]example, 30)
	for i := range all {
		x, move, label := 1.0, 0.02, classBuy
		if i%2 == 1 {
			x, move, label = -1.0, -0.02, classSell
		}
		all[i] = example{window: []float64{x, 0, 0, 0}, move: move, label: label}
	}

	fit, err := trainQNet(context.Background(), w, all[:24], all[24:], models.Hyperparameters{Epochs: 10, LearningRate: 0.05}, rng)
	if err != nil {
		t.Fatalf("train qnet: %v", err)
	}
	if len(fit.history) != 10 {
		t.Fatalf("history length = %d, want 10", len(fit.history))
	}
	for _, m := range fit.history {
		if math.IsNaN(m.Loss) || math.IsInf(m.Loss, 0) {
			t.Fatalf("bad loss at epoch %d: %v", m.Epoch, m.Loss)
		}
	}
}

func TestFitStumpSeparates(t *testing.T) {
	set := []example{
		{features: []float64{0}},
		{features: []float64{1}},
		{features: []float64{2}},
		{features: []float64{3}},
	}
	stump, ok := fitStump(set, []float64{-1, -1, 1, 1})
	if !ok {
		t.Fatalf("expected a stump")
	}
	if stump.Left != -1 || stump.Right != 1 {
		t.Fatalf("stump values %v/%v, want -1/1", stump.Left, stump.Right)
	}
	if stump.Threshold < 1 || stump.Threshold >= 2 {
		t.Fatalf("threshold %v does not separate the halves", stump.Threshold)
	}
}

func TestActionReward(t *testing.T) {
	if r := actionReward(classBuy, 0.02); !almostEq(r, 2.0) {
		t.Fatalf("buy on up move: %v, want 2", r)
	}
	if r := actionReward(classSell, 0.02); !almostEq(r, -2.0) {
		t.Fatalf("sell on up move: %v, want -2", r)
	}
	if r := actionReward(classHold, 0.5); !almostEq(r, -0.01) {
		t.Fatalf("hold: %v, want -0.01", r)
	}
}

func almostEq(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestClassifyMove(t *testing.T) {
	if classifyMove(0.001) != classBuy {
		t.Fatalf("up move not buy")
	}
	if classifyMove(-0.001) != classSell {
		t.Fatalf("down move not sell")
	}
	if classifyMove(0) != classHold || classifyMove(5e-6) != classHold {
		t.Fatalf("in-band move not hold")
	}
}

func TestResolveParams(t *testing.T) {
	p := resolveParams(models.TrainFull, models.Hyperparameters{})
	if p.Epochs != 100 || p.LearningRate != 0.001 || p.SequenceLength != 60 {
		t.Fatalf("full defaults wrong: %+v", p)
	}

	p = resolveParams(models.TrainFineTune, models.Hyperparameters{Epochs: 999})
	if p.Epochs != 30 || p.LearningRate != 0.0001 || p.Patience != 10 {
		t.Fatalf("fine-tune caps wrong: %+v", p)
	}

	p = resolveParams(models.TrainIncremental, models.Hyperparameters{})
	if p.Epochs != 20 {
		t.Fatalf("incremental cap wrong: %+v", p)
	}
}

func TestSplitDataset(t *testing.T) {
	train, val := splitDataset(make([]example, 10))
	if len(train) != 8 || len(val) != 2 {
		t.Fatalf("split %d/%d, want 8/2", len(train), len(val))
	}
}
