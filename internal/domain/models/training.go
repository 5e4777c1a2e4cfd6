package models

import "time"

type TrainingMode string

const (
	TrainFull        TrainingMode = "full"        // fresh weights
	TrainFineTune    TrainingMode = "fine_tune"   // reuse active weights, short run
	TrainIncremental TrainingMode = "incremental" // reuse active weights, shortest run
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

type Hyperparameters struct {
	Epochs         int     `json:"epochs"`
	LearningRate   float64 `json:"learning_rate"`
	BatchSize      int     `json:"batch_size"`
	SequenceLength int     `json:"sequence_length"`
	Patience       int     `json:"patience"` // early-stopping patience, 0 disables
}

// EpochMetric is one row of a job's loss/accuracy history.
type EpochMetric struct {
	Epoch    int     `json:"epoch"`
	Loss     float64 `json:"loss"`
	ValLoss  float64 `json:"val_loss"`
	Accuracy float64 `json:"accuracy"`
}

// TrainingJob tracks one retraining run from submission to a terminal state.
type TrainingJob struct {
	ID            string          `json:"id"`
	ModelType     ModelType       `json:"model_type"`
	Symbol        string          `json:"symbol"`
	Mode          TrainingMode    `json:"mode"`
	Params        Hyperparameters `json:"params"`
	Status        JobStatus       `json:"status"`
	History       []EpochMetric   `json:"history,omitempty"`
	FinalAccuracy float64         `json:"final_accuracy,omitempty"`
	ResultVersion int             `json:"result_version,omitempty"`
	Promoted      bool            `json:"promoted"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
}

// ModelVersion is one stored weight set for a (model type, symbol) pair.
// Exactly one version per pair is active at any time.
type ModelVersion struct {
	ModelType          ModelType `json:"model_type"`
	Symbol             string    `json:"symbol"`
	Version            int       `json:"version"`
	WeightsKey         string    `json:"weights_key"` // object-store path of the weights blob
	TrainingAccuracy   float64   `json:"training_accuracy"`
	ValidationAccuracy float64   `json:"validation_accuracy"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
}

// ModelWeights is the weights blob envelope: the type tag plus exactly one
// populated architecture payload.
type ModelWeights struct {
	ModelType ModelType         `json:"model_type"`
	Sequence  *SequenceWeights  `json:"sequence,omitempty"`
	Attention *AttentionWeights `json:"attention,omitempty"`
	Trees     *StumpEnsemble    `json:"trees,omitempty"`
	QNet      *QNetWeights      `json:"qnet,omitempty"`
}

// Clone deep-copies the envelope. Trainers mutate clones so stored blobs and
// caller-held references stay untouched.
func (w *ModelWeights) Clone() *ModelWeights {
	if w == nil {
		return nil
	}
	out := &ModelWeights{ModelType: w.ModelType}
	if w.Sequence != nil {
		out.Sequence = &SequenceWeights{
			InputW:  append([]float64(nil), w.Sequence.InputW...),
			HiddenW: cloneRows(w.Sequence.HiddenW),
			Bias:    append([]float64(nil), w.Sequence.Bias...),
			OutW:    cloneRows(w.Sequence.OutW),
			OutBias: append([]float64(nil), w.Sequence.OutBias...),
		}
	}
	if w.Attention != nil {
		out.Attention = &AttentionWeights{
			Query:   append([]float64(nil), w.Attention.Query...),
			KeyW:    append([]float64(nil), w.Attention.KeyW...),
			ValueW:  append([]float64(nil), w.Attention.ValueW...),
			OutW:    cloneRows(w.Attention.OutW),
			OutBias: append([]float64(nil), w.Attention.OutBias...),
		}
	}
	if w.Trees != nil {
		out.Trees = &StumpEnsemble{
			Bias:         w.Trees.Bias,
			LearningRate: w.Trees.LearningRate,
			Stumps:       append([]Stump(nil), w.Trees.Stumps...),
		}
	}
	if w.QNet != nil {
		out.QNet = &QNetWeights{
			W1: cloneRows(w.QNet.W1),
			B1: append([]float64(nil), w.QNet.B1...),
			W2: cloneRows(w.QNet.W2),
			B2: append([]float64(nil), w.QNet.B2...),
		}
	}
	return out
}

func cloneRows(rows [][]float64) [][]float64 {
	if rows == nil {
		return nil
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}

// SequenceWeights parameterize the recurrent cell chain: a tanh cell over
// the normalized price window plus a 3-class linear head.
type SequenceWeights struct {
	InputW  []float64   `json:"input_w"`  // hidden
	HiddenW [][]float64 `json:"hidden_w"` // hidden x hidden
	Bias    []float64   `json:"bias"`     // hidden
	OutW    [][]float64 `json:"out_w"`    // 3 x hidden
	OutBias []float64   `json:"out_bias"` // 3
}

// AttentionWeights parameterize scaled dot-product attention over the encoded
// window plus a 3-class linear head.
type AttentionWeights struct {
	Query   []float64   `json:"query"`    // d
	KeyW    []float64   `json:"key_w"`    // d, per-step key encoding
	ValueW  []float64   `json:"value_w"`  // d, per-step value encoding
	OutW    [][]float64 `json:"out_w"`    // 3 x d
	OutBias []float64   `json:"out_bias"` // 3
}

// Stump is one depth-1 regression tree over the feature vector.
type Stump struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      float64 `json:"left"`
	Right     float64 `json:"right"`
}

// StumpEnsemble is the boosted-tree model: bias plus learning-rate-scaled
// residual-correcting stumps.
type StumpEnsemble struct {
	Bias         float64 `json:"bias"`
	LearningRate float64 `json:"learning_rate"`
	Stumps       []Stump `json:"stumps"`
}

// QNetWeights parameterize the feed-forward Q-network producing per-action
// values for BUY/SELL/HOLD.
type QNetWeights struct {
	W1 [][]float64 `json:"w1"` // hidden x in
	B1 []float64   `json:"b1"` // hidden
	W2 [][]float64 `json:"w2"` // 3 x hidden
	B2 []float64   `json:"b2"` // 3
}
