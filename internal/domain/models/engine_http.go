package models

// Requests for the control-plane HTTP endpoints. Defined in domain for
// consistency and reuse.

type CreateSessionRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,dive,required"`
}

type DecisionsRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

// LatestDecisionRequest reads one symbol's latest decision, or every traded
// symbol's when no symbol is given.
type LatestDecisionRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
}

type TrainRequest struct {
	ModelType string `json:"model_type" validate:"required,oneof=sequence attention boosted_tree rl"`
	Symbol    string `json:"symbol" validate:"required"`
	Mode      string `json:"mode" default:"fine_tune" validate:"oneof=full fine_tune incremental"`
}

type TrainingJobsRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

type ModelsRequest struct {
	Symbol    string `query:"symbol" json:"symbol" validate:"required"`
	ModelType string `query:"model_type" json:"model_type" validate:"omitempty,oneof=sequence attention boosted_tree rl"`
}
