package domain

// GenerationMode selects how an explanation is produced.
type GenerationMode string

const (
	// ModeOneShot generates a single explanation in one pass.
	ModeOneShot GenerationMode = "one-shot"

	// ModeSelfRefinement generates several independent drafts and then a
	// refinement pass, reporting per-draft progress along the way.
	ModeSelfRefinement GenerationMode = "self-refinement"
)

// Record is a single data instance: feature name to scalar value.
type Record map[string]any

// GenerationRequest asks for a narrative explanation of a counterfactual.
// It is immutable once submitted.
type GenerationRequest struct {
	Dataset        string         `json:"dataset"`
	Model          string         `json:"model"`
	Factual        Record         `json:"factual"`
	Counterfactual Record         `json:"counterfactual"`
	GenerationType GenerationMode `json:"generation_type,omitempty"`
	UseRefiner     bool           `json:"use_refiner,omitempty"`
	FineTuned      *bool          `json:"fine_tuned,omitempty"`
	Temperature    *float64       `json:"temperature,omitempty"`
	TopP           *float64       `json:"top_p,omitempty"`
	MaxTokens      *int           `json:"max_tokens,omitempty"`
}

// Sampling defaults and bounds, matching the documented request contract.
const (
	DefaultTemperature = 0.6
	DefaultTopP        = 0.8
	DefaultMaxTokens   = 4096
	MaxTokensLimit     = 8192
)

// GenerationParams are the resolved sampling parameters for one request.
type GenerationParams struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	FineTuned   bool
}

// Params resolves the request's optional sampling fields against defaults.
func (r *GenerationRequest) Params() GenerationParams {
	p := GenerationParams{
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		MaxTokens:   DefaultMaxTokens,
		FineTuned:   true,
	}
	if r.Temperature != nil {
		p.Temperature = *r.Temperature
	}
	if r.TopP != nil {
		p.TopP = *r.TopP
	}
	if r.MaxTokens != nil {
		p.MaxTokens = *r.MaxTokens
	}
	if r.FineTuned != nil {
		p.FineTuned = *r.FineTuned
	}
	return p
}

// Validate rejects request-setup errors before any generation work starts.
func (r *GenerationRequest) Validate() error {
	switch {
	case r.Dataset == "":
		return NewAPIError(ErrorTypeInvalidRequest, "dataset is required").WithParam("dataset")
	case r.Model == "":
		return NewAPIError(ErrorTypeInvalidRequest, "model is required").WithParam("model")
	case len(r.Factual) == 0:
		return NewAPIError(ErrorTypeInvalidRequest, "factual instance is required").WithParam("factual")
	case len(r.Counterfactual) == 0:
		return NewAPIError(ErrorTypeInvalidRequest, "counterfactual instance is required").WithParam("counterfactual")
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return NewAPIError(ErrorTypeInvalidRequest, "temperature must be between 0 and 2").WithParam("temperature")
	}
	if r.TopP != nil && (*r.TopP < 0 || *r.TopP > 1) {
		return NewAPIError(ErrorTypeInvalidRequest, "top_p must be between 0 and 1").WithParam("top_p")
	}
	if r.MaxTokens != nil && (*r.MaxTokens < 1 || *r.MaxTokens > MaxTokensLimit) {
		return NewAPIError(ErrorTypeInvalidRequest, "max_tokens must be between 1 and 8192").WithParam("max_tokens")
	}
	if r.GenerationType != "" && r.GenerationType != ModeOneShot && r.GenerationType != ModeSelfRefinement {
		return NewAPIError(ErrorTypeInvalidRequest, "generation_type must be one-shot or self-refinement").WithParam("generation_type")
	}
	return nil
}

// Mode returns the effective generation mode.
func (r *GenerationRequest) Mode() GenerationMode {
	if r.GenerationType == "" {
		return ModeOneShot
	}
	return r.GenerationType
}

// DraftState is the lifecycle state of one draft.
type DraftState string

const (
	DraftPending DraftState = "pending"
	DraftLoading DraftState = "loading"
	DraftSuccess DraftState = "success"
	DraftFailed  DraftState = "failed"
)

// Terminal reports whether the state can no longer change for this request.
func (s DraftState) Terminal() bool {
	return s == DraftSuccess || s == DraftFailed
}

// DraftStatus is the observable status of one candidate draft.
// Ranking is present only once the draft has succeeded.
type DraftStatus struct {
	Index   int            `json:"index"`
	Status  DraftState     `json:"status"`
	Ranking map[string]int `json:"ranking,omitempty"`
}

// NewDraftList returns n drafts, all pending. The list length is fixed for
// the lifetime of a request.
func NewDraftList(n int) []DraftStatus {
	drafts := make([]DraftStatus, n)
	for i := range drafts {
		drafts[i] = DraftStatus{Index: i, Status: DraftPending}
	}
	return drafts
}

// FeatureChange records one feature's factual and counterfactual values.
type FeatureChange struct {
	Factual        any `json:"factual"`
	Counterfactual any `json:"counterfactual"`
}

// TargetChange records the detected target-variable flip, if any.
type TargetChange struct {
	Variable       string `json:"variable,omitempty"`
	Factual        any    `json:"factual,omitempty"`
	Counterfactual any    `json:"counterfactual,omitempty"`
}

// Metrics are the validation metrics for one generated explanation.
type Metrics struct {
	// JSONParsingSuccess reports whether structured output could be parsed.
	JSONParsingSuccess bool `json:"json_parsing_success"`
	// PFF: the model captured exactly the ground-truth feature changes.
	PFF bool `json:"pff"`
	// TF: the target-variable change was captured correctly.
	TF bool `json:"tf"`
	// AvgFF: fraction of ground-truth feature changes captured.
	AvgFF *float64 `json:"avg_ff"`
}

// ExplanationResult is the final outcome of one generation request.
// Created once and immutable afterwards.
type ExplanationResult struct {
	Explanation          string                   `json:"explanation"`
	RawOutput            string                   `json:"raw_output,omitempty"`
	ParsedJSON           map[string]any           `json:"parsed_json,omitempty"`
	FeatureChanges       map[string]FeatureChange `json:"feature_changes"`
	TargetVariableChange TargetChange             `json:"target_variable_change"`
	Reasoning            string                   `json:"reasoning,omitempty"`
	Metrics              *Metrics                 `json:"metrics,omitempty"`
	// ConsensusScore measures agreement among drafts' importance rankings.
	// Present only for self-refinement results.
	ConsensusScore *float64      `json:"consensus_score,omitempty"`
	Drafts         []DraftStatus `json:"drafts,omitempty"`
	Status         string        `json:"status"`
	Warning        string        `json:"warning,omitempty"`
}
