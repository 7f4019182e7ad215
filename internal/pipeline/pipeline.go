// Package pipeline turns generation requests into narrative explanations:
// it builds prompts, calls a model provider, parses the structured model
// output and scores it against the ground-truth feature changes.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tiktoken-go/tokenizer"

	"github.com/hl-fury/xai-narrative-service/internal/domain"
	"github.com/hl-fury/xai-narrative-service/internal/models"
	"github.com/hl-fury/xai-narrative-service/internal/provider"
)

const (
	// DefaultDraftCount is the number of independent drafts generated in
	// self-refinement mode.
	DefaultDraftCount = 5

	// maxModelLen bounds prompt plus completion tokens.
	maxModelLen = 8192
)

// Pipeline orchestrates explanation generation.
type Pipeline struct {
	providers  *provider.Registry
	logger     *slog.Logger
	codec      tokenizer.Codec
	draftCount int
}

// Option configures the pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithDraftCount overrides the number of self-refinement drafts.
func WithDraftCount(n int) Option {
	return func(p *Pipeline) { p.draftCount = n }
}

// New creates a pipeline over the given provider registry.
func New(providers *provider.Registry, opts ...Option) (*Pipeline, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	p := &Pipeline{
		providers:  providers,
		logger:     slog.Default(),
		codec:      codec,
		draftCount: DefaultDraftCount,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Explain runs one-shot generation and returns the full result.
func (p *Pipeline) Explain(ctx context.Context, req *domain.GenerationRequest) (*domain.ExplanationResult, error) {
	if req.Model == models.DemoModel {
		p.logger.Info("using demo mode", slog.String("dataset", req.Dataset))
		return demoResult(req.Factual, req.Counterfactual), nil
	}

	prompt := BuildPrompt(req.Dataset, req.Factual, req.Counterfactual)
	raw, err := p.generate(ctx, req.Model, prompt, req.Params())
	if err != nil {
		return nil, err
	}

	return p.buildResult(req, raw), nil
}

// ExplainStream runs self-refinement generation, emitting draft_progress
// events while drafts run and a terminal complete or error event. The
// returned error is non-nil only when emit itself fails (the consumer is
// gone); generation failures are reported through the error event.
func (p *Pipeline) ExplainStream(ctx context.Context, req *domain.GenerationRequest, emit func(domain.StreamEvent) error) error {
	drafts := domain.NewDraftList(p.draftCount)
	var rankings []map[string]int
	var explanations []string

	for i := range drafts {
		drafts[i].Status = domain.DraftLoading
		if err := emit(domain.DraftProgressEvent(i, domain.DraftLoading, nil)); err != nil {
			return err
		}

		raw, genErr := p.generateDraft(ctx, req, i)
		if genErr != nil {
			p.logger.Warn("draft generation failed",
				slog.Int("draft", i), slog.String("error", genErr.Error()))
			drafts[i].Status = domain.DraftFailed
			if err := emit(domain.DraftProgressEvent(i, domain.DraftFailed, nil)); err != nil {
				return err
			}
			continue
		}

		parsed := ExtractJSON(raw)
		if parsed == nil {
			p.logger.Warn("draft output had no parseable JSON", slog.Int("draft", i))
			drafts[i].Status = domain.DraftFailed
			if err := emit(domain.DraftProgressEvent(i, domain.DraftFailed, nil)); err != nil {
				return err
			}
			continue
		}

		ranking := ExtractRanking(parsed)
		drafts[i].Status = domain.DraftSuccess
		drafts[i].Ranking = ranking
		if ranking != nil {
			rankings = append(rankings, ranking)
		}
		if text, ok := parsed["explanation"].(string); ok && text != "" {
			explanations = append(explanations, text)
		} else {
			explanations = append(explanations, raw)
		}

		if err := emit(domain.DraftProgressEvent(i, domain.DraftSuccess, ranking)); err != nil {
			return err
		}
	}

	if len(explanations) == 0 {
		return emit(domain.ErrorEvent("all drafts failed; no explanation could be generated"))
	}

	result, err := p.refine(ctx, req, explanations)
	if err != nil {
		return emit(domain.ErrorEvent(err.Error()))
	}

	result.ConsensusScore = ConsensusScore(rankings)
	result.Drafts = drafts
	return emit(domain.CompleteEvent(result))
}

// generateDraft produces one draft's raw output.
func (p *Pipeline) generateDraft(ctx context.Context, req *domain.GenerationRequest, draft int) (string, error) {
	if req.Model == models.DemoModel {
		return demoDraftOutput(req.Factual, req.Counterfactual, draft), nil
	}
	prompt := BuildPrompt(req.Dataset, req.Factual, req.Counterfactual)
	return p.generate(ctx, req.Model, prompt, req.Params())
}

// refine runs the refinement pass over the successful drafts.
func (p *Pipeline) refine(ctx context.Context, req *domain.GenerationRequest, explanations []string) (*domain.ExplanationResult, error) {
	if req.Model == models.DemoModel {
		return demoResult(req.Factual, req.Counterfactual), nil
	}

	prompt := BuildRefinementPrompt(req.Factual, req.Counterfactual, explanations)
	raw, err := p.generate(ctx, req.Model, prompt, req.Params())
	if err != nil {
		return nil, err
	}
	return p.buildResult(req, raw), nil
}

// generate resolves the provider, enforces the token budget and runs one
// completion. Failures are not retried; every failure is terminal for the
// current request.
func (p *Pipeline) generate(ctx context.Context, model, prompt string, params domain.GenerationParams) (string, error) {
	prov, err := p.providers.Resolve(model)
	if err != nil {
		return "", err
	}

	promptTokens, err := p.codec.Count(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to count prompt tokens: %w", err)
	}
	if promptTokens+params.MaxTokens > maxModelLen {
		return "", domain.NewAPIError(domain.ErrorTypeContextLength,
			fmt.Sprintf("prompt (%d tokens) plus max_tokens (%d) exceeds the %d token context window",
				promptTokens, params.MaxTokens, maxModelLen))
	}

	p.logger.Debug("generating",
		slog.String("model", model),
		slog.String("provider", prov.Name()),
		slog.Int("prompt_tokens", promptTokens))

	return prov.Generate(ctx, model, prompt, params)
}

// buildResult assembles the full result from raw model output.
func (p *Pipeline) buildResult(req *domain.GenerationRequest, raw string) *domain.ExplanationResult {
	parsed := ExtractJSON(raw)

	explanation := raw
	reasoning := ""
	if parsed != nil {
		if text, ok := parsed["explanation"].(string); ok && text != "" {
			explanation = text
		}
		if text, ok := parsed["reasoning"].(string); ok {
			reasoning = text
		}
	}

	changes := FeatureChanges(req.Factual, req.Counterfactual)
	target := TargetChange(req.Factual, req.Counterfactual)

	return &domain.ExplanationResult{
		Explanation:          explanation,
		RawOutput:            raw,
		ParsedJSON:           parsed,
		FeatureChanges:       changes,
		TargetVariableChange: target,
		Reasoning:            reasoning,
		Metrics:              ComputeMetrics(parsed, changes, target),
		Status:               "success",
	}
}
