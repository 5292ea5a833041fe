package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Anudeepsrib/ClinIQ/internal/core/domain"
	"github.com/Anudeepsrib/ClinIQ/internal/core/ports"
)

// stage is the closed set of pipeline states. Transitions are computed by
// QueryPipeline.step; stageDone is terminal.
type stage int

const (
	stageClarificationCheck stage = iota
	stageRetrieve
	stageGradeDocuments
	stageGenerate
	stageTransformQuery
	stageGroundednessCheck
	stageDone
)

func (s stage) String() string {
	switch s {
	case stageClarificationCheck:
		return "clarification_check"
	case stageRetrieve:
		return "retrieve"
	case stageGradeDocuments:
		return "grade_documents"
	case stageGenerate:
		return "generate"
	case stageTransformQuery:
		return "transform_query"
	case stageGroundednessCheck:
		return "groundedness_check"
	case stageDone:
		return "done"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

const (
	graderTemperature   = 0
	rewriteTemperature  = 0.4
	answerTemperature   = 0
	maxClarifyOptions   = 4
	minClarifyOptions   = 2
	defaultMaxRetries   = 3
	defaultRetrievalTop = 4
)

type PipelineConfig struct {
	MaxRetries int
	TopK       int
}

// QueryPipeline sequences clarification, retrieval, relevance filtering,
// answer synthesis and groundedness verification with a bounded shared
// retry budget. One PipelineState is processed end to end per call;
// concurrent calls run as independent instances.
type QueryPipeline struct {
	retriever ports.HybridSearcher
	inference ports.TextInferencer
	audit     ports.QueryAuditRepository
	log       *slog.Logger
	cfg       PipelineConfig
}

func NewQueryPipeline(
	retriever ports.HybridSearcher,
	inference ports.TextInferencer,
	audit ports.QueryAuditRepository,
	cfg PipelineConfig,
	log *slog.Logger,
) *QueryPipeline {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultRetrievalTop
	}
	if log == nil {
		log = slog.Default()
	}
	return &QueryPipeline{
		retriever: retriever,
		inference: inference,
		audit:     audit,
		log:       log,
		cfg:       cfg,
	}
}

func (p *QueryPipeline) RunQuery(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run query", fmt.Errorf("question is required"))
	}
	if len(req.Groups) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run query", fmt.Errorf("at least one group is required"))
	}
	if req.MaxRetries <= 0 {
		req.MaxRetries = p.cfg.MaxRetries
	}

	started := time.Now()
	state := domain.NewPipelineState(req)

	current := stageClarificationCheck
	for current != stageDone {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := p.step(ctx, current, state)
		if err != nil {
			return nil, err
		}
		p.log.Debug("pipeline transition",
			"user", state.UserID, "from", current.String(), "to", next.String(), "retries", state.RetryCount)
		current = next
	}

	result := p.finish(state)
	p.recordAudit(ctx, state, time.Since(started))
	return result, nil
}

func (p *QueryPipeline) step(ctx context.Context, current stage, state *domain.PipelineState) (stage, error) {
	switch current {
	case stageClarificationCheck:
		return p.clarificationCheck(ctx, state)
	case stageRetrieve:
		return p.retrieve(ctx, state)
	case stageGradeDocuments:
		return p.gradeDocuments(ctx, state)
	case stageGenerate:
		return p.generate(ctx, state)
	case stageTransformQuery:
		return p.transformQuery(ctx, state)
	case stageGroundednessCheck:
		return p.groundednessCheck(ctx, state)
	case stageDone:
		return stageDone, nil
	default:
		return stageDone, fmt.Errorf("unknown pipeline stage: %s", current)
	}
}

type clarificationVerdict struct {
	IsAmbiguous bool     `json:"is_ambiguous"`
	Options     []string `json:"clarification_options"`
}

func (p *QueryPipeline) clarificationCheck(ctx context.Context, state *domain.PipelineState) (stage, error) {
	raw, err := p.inference.CompleteJSON(ctx, buildClarificationPrompt(state.Question, state.Role, state.Groups), graderTemperature)
	if err != nil {
		return stageDone, domain.WrapError(domain.ErrInference, "clarification check", err)
	}

	var verdict clarificationVerdict
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &verdict); err != nil {
		return stageDone, domain.WrapError(domain.ErrInference, "clarification check", fmt.Errorf("parse verdict: %w", err))
	}

	options := make([]string, 0, len(verdict.Options))
	for _, option := range verdict.Options {
		if option = strings.TrimSpace(option); option != "" {
			options = append(options, option)
		}
	}
	if len(options) > maxClarifyOptions {
		options = options[:maxClarifyOptions]
	}

	// An ambiguity verdict without at least two usable options is not
	// actionable; proceed with retrieval instead of blocking the caller.
	if verdict.IsAmbiguous && len(options) >= minClarifyOptions {
		state.ClarificationNeeded = true
		state.ClarificationOptions = options
		p.log.Info("query is ambiguous", "user", state.UserID, "options", len(options))
		return stageDone, nil
	}
	return stageRetrieve, nil
}

func (p *QueryPipeline) retrieve(ctx context.Context, state *domain.PipelineState) (stage, error) {
	documents, err := p.retriever.Search(ctx, state.Question, state.Groups, p.cfg.TopK)
	if err != nil {
		return stageDone, fmt.Errorf("retrieve: %w", err)
	}
	state.Documents = documents
	p.log.Info("retrieved documents", "user", state.UserID, "count", len(documents), "groups", state.Groups)
	return stageGradeDocuments, nil
}

type binaryVerdict struct {
	BinaryScore string `json:"binary_score"`
}

func (p *QueryPipeline) gradeDocuments(ctx context.Context, state *domain.PipelineState) (stage, error) {
	filtered := make([]domain.RetrievalResult, 0, len(state.Documents))
	for _, doc := range state.Documents {
		raw, err := p.inference.CompleteJSON(ctx, buildGradePrompt(state.Question, doc.Content), graderTemperature)
		if err != nil {
			return stageDone, domain.WrapError(domain.ErrInference, "grade documents", err)
		}
		var verdict binaryVerdict
		if err := json.Unmarshal([]byte(extractJSONObject(raw)), &verdict); err != nil {
			return stageDone, domain.WrapError(domain.ErrInference, "grade documents", fmt.Errorf("parse verdict: %w", err))
		}
		if strings.EqualFold(strings.TrimSpace(verdict.BinaryScore), "yes") {
			filtered = append(filtered, doc)
		}
	}
	p.log.Info("graded documents", "user", state.UserID, "kept", len(filtered), "of", len(state.Documents))
	state.Documents = filtered

	if len(filtered) > 0 {
		return stageGenerate, nil
	}
	if state.RetryCount < state.MaxRetries {
		return stageTransformQuery, nil
	}

	// Retry budget exhausted with nothing relevant: terminal apology, not
	// an error.
	state.Generation = fallbackNoContext
	state.LowConfidence = true
	p.log.Warn("retry budget exhausted without relevant documents", "user", state.UserID, "retries", state.RetryCount)
	return stageDone, nil
}

func (p *QueryPipeline) transformQuery(ctx context.Context, state *domain.PipelineState) (stage, error) {
	rewritten, err := p.inference.Complete(ctx, buildRewritePrompt(state.Question), rewriteTemperature)
	if err != nil {
		return stageDone, domain.WrapError(domain.ErrInference, "transform query", err)
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		rewritten = state.Question
	}

	state.RetryCount++
	state.Rewrites = append(state.Rewrites, rewritten)
	p.log.Info("query rewritten", "user", state.UserID, "retry", state.RetryCount, "question", rewritten)
	state.Question = rewritten
	return stageRetrieve, nil
}

func (p *QueryPipeline) generate(ctx context.Context, state *domain.PipelineState) (stage, error) {
	if len(state.Documents) == 0 {
		// Never call the inference service with empty context.
		state.Generation = fallbackNoContext
		state.LowConfidence = true
		return stageDone, nil
	}

	generation, err := p.inference.Complete(ctx, buildGenerationPrompt(state.Question, state.Role, state.Documents), answerTemperature)
	if err != nil {
		return stageDone, domain.WrapError(domain.ErrInference, "generate", err)
	}
	state.Generation = strings.TrimSpace(generation)
	return stageGroundednessCheck, nil
}

func (p *QueryPipeline) groundednessCheck(ctx context.Context, state *domain.PipelineState) (stage, error) {
	if state.Generation == "" {
		state.Grounded = domain.VerdictGrounded
		return stageDone, nil
	}

	raw, err := p.inference.CompleteJSON(ctx, buildGroundednessPrompt(state.Generation, state.Documents), graderTemperature)
	if err != nil {
		return stageDone, domain.WrapError(domain.ErrInference, "groundedness check", err)
	}
	var verdict binaryVerdict
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &verdict); err != nil {
		return stageDone, domain.WrapError(domain.ErrInference, "groundedness check", fmt.Errorf("parse verdict: %w", err))
	}

	if strings.EqualFold(strings.TrimSpace(verdict.BinaryScore), "yes") {
		state.Grounded = domain.VerdictGrounded
		return stageDone, nil
	}

	state.Grounded = domain.VerdictUngrounded
	if state.RetryCount < state.MaxRetries {
		// Regeneration draws from the same shared retry budget as query
		// rewrites, so the loop always terminates.
		state.RetryCount++
		p.log.Warn("answer not grounded, regenerating", "user", state.UserID, "retry", state.RetryCount)
		return stageGenerate, nil
	}

	// Budget exhausted: return the answer anyway, flagged low-confidence.
	state.LowConfidence = true
	p.log.Warn("answer not grounded and retry budget exhausted", "user", state.UserID)
	return stageDone, nil
}

func (p *QueryPipeline) finish(state *domain.PipelineState) *domain.QueryResult {
	result := &domain.QueryResult{
		SearchedGroups: state.Groups,
		Grounded:       state.Grounded,
		LowConfidence:  state.LowConfidence,
		Rewrites:       state.Rewrites,
	}

	if state.ClarificationNeeded {
		result.Answer = clarificationPrompt
		result.Clarification = &domain.Clarification{
			Prompt:  clarificationPrompt,
			Options: state.ClarificationOptions,
		}
		return result
	}

	result.Answer = state.Generation
	if result.Answer == "" {
		result.Answer = fallbackNoContext
	}
	result.Sources = state.Documents
	return result
}

func (p *QueryPipeline) recordAudit(ctx context.Context, state *domain.PipelineState, elapsed time.Duration) {
	if p.audit == nil {
		return
	}
	audit := domain.QueryAudit{
		ID:           uuid.NewString(),
		UserID:       state.UserID,
		Role:         state.Role,
		Question:     state.Question,
		RewriteCount: len(state.Rewrites),
		Grounded:     state.Grounded,
		Clarified:    state.ClarificationNeeded,
		DurationMS:   elapsed.Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.audit.Record(ctx, audit); err != nil {
		p.log.Error("record query audit", "user", state.UserID, "error", err)
	}
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
