package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Anudeepsrib/ClinIQ/internal/core/domain"
)

type fakeInferencer struct {
	clarifyResponses  []string
	gradeResponses    []string
	groundedResponses []string
	rewriteResponses  []string
	answerResponses   []string

	gradeErr    error
	generateErr error

	generateCalls int
	rewriteCalls  int
	gradeCalls    int
}

func pop(queue *[]string, fallback string) string {
	if len(*queue) == 0 {
		return fallback
	}
	out := (*queue)[0]
	*queue = (*queue)[1:]
	return out
}

func (f *fakeInferencer) CompleteJSON(_ context.Context, prompt string, _ float64) (string, error) {
	switch {
	case strings.Contains(prompt, "clinical query analyst"):
		return pop(&f.clarifyResponses, `{"is_ambiguous": false, "clarification_options": []}`), nil
	case strings.Contains(prompt, "relevance grader"):
		f.gradeCalls++
		if f.gradeErr != nil {
			return "", f.gradeErr
		}
		return pop(&f.gradeResponses, `{"binary_score": "yes"}`), nil
	case strings.Contains(prompt, "accuracy auditor"):
		return pop(&f.groundedResponses, `{"binary_score": "yes"}`), nil
	default:
		return "", fmt.Errorf("unexpected json prompt: %s", prompt)
	}
}

func (f *fakeInferencer) Complete(_ context.Context, prompt string, _ float64) (string, error) {
	if strings.Contains(prompt, "query optimizer") {
		f.rewriteCalls++
		return pop(&f.rewriteResponses, "rewritten question"), nil
	}
	f.generateCalls++
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return pop(&f.answerResponses, "Dosing is 5mg twice daily [Ref 1]."), nil
}

type fakeSearcher struct {
	results   []domain.RetrievalResult
	questions []string
}

func (f *fakeSearcher) Search(_ context.Context, question string, _ []string, _ int) ([]domain.RetrievalResult, error) {
	f.questions = append(f.questions, question)
	return f.results, nil
}

type fakeAuditRepo struct {
	records []domain.QueryAudit
}

func (f *fakeAuditRepo) Record(_ context.Context, audit domain.QueryAudit) error {
	f.records = append(f.records, audit)
	return nil
}

func sampleResults() []domain.RetrievalResult {
	return []domain.RetrievalResult{
		{ChunkID: "cardiology_policy.pdf_0", Content: "Dosing is 5mg twice daily.", Source: "policy.pdf", Group: "cardiology", Score: 0.9},
	}
}

func newTestPipeline(searcher *fakeSearcher, inference *fakeInferencer, audit *fakeAuditRepo, maxRetries int) *QueryPipeline {
	return NewQueryPipeline(searcher, inference, audit, PipelineConfig{MaxRetries: maxRetries, TopK: 4}, nil)
}

func TestRunQueryAnsweredOnFirstPass(t *testing.T) {
	searcher := &fakeSearcher{results: sampleResults()}
	inference := &fakeInferencer{}
	audit := &fakeAuditRepo{}
	pipeline := newTestPipeline(searcher, inference, audit, 3)

	result, err := pipeline.RunQuery(context.Background(), domain.QueryRequest{
		Question: "What is the heparin dosing protocol?",
		Role:     "nurse",
		Groups:   []string{"cardiology"},
		UserID:   "u-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Clarification != nil {
		t.Fatalf("expected no clarification, got %+v", result.Clarification)
	}
	if result.Answer == "" || result.LowConfidence {
		t.Fatalf("expected confident answer, got %+v", result)
	}
	if result.Grounded != domain.VerdictGrounded {
		t.Fatalf("expected grounded verdict, got %q", result.Grounded)
	}
	if len(result.Sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(result.Sources))
	}
	if len(audit.records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(audit.records))
	}
	record := audit.records[0]
	if record.UserID != "u-1" || record.Role != "nurse" || record.Clarified || record.RewriteCount != 0 {
		t.Fatalf("unexpected audit record: %+v", record)
	}
	if record.ID == "" || record.DurationMS < 0 {
		t.Fatalf("audit record missing id or duration: %+v", record)
	}
}

func TestRunQueryAnswersFromSingleGroupChunk(t *testing.T) {
	searcher := &fakeSearcher{results: []domain.RetrievalResult{
		{ChunkID: "radiology_auth.pdf_0", Content: "Prior auth required for non-emergent MRI.", Source: "auth.pdf", Group: "radiology", Score: 0.8},
	}}
	inference := &fakeInferencer{
		answerResponses: []string{"Non-emergent MRI requires prior authorization [Ref 1]."},
	}
	pipeline := newTestPipeline(searcher, inference, &fakeAuditRepo{}, 3)

	result, err := pipeline.RunQuery(context.Background(), domain.QueryRequest{
		Question: "do I need prior auth for an MRI",
		Role:     "doctor",
		Groups:   []string{"radiology"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Answer, "[Ref 1]") {
		t.Fatalf("expected answer with citation, got %q", result.Answer)
	}
	if result.Grounded != domain.VerdictGrounded || result.LowConfidence {
		t.Fatalf("expected grounded answer, got %+v", result)
	}
	if len(result.SearchedGroups) != 1 || result.SearchedGroups[0] != "radiology" {
		t.Fatalf("expected searched groups [radiology], got %v", result.SearchedGroups)
	}
	if len(result.Sources) != 1 || result.Sources[0].ChunkID != "radiology_auth.pdf_0" {
		t.Fatalf("unexpected sources: %+v", result.Sources)
	}
}

func TestRunQueryClarificationShortCircuits(t *testing.T) {
	searcher := &fakeSearcher{results: sampleResults()}
	inference := &fakeInferencer{
		clarifyResponses: []string{`{"is_ambiguous": true, "clarification_options": ["Which department?", "Which medication?"]}`},
	}
	audit := &fakeAuditRepo{}
	pipeline := newTestPipeline(searcher, inference, audit, 3)

	result, err := pipeline.RunQuery(context.Background(), domain.QueryRequest{
		Question: "tell me about the policy",
		Groups:   []string{"cardiology", "emergency"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Clarification == nil {
		t.Fatalf("expected clarification, got %+v", result)
	}
	if len(result.Clarification.Options) != 2 {
		t.Fatalf("expected 2 options, got %v", result.Clarification.Options)
	}
	if len(result.Sources) != 0 {
		t.Fatalf("clarification must not carry sources, got %d", len(result.Sources))
	}
	if len(searcher.questions) != 0 {
		t.Fatalf("retrieval must not run on clarification, ran %d times", len(searcher.questions))
	}
	if inference.generateCalls != 0 {
		t.Fatalf("generation must not run on clarification, ran %d times", inference.generateCalls)
	}
	if len(audit.records) != 1 || !audit.records[0].Clarified {
		t.Fatalf("expected clarified audit record, got %+v", audit.records)
	}
}

func TestClarificationWithoutUsableOptionsProceeds(t *testing.T) {
	searcher := &fakeSearcher{results: sampleResults()}
	inference := &fakeInferencer{
		clarifyResponses: []string{`{"is_ambiguous": true, "clarification_options": ["  ", "only one"]}`},
	}
	pipeline := newTestPipeline(searcher, inference, &fakeAuditRepo{}, 3)

	result, err := pipeline.RunQuery(context.Background(), domain.QueryRequest{
		Question: "vague question",
		Groups:   []string{"cardiology"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Clarification != nil {
		t.Fatalf("single usable option must not block, got %+v", result.Clarification)
	}
	if len(searcher.questions) != 1 {
		t.Fatalf("expected retrieval to run once, ran %d times", len(searcher.questions))
	}
}

func TestClarificationOptionsClampedToFour(t *testing.T) {
	inference := &fakeInferencer{
		clarifyResponses: []string{`{"is_ambiguous": true, "clarification_options": ["a","b","c","d","e","f"]}`},
	}
	pipeline := newTestPipeline(&fakeSearcher{}, inference, &fakeAuditRepo{}, 3)

	result, err := pipeline.RunQuery(context.Background(), domain.QueryRequest{
		Question: "vague",
		Groups:   []string{"cardiology"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Clarification == nil || len(result.Clarification.Options) != 4 {
		t.Fatalf("expected 4 clamped options, got %+v", result.Clarification)
	}
}

func TestRetryBudgetExhaustedReturnsFallback(t *testing.T) {
	searcher := &fakeSearcher{results: sampleResults()}
	inference := &fakeInferencer{
		gradeResponses: []string{
			`{"binary_score": "no"}`,
			`{"binary_score": "no"}`,
			`{"binary_score": "no"}`,
		},
		rewriteResponses: []string{"first rewrite", "second rewrite"},
	}
	audit := &fakeAuditRepo{}
	pipeline := newTestPipeline(searcher, inference, audit, 2)

	result, err := pipeline.RunQuery(context.Background(), domain.QueryRequest{
		Question: "irrelevant question",
		Groups:   []string{"radiology"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.LowConfidence {
		t.Fatalf("expected low confidence result, got %+v", result)
	}
	if !strings.Contains(result.Answer, "could not find") {
		t.Fatalf("expected fallback answer, got %q", result.Answer)
	}
	if len(result.Rewrites) != 2 {
		t.Fatalf("expected 2 rewrites, got %v", result.Rewrites)
	}
	// Initial retrieval plus one per rewrite.
	if len(searcher.questions) != 3 {
		t.Fatalf("expected 3 retrieval passes, got %d", len(searcher.questions))
	}
	if searcher.questions[1] != "first rewrite" || searcher.questions[2] != "second rewrite" {
		t.Fatalf("rewrites must drive the next retrieval, got %v", searcher.questions)
	}
	if inference.generateCalls != 0 {
		t.Fatalf("generation must never run without relevant documents, ran %d times", inference.generateCalls)
	}
	if len(audit.records) != 1 || audit.records[0].RewriteCount != 2 {
		t.Fatalf("expected audit with 2 rewrites, got %+v", audit.records)
	}
}

func TestGroundednessRegenerationConsumesSharedBudget(t *testing.T) {
	searcher := &fakeSearcher{results: sampleResults()}
	inference := &fakeInferencer{
		groundedResponses: []string{
			`{"binary_score": "no"}`,
			`{"binary_score": "no"}`,
			`{"binary_score": "no"}`,
		},
	}
	pipeline := newTestPipeline(searcher, inference, &fakeAuditRepo{}, 2)

	result, err := pipeline.RunQuery(context.Background(), domain.QueryRequest{
		Question: "What is the contrast allergy protocol?",
		Groups:   []string{"radiology"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.LowConfidence {
		t.Fatalf("expected low confidence after budget exhaustion, got %+v", result)
	}
	if result.Grounded != domain.VerdictUngrounded {
		t.Fatalf("expected ungrounded verdict, got %q", result.Grounded)
	}
	if result.Answer == "" {
		t.Fatalf("ungrounded answer must still be returned")
	}
	// Initial generation plus one regeneration per budget unit.
	if inference.generateCalls != 3 {
		t.Fatalf("expected 3 generations for budget 2, got %d", inference.generateCalls)
	}
	if len(searcher.questions) != 1 {
		t.Fatalf("regeneration must not re-retrieve, got %d retrievals", len(searcher.questions))
	}
}

func TestRewriteSharesBudgetWithRegeneration(t *testing.T) {
	searcher := &fakeSearcher{results: sampleResults()}
	inference := &fakeInferencer{
		gradeResponses: []string{
			`{"binary_score": "no"}`, // first pass: rewrite
			`{"binary_score": "yes"}`,
		},
		groundedResponses: []string{
			`{"binary_score": "no"}`, // one regeneration left
			`{"binary_score": "no"}`, // budget exhausted
		},
	}
	pipeline := newTestPipeline(searcher, inference, &fakeAuditRepo{}, 2)

	result, err := pipeline.RunQuery(context.Background(), domain.QueryRequest{
		Question: "prior authorization for mri",
		Groups:   []string{"radiology"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rewrites) != 1 {
		t.Fatalf("expected 1 rewrite, got %v", result.Rewrites)
	}
	// Budget 2: one unit went to the rewrite, one to regeneration.
	if inference.generateCalls != 2 {
		t.Fatalf("expected 2 generations, got %d", inference.generateCalls)
	}
	if !result.LowConfidence {
		t.Fatalf("expected low confidence, got %+v", result)
	}
}

func TestGraderFailurePropagates(t *testing.T) {
	searcher := &fakeSearcher{results: sampleResults()}
	inference := &fakeInferencer{gradeErr: errors.New("model unavailable")}
	pipeline := newTestPipeline(searcher, inference, &fakeAuditRepo{}, 3)

	_, err := pipeline.RunQuery(context.Background(), domain.QueryRequest{
		Question: "anything",
		Groups:   []string{"cardiology"},
	})
	if err == nil {
		t.Fatalf("expected error from failed grader")
	}
	if !domain.IsKind(err, domain.ErrInference) {
		t.Fatalf("expected inference error kind, got %v", err)
	}
}

func TestEmptyRetrievalWithoutBudgetFallsBack(t *testing.T) {
	searcher := &fakeSearcher{results: nil}
	inference := &fakeInferencer{}
	pipeline := newTestPipeline(searcher, inference, &fakeAuditRepo{}, 1)

	result, err := pipeline.RunQuery(context.Background(), domain.QueryRequest{
		Question: "question with no matches",
		Groups:   []string{"general"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.LowConfidence || !strings.Contains(result.Answer, "could not find") {
		t.Fatalf("expected fallback answer, got %+v", result)
	}
	if inference.generateCalls != 0 {
		t.Fatalf("generation must not run on empty context, ran %d times", inference.generateCalls)
	}
}

func TestRunQueryValidatesInput(t *testing.T) {
	pipeline := newTestPipeline(&fakeSearcher{}, &fakeInferencer{}, &fakeAuditRepo{}, 3)

	if _, err := pipeline.RunQuery(context.Background(), domain.QueryRequest{
		Question: "   ",
		Groups:   []string{"cardiology"},
	}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank question, got %v", err)
	}

	if _, err := pipeline.RunQuery(context.Background(), domain.QueryRequest{
		Question: "valid question",
	}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing groups, got %v", err)
	}
}

func TestRunQueryHonorsContextCancellation(t *testing.T) {
	pipeline := newTestPipeline(&fakeSearcher{results: sampleResults()}, &fakeInferencer{}, &fakeAuditRepo{}, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.RunQuery(ctx, domain.QueryRequest{
		Question: "question",
		Groups:   []string{"cardiology"},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestExtractJSONObjectStripsMarkdownFence(t *testing.T) {
	raw := "```json\n{\"binary_score\": \"yes\"}\n```"
	got := extractJSONObject(raw)
	if got != `{"binary_score": "yes"}` {
		t.Fatalf("unexpected extraction: %q", got)
	}
}
