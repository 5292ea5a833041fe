package domain

// PipelineState is the single mutable record threaded through one query's
// lifecycle. It is instantiated once per incoming query and discarded after
// the terminal transition; it is never shared across queries or callers.
type PipelineState struct {
	// Question is the current question text; TransformQuery rewrites it.
	Question string
	// Documents accumulates the retrieval results surviving grading.
	Documents  []RetrievalResult
	Generation string

	Role   string
	Groups []string
	UserID string

	// RetryCount is the shared budget for recall retries (query rewrites)
	// and groundedness regenerations. It is monotonically non-decreasing
	// and never exceeds the configured maximum.
	RetryCount int
	MaxRetries int

	Grounded      GroundednessVerdict
	LowConfidence bool

	// Rewrites is the ordered audit trail of every question rewrite. Each
	// entry is the exact text used as the next question.
	Rewrites []string

	ClarificationNeeded  bool
	ClarificationOptions []string
}

func NewPipelineState(req QueryRequest) *PipelineState {
	return &PipelineState{
		Question:   req.Question,
		Role:       req.Role,
		Groups:     req.Groups,
		UserID:     req.UserID,
		MaxRetries: req.MaxRetries,
	}
}
