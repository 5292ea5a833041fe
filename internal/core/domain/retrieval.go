package domain

// RetrievalResult is a single ranked hit produced for one query. Results are
// never persisted; ordering is best-first and is the contract the grader and
// generator rely on.
type RetrievalResult struct {
	ChunkID string            `json:"chunk_id"`
	Content string            `json:"content"`
	Source  string            `json:"source"`
	Group   string            `json:"group"`
	Score   float64           `json:"score"`
	Page    int               `json:"page,omitempty"`
	Sheet   string            `json:"sheet,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// QueryRequest carries one caller question plus the access context the
// fronting gateway resolved for it.
type QueryRequest struct {
	Question   string   `json:"question"`
	Role       string   `json:"role"`
	Groups     []string `json:"groups"`
	UserID     string   `json:"user_id"`
	MaxRetries int      `json:"max_retries,omitempty"`
}

// GroundednessVerdict mirrors the binary grader output: "yes" means every
// factual claim in the answer is traceable to the retrieved context.
type GroundednessVerdict string

const (
	VerdictGrounded   GroundednessVerdict = "yes"
	VerdictUngrounded GroundednessVerdict = "no"
)

type Clarification struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// QueryResult is the terminal output of one pipeline run.
type QueryResult struct {
	Answer         string              `json:"answer"`
	Sources        []RetrievalResult   `json:"sources"`
	SearchedGroups []string            `json:"searched_groups"`
	Grounded       GroundednessVerdict `json:"grounded"`
	LowConfidence  bool                `json:"low_confidence,omitempty"`
	Rewrites       []string            `json:"rewrites,omitempty"`
	Clarification  *Clarification      `json:"clarification,omitempty"`
}
