package domain

import "time"

// QueryAudit is the durable record of one completed pipeline run.
type QueryAudit struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	Role         string              `json:"role"`
	Question     string              `json:"question"`
	RewriteCount int                 `json:"rewrite_count"`
	Grounded     GroundednessVerdict `json:"grounded"`
	Clarified    bool                `json:"clarified"`
	DurationMS   int64               `json:"duration_ms"`
	CreatedAt    time.Time           `json:"created_at"`
}
