package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Anudeepsrib/ClinIQ/internal/core/domain"
	"github.com/Anudeepsrib/ClinIQ/internal/core/ports"
	"github.com/Anudeepsrib/ClinIQ/internal/observability/metrics"
)

const (
	serviceName = "api"

	maxInFlightRequests  = 64
	backpressureTimeout  = 500 * time.Millisecond
	maxUploadSizeBytes   = 32 << 20
	maxQueryBodySizeByte = 1 << 20
)

type Router struct {
	queries   ports.QueryService
	ingestor  ports.ChunkIngestor
	uploader  ports.DocumentUploader
	documents ports.DocumentReader
	stats     ports.CollectionReader
	redactor  ports.Redactor
	metrics   *metrics.HTTPServerMetrics
	log       *slog.Logger
	rateRPS   float64
	rateBurst int
}

type RouterOptions struct {
	Logger             *slog.Logger
	RateLimitPerSecond float64
	RateLimitBurst     int
}

func NewRouter(
	queries ports.QueryService,
	ingestor ports.ChunkIngestor,
	uploader ports.DocumentUploader,
	documents ports.DocumentReader,
	stats ports.CollectionReader,
	redactor ports.Redactor,
	m *metrics.HTTPServerMetrics,
	options RouterOptions,
) *Router {
	return &Router{
		queries:   queries,
		ingestor:  ingestor,
		uploader:  uploader,
		documents: documents,
		stats:     stats,
		redactor:  redactor,
		metrics:   m,
		log:       options.Logger,
		rateRPS:   options.RateLimitPerSecond,
		rateBurst: options.RateLimitBurst,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/v1/query", rt.runQuery)
	mux.HandleFunc("/v1/chunks", rt.ingestChunks)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/groups/stats", rt.groupStats)

	var handler http.Handler = mux
	handler = rt.metrics.Middleware(serviceName, handler)
	handler = backpressureMiddleware(handler, maxInFlightRequests, backpressureTimeout)
	handler = rateLimitMiddleware(handler, rt.rateRPS, rt.rateBurst)
	handler = accessLogMiddleware(rt.log, handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queryRequestDTO struct {
	Question   string   `json:"question"`
	Role       string   `json:"role"`
	Groups     []string `json:"groups"`
	UserID     string   `json:"user_id"`
	MaxRetries int      `json:"max_retries"`
}

func (rt *Router) runQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req queryRequestDTO
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodySizeByte))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	start := time.Now()
	result, err := rt.queries.RunQuery(r.Context(), domain.QueryRequest{
		Question:   req.Question,
		Role:       req.Role,
		Groups:     req.Groups,
		UserID:     req.UserID,
		MaxRetries: req.MaxRetries,
	})
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	// Clinical staff see the original identifiers in both the answer and the
	// cited sources, everyone else gets the redaction placeholders left in
	// place.
	if canViewPHI(req.Role) {
		if result.Answer != "" {
			result.Answer = rt.redactor.Deanonymize(result.Answer)
		}
		for i := range result.Sources {
			result.Sources[i].Content = rt.redactor.Deanonymize(result.Sources[i].Content)
		}
	}

	rt.metrics.RecordQueryRun(serviceName, queryOutcome(result), len(result.Rewrites), len(result.Sources), time.Since(start))
	if result.Clarification == nil {
		rt.metrics.RecordGroundednessVerdict(serviceName, string(result.Grounded))
	}

	writeJSON(w, http.StatusOK, result)
}

func canViewPHI(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "admin", "doctor", "nurse":
		return true
	default:
		return false
	}
}

func queryOutcome(result *domain.QueryResult) string {
	switch {
	case result.Clarification != nil:
		return "clarification"
	case result.LowConfidence:
		return "low_confidence"
	default:
		return "answered"
	}
}

type ingestChunksDTO struct {
	Group  string                 `json:"group"`
	Chunks []domain.DocumentChunk `json:"chunks"`
}

func (rt *Router) ingestChunks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ingestChunksDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Chunks) == 0 {
		writeError(w, http.StatusBadRequest, "chunks are required")
		return
	}

	indexed, err := rt.ingestor.Ingest(r.Context(), req.Chunks, req.Group)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	rt.metrics.RecordChunksIngested(serviceName, strings.ToLower(req.Group), indexed)
	writeJSON(w, http.StatusCreated, map[string]any{
		"group":   strings.ToLower(strings.TrimSpace(req.Group)),
		"indexed": indexed,
	})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSizeBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	group := r.FormValue("group")
	doc, err := rt.uploader.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		group,
		file,
	)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	doc, err := rt.documents.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) groupStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": rt.stats.GroupStats()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
