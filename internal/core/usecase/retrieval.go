package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Anudeepsrib/ClinIQ/internal/core/domain"
	"github.com/Anudeepsrib/ClinIQ/internal/core/ports"
)

const (
	defaultTopK      = 4
	semanticWeight   = 0.5
	lexicalWeight    = 0.5
	defaultFusionRRF = 60
)

// HybridEngine maintains isolated per-group collections and merges semantic
// search with lexical search into a single deduplicated, ranked result set.
type HybridEngine struct {
	embedder ports.Embedder
	vectors  ports.CollectionStore
	lexical  ports.LexicalCatalog
	log      *slog.Logger

	validGroups map[string]struct{}
	rrfK        int

	mu       sync.Mutex
	ingestMu map[string]*sync.Mutex
}

func NewHybridEngine(
	embedder ports.Embedder,
	vectors ports.CollectionStore,
	lexical ports.LexicalCatalog,
	validGroups []string,
	rrfK int,
	log *slog.Logger,
) *HybridEngine {
	if rrfK <= 0 {
		rrfK = defaultFusionRRF
	}
	if log == nil {
		log = slog.Default()
	}
	groups := make(map[string]struct{}, len(validGroups))
	for _, group := range validGroups {
		groups[strings.ToLower(strings.TrimSpace(group))] = struct{}{}
	}
	return &HybridEngine{
		embedder:    embedder,
		vectors:     vectors,
		lexical:     lexical,
		log:         log,
		validGroups: groups,
		rrfK:        rrfK,
		ingestMu:    make(map[string]*sync.Mutex),
	}
}

func (e *HybridEngine) groupLock(group string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.ingestMu[group]
	if !ok {
		lock = &sync.Mutex{}
		e.ingestMu[group] = lock
	}
	return lock
}

func (e *HybridEngine) validateGroup(group string) (string, error) {
	group = strings.ToLower(strings.TrimSpace(group))
	if _, ok := e.validGroups[group]; !ok {
		return "", domain.WrapError(domain.ErrInvalidGroup, "validate group", fmt.Errorf("unknown group %q", group))
	}
	return group, nil
}

// Ingest appends chunks to the group's semantic index and synchronously
// rebuilds the group's lexical index from the full current chunk set before
// returning. Ingest calls are mutually exclusive per group.
func (e *HybridEngine) Ingest(ctx context.Context, chunks []domain.DocumentChunk, group string) (int, error) {
	group, err := e.validateGroup(group)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	for i := range chunks {
		if strings.ToLower(strings.TrimSpace(chunks[i].Group)) != group {
			return 0, domain.WrapError(domain.ErrInvalidGroup, "ingest chunks",
				fmt.Errorf("chunk %s belongs to group %q, not %q", chunks[i].ID, chunks[i].Group, group))
		}
		chunks[i].Group = group
		if chunks[i].ID == "" {
			chunks[i].ID = domain.ChunkID(group, chunks[i].Source, chunks[i].Ordinal)
		}
		if chunks[i].Modality == "" {
			chunks[i].Modality = domain.ModalityText
		}
	}

	lock := e.groupLock(group)
	lock.Lock()
	defer lock.Unlock()

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, domain.WrapError(domain.ErrEmbedding, "embed chunks", err)
	}
	if len(vectors) != len(chunks) {
		return 0, domain.WrapError(domain.ErrEmbedding, "embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)))
	}

	if err := e.vectors.IndexChunks(ctx, group, chunks, vectors); err != nil {
		return 0, fmt.Errorf("index chunks: %w", err)
	}

	e.lexical.Add(group, chunks)

	e.log.Info("chunks ingested", "group", group, "count", len(chunks), "total", e.lexical.Count(group))
	return len(chunks), nil
}

// Search fans the query out across the named groups' collections, fuses
// semantic and lexical rankings per group, deduplicates by full-content
// fingerprint and returns the top k results best first.
func (e *HybridEngine) Search(ctx context.Context, question string, groups []string, k int) ([]domain.RetrievalResult, error) {
	if len(groups) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "hybrid search", fmt.Errorf("no groups named"))
	}
	if k <= 0 {
		k = defaultTopK
	}

	normalized := make([]string, len(groups))
	for i, group := range groups {
		valid, err := e.validateGroup(group)
		if err != nil {
			return nil, err
		}
		normalized[i] = valid
	}

	queryVector, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed query", err)
	}

	perGroup := make([][]domain.RetrievalResult, len(normalized))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, group := range normalized {
		i, group := i, group
		eg.Go(func() error {
			semantic, err := e.vectors.Search(egCtx, group, queryVector, k)
			if err != nil {
				return fmt.Errorf("semantic search group %s: %w", group, err)
			}
			var lexical []domain.RetrievalResult
			if e.lexical.Populated(group) {
				lexical = e.lexical.Search(group, question, k)
			}
			perGroup[i] = fuseWeightedRRF(semantic, lexical, semanticWeight, lexicalWeight, e.rrfK)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	pool := make([]domain.RetrievalResult, 0, len(normalized)*k)
	for _, results := range perGroup {
		pool = append(pool, results...)
	}

	// Sort before deduplicating so the surviving occurrence of shared
	// content is the best-ranked one, not whichever group was named first.
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Score != pool[j].Score {
			return pool[i].Score > pool[j].Score
		}
		return pool[i].ChunkID < pool[j].ChunkID
	})
	pool = dedupByContent(pool)
	pool = trimResults(pool, k)

	e.log.Debug("hybrid search complete", "groups", normalized, "results", len(pool))
	return pool, nil
}

// GroupStats reports the ingested chunk count per group collection.
func (e *HybridEngine) GroupStats() map[string]int {
	stats := make(map[string]int)
	for _, group := range e.lexical.Groups() {
		stats[group] = e.lexical.Count(group)
	}
	return stats
}
