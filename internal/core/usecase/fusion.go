package usecase

import (
	"hash/fnv"
	"sort"

	"github.com/Anudeepsrib/ClinIQ/internal/core/domain"
)

type fusedCandidate struct {
	result domain.RetrievalResult
	score  float64
}

// fuseWeightedRRF merges a semantic and a lexical ranking for one group with
// weighted reciprocal-rank fusion. Either list may be empty; an empty
// lexical list yields semantic-only scores that stay comparable across
// groups. The output order is deterministic for identical inputs.
func fuseWeightedRRF(semantic, lexical []domain.RetrievalResult, semWeight, lexWeight float64, rrfK int) []domain.RetrievalResult {
	if rrfK <= 0 {
		rrfK = 60
	}

	order := make([]string, 0, len(semantic)+len(lexical))
	acc := make(map[string]fusedCandidate, len(semantic)+len(lexical))
	addList := func(results []domain.RetrievalResult, weight float64) {
		for rank, result := range results {
			key := resultKey(result)
			candidate, seen := acc[key]
			if !seen {
				candidate.result = result
				order = append(order, key)
			}
			candidate.score += weight / float64(rrfK+rank+1)
			acc[key] = candidate
		}
	}

	addList(semantic, semWeight)
	addList(lexical, lexWeight)

	out := make([]domain.RetrievalResult, 0, len(acc))
	for _, key := range order {
		candidate := acc[key]
		result := candidate.result
		result.Score = candidate.score
		out = append(out, result)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})

	return out
}

func resultKey(result domain.RetrievalResult) string {
	if result.ChunkID != "" {
		return result.ChunkID
	}
	return result.Group + "|" + result.Source + "|" + result.Content
}

// dedupByContent drops later results whose full content fingerprint was
// already seen. Callers order the input best-first, so the highest-scored
// occurrence survives across groups and retrieval modes.
func dedupByContent(results []domain.RetrievalResult) []domain.RetrievalResult {
	seen := make(map[uint64]struct{}, len(results))
	out := make([]domain.RetrievalResult, 0, len(results))
	for _, result := range results {
		fp := contentFingerprint(result.Content)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, result)
	}
	return out
}

func contentFingerprint(content string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(content))
	return h.Sum64()
}

func trimResults(results []domain.RetrievalResult, limit int) []domain.RetrievalResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}
