package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/strataworks/strata/pipeline"
	"github.com/strataworks/strata/pipeline/cas"
)

// DefaultMinScore is the curation threshold used when the phase config
// does not set one.
const DefaultMinScore = 7.0

// CurateHandler filters scored documents down to the ones worth
// reporting on. Config:
//
//	min_score  minimum score to keep, parsed as a float (optional)
type CurateHandler struct {
	Store cas.Store
}

// Handle implements the pipeline.Handler interface.
func (h *CurateHandler) Handle(ctx context.Context, rc *pipeline.RunContext, config pipeline.PhaseConfig) pipeline.Result {
	minScore := DefaultMinScore
	if raw := config["min_score"]; raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return pipeline.Failure(fmt.Sprintf("curate: invalid min_score %q", raw))
		}
		minScore = parsed
	}

	scores, err := h.loadScores(ctx, rc)
	if err != nil {
		return pipeline.Failure(fmt.Sprintf("curate: %v", err))
	}

	curated := make([]DocScore, 0, len(scores))
	for _, score := range scores {
		if score.Score >= minScore {
			curated = append(curated, score)
		}
	}
	// Highest score first; ties keep ingest order.
	sort.SliceStable(curated, func(i, j int) bool { return curated[i].Score > curated[j].Score })

	payload, err := json.Marshal(curated)
	if err != nil {
		return pipeline.Failure(fmt.Sprintf("curate: failed to encode selection: %v", err))
	}
	hash, err := h.Store.Put(ctx, payload, cas.Metadata{
		"type":      "curated",
		"min_score": strconv.FormatFloat(minScore, 'f', -1, 64),
	})
	if err != nil {
		return pipeline.Failure(fmt.Sprintf("curate: failed to store selection: %v", err))
	}

	return pipeline.Result{
		Success:   true,
		Artifacts: []pipeline.ArtifactRef{{Category: CategoryCurated, Hash: hash}},
		Update: pipeline.Update{
			PhaseResults: map[string]interface{}{
				"curate": map[string]interface{}{
					"considered": len(scores),
					"selected":   len(curated),
					"min_score":  minScore,
				},
			},
		},
	}
}

func (h *CurateHandler) loadScores(ctx context.Context, rc *pipeline.RunContext) ([]DocScore, error) {
	hashes := rc.Artifacts[CategoryScores]
	if len(hashes) == 0 {
		return nil, fmt.Errorf("no score artifact recorded")
	}

	// The scoring phase writes one artifact per run; the last one wins
	// if a re-run produced several.
	data, err := h.Store.Get(ctx, hashes[len(hashes)-1])
	if err != nil {
		return nil, fmt.Errorf("failed to load scores: %w", err)
	}

	var scores []DocScore
	if err := json.Unmarshal(data, &scores); err != nil {
		return nil, fmt.Errorf("failed to decode scores: %w", err)
	}
	return scores, nil
}
