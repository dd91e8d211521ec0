package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/strataworks/strata/pipeline"
	"github.com/strataworks/strata/pipeline/cas"
	"github.com/strataworks/strata/pipeline/model"
)

// DocScore is one document's relevance assessment.
type DocScore struct {
	Hash      string  `json:"hash"`
	Source    string  `json:"source"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// ScoreHandler asks a chat model to rate each ingested document's
// relevance to a research question. Config:
//
//	question  the research question to score against (required)
type ScoreHandler struct {
	Store cas.Store
	Model model.ChatModel
}

const scoreSystemPrompt = "You are a research assistant rating how relevant a document " +
	"is to a research question. Respond ONLY with a JSON object of the form " +
	`{"score": <number 0-10>, "rationale": "<one sentence>"}. No markdown, no extra text.`

// Handle implements the pipeline.Handler interface.
//
// Scores are reported incrementally through pipeline.ReportProgress,
// so an interrupted scoring phase loses at most one document's work.
func (h *ScoreHandler) Handle(ctx context.Context, rc *pipeline.RunContext, config pipeline.PhaseConfig) pipeline.Result {
	question := config["question"]
	if question == "" {
		return pipeline.Failure("score: question is required")
	}

	hashes := rc.Artifacts[CategoryDocuments]
	if len(hashes) == 0 {
		return pipeline.Failure("score: no ingested documents to score")
	}

	scores := make([]DocScore, 0, len(hashes))
	for _, hash := range hashes {
		data, err := h.Store.Get(ctx, hash)
		if err != nil {
			return pipeline.Failure(fmt.Sprintf("score: failed to load document %s: %v", hash, err))
		}

		score, err := h.scoreDocument(ctx, question, string(data))
		if err != nil {
			return pipeline.Failure(fmt.Sprintf("score: document %s: %v", hash, err))
		}
		score.Hash = hash
		score.Source = documentSource(ctx, h.Store, hash)
		scores = append(scores, score)

		_ = pipeline.ReportProgress(ctx, pipeline.Update{
			Metadata: map[string]string{"scored_documents": fmt.Sprintf("%d", len(scores))},
		})
	}

	payload, err := json.Marshal(scores)
	if err != nil {
		return pipeline.Failure(fmt.Sprintf("score: failed to encode scores: %v", err))
	}
	hash, err := h.Store.Put(ctx, payload, cas.Metadata{"type": "scores", "question": question})
	if err != nil {
		return pipeline.Failure(fmt.Sprintf("score: failed to store scores: %v", err))
	}

	return pipeline.Result{
		Success:   true,
		Artifacts: []pipeline.ArtifactRef{{Category: CategoryScores, Hash: hash}},
		Update: pipeline.Update{
			PhaseResults: map[string]interface{}{
				"score": map[string]interface{}{
					"documents": len(scores),
					"scores":    hash,
				},
			},
		},
	}
}

func (h *ScoreHandler) scoreDocument(ctx context.Context, question, content string) (DocScore, error) {
	resp, err := h.Model.Complete(ctx, model.Request{
		System: scoreSystemPrompt,
		Prompt: fmt.Sprintf("Research question: %s\n\nDocument:\n%s", question, content),
	})
	if err != nil {
		return DocScore{}, err
	}

	var parsed struct {
		Score     float64 `json:"score"`
		Rationale string  `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text)), &parsed); err != nil {
		return DocScore{}, fmt.Errorf("unparsable model response: %w", err)
	}
	return DocScore{Score: parsed.Score, Rationale: parsed.Rationale}, nil
}

// documentSource recovers the source filename recorded at ingest time.
func documentSource(ctx context.Context, store cas.Store, hash string) string {
	records, err := store.GetMetadata(ctx, hash)
	if err != nil {
		return ""
	}
	for _, record := range records {
		if source, ok := record["source"]; ok {
			return source
		}
	}
	return ""
}

// cleanJSON strips the markdown code fences models sometimes wrap
// around JSON output.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
