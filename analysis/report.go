package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/strataworks/strata/pipeline"
	"github.com/strataworks/strata/pipeline/cas"
	"github.com/strataworks/strata/pipeline/model"
)

// ReportHandler renders a markdown report over the curated documents.
// The report is stored as an artifact and, when output_dir is set,
// also written to disk. Config:
//
//	question    the research question the report answers (required)
//	output_dir  directory for the on-disk copy (optional, created if needed)
type ReportHandler struct {
	Store cas.Store
	Model model.ChatModel
}

const reportSystemPrompt = "You are a research assistant. Write a concise synthesis " +
	"(3-5 paragraphs, plain prose) of the document excerpts provided, answering the " +
	"research question. Do not invent sources."

// Handle implements the pipeline.Handler interface.
func (h *ReportHandler) Handle(ctx context.Context, rc *pipeline.RunContext, config pipeline.PhaseConfig) pipeline.Result {
	question := config["question"]
	if question == "" {
		return pipeline.Failure("report: question is required")
	}

	curated, err := h.loadCurated(ctx, rc)
	if err != nil {
		return pipeline.Failure(fmt.Sprintf("report: %v", err))
	}

	synthesis, err := h.synthesize(ctx, question, curated)
	if err != nil {
		return pipeline.Failure(fmt.Sprintf("report: synthesis failed: %v", err))
	}

	content := renderReport(rc.RunID, question, curated, synthesis)
	hash, err := h.Store.Put(ctx, []byte(content), cas.Metadata{
		"type":     "report",
		"question": question,
	})
	if err != nil {
		return pipeline.Failure(fmt.Sprintf("report: failed to store report: %v", err))
	}

	result := map[string]interface{}{
		"report":    hash,
		"documents": len(curated),
	}
	if outputDir := config["output_dir"]; outputDir != "" {
		path, err := writeReportFile(outputDir, content)
		if err != nil {
			return pipeline.Failure(fmt.Sprintf("report: %v", err))
		}
		result["report_file"] = path
	}

	return pipeline.Result{
		Success:   true,
		Artifacts: []pipeline.ArtifactRef{{Category: CategoryReport, Hash: hash}},
		Update: pipeline.Update{
			PhaseResults: map[string]interface{}{"report": result},
		},
	}
}

func (h *ReportHandler) loadCurated(ctx context.Context, rc *pipeline.RunContext) ([]DocScore, error) {
	hashes := rc.Artifacts[CategoryCurated]
	if len(hashes) == 0 {
		return nil, fmt.Errorf("no curated artifact recorded")
	}

	data, err := h.Store.Get(ctx, hashes[len(hashes)-1])
	if err != nil {
		return nil, fmt.Errorf("failed to load curated selection: %w", err)
	}

	var curated []DocScore
	if err := json.Unmarshal(data, &curated); err != nil {
		return nil, fmt.Errorf("failed to decode curated selection: %w", err)
	}
	return curated, nil
}

// synthesize asks the model for a prose synthesis over the curated
// document excerpts. With nothing curated, the report states that
// instead of calling the model.
func (h *ReportHandler) synthesize(ctx context.Context, question string, curated []DocScore) (string, error) {
	if len(curated) == 0 {
		return "No documents met the curation threshold.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Research question: %s\n\n", question)
	for _, doc := range curated {
		excerpt, err := h.Store.Get(ctx, doc.Hash)
		if err != nil {
			return "", fmt.Errorf("failed to load document %s: %w", doc.Hash, err)
		}
		fmt.Fprintf(&sb, "Document %s (score %.1f):\n%s\n\n", doc.Source, doc.Score, truncate(string(excerpt), 2000))
	}

	resp, err := h.Model.Complete(ctx, model.Request{
		System: reportSystemPrompt,
		Prompt: sb.String(),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func renderReport(runID, question string, curated []DocScore, synthesis string) string {
	var sb strings.Builder
	sb.WriteString("# Research Report\n\n")
	fmt.Fprintf(&sb, "- Run: %s\n", runID)
	fmt.Fprintf(&sb, "- Question: %s\n", question)
	fmt.Fprintf(&sb, "- Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))

	sb.WriteString("## Synthesis\n\n")
	sb.WriteString(synthesis)
	sb.WriteString("\n\n## Sources\n\n")

	if len(curated) == 0 {
		sb.WriteString("_none_\n")
		return sb.String()
	}
	sb.WriteString("| Source | Score | Rationale |\n")
	sb.WriteString("|--------|-------|-----------|\n")
	for _, doc := range curated {
		fmt.Fprintf(&sb, "| %s | %.1f | %s |\n", doc.Source, doc.Score, doc.Rationale)
	}
	return sb.String()
}

func writeReportFile(dir, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("report-%s.md", time.Now().Format("20060102-150405")))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
