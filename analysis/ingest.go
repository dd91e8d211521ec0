// Package analysis provides research-analysis phase handlers: ingest
// documents into the artifact store, score them with a chat model,
// curate the high scorers, and render a report.
//
// Each handler implements pipeline.Handler and stays thin: read
// artifacts, call the model where needed, write artifacts back. All
// document bytes live in the content-addressable store; the run
// context only carries hashes.
package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/strataworks/strata/pipeline"
	"github.com/strataworks/strata/pipeline/cas"
)

// Artifact categories produced by the analysis handlers.
const (
	CategoryDocuments = "documents"
	CategoryScores    = "scores"
	CategoryCurated   = "curated"
	CategoryReport    = "report"
)

// IngestHandler loads source documents from a directory into the
// artifact store. Config:
//
//	input_path  directory holding .txt and .md documents (required)
type IngestHandler struct {
	Store cas.Store
}

// Handle implements the pipeline.Handler interface.
func (h *IngestHandler) Handle(ctx context.Context, rc *pipeline.RunContext, config pipeline.PhaseConfig) pipeline.Result {
	inputDir := config["input_path"]
	if inputDir == "" {
		return pipeline.Failure("ingest: input_path is required")
	}

	paths, err := listDocuments(inputDir)
	if err != nil {
		return pipeline.Failure(fmt.Sprintf("ingest: %v", err))
	}
	if len(paths) == 0 {
		return pipeline.Failure(fmt.Sprintf("ingest: no documents found under %s", inputDir))
	}

	var refs []pipeline.ArtifactRef
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return pipeline.Failure(fmt.Sprintf("ingest: failed to read %s: %v", path, err))
		}

		hash, err := h.Store.Put(ctx, data, cas.Metadata{
			"type":   "document",
			"source": filepath.Base(path),
		})
		if err != nil {
			return pipeline.Failure(fmt.Sprintf("ingest: failed to store %s: %v", path, err))
		}
		refs = append(refs, pipeline.ArtifactRef{Category: CategoryDocuments, Hash: hash})
	}

	return pipeline.Result{
		Success:   true,
		Artifacts: refs,
		Update: pipeline.Update{
			PhaseResults: map[string]interface{}{
				"ingest": map[string]interface{}{
					"documents": len(refs),
					"source":    inputDir,
				},
			},
		},
	}
}

// listDocuments returns the .txt and .md files directly under dir, in
// name order so ingestion is deterministic.
func listDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".txt", ".md":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
