package analysis

import (
	"github.com/strataworks/strata/pipeline"
	"github.com/strataworks/strata/pipeline/cas"
	"github.com/strataworks/strata/pipeline/model"
)

// Handler names registered by Register.
const (
	HandlerIngest = "ingest"
	HandlerScore  = "score"
	HandlerCurate = "curate"
	HandlerReport = "report"
)

// Register binds all analysis handlers into a registry.
func Register(reg *pipeline.Registry, store cas.Store, chat model.ChatModel) error {
	handlers := map[string]pipeline.Handler{
		HandlerIngest: &IngestHandler{Store: store},
		HandlerScore:  &ScoreHandler{Store: store, Model: chat},
		HandlerCurate: &CurateHandler{Store: store},
		HandlerReport: &ReportHandler{Store: store, Model: chat},
	}
	for _, name := range []string{HandlerIngest, HandlerScore, HandlerCurate, HandlerReport} {
		if err := reg.Register(name, handlers[name]); err != nil {
			return err
		}
	}
	return nil
}

// WorkflowConfig carries the per-run settings for NewWorkflow.
type WorkflowConfig struct {
	// InputDir holds the documents to ingest.
	InputDir string

	// Question is the research question driving scoring and reporting.
	Question string

	// OutputDir receives the on-disk report copy. Empty keeps the
	// report artifact-only.
	OutputDir string

	// MinScore is the curation threshold. Empty uses the handler
	// default.
	MinScore string
}

// NewWorkflow builds the standard four-phase analysis workflow.
func NewWorkflow(cfg WorkflowConfig) pipeline.Workflow {
	curateConfig := pipeline.PhaseConfig{}
	if cfg.MinScore != "" {
		curateConfig["min_score"] = cfg.MinScore
	}
	reportConfig := pipeline.PhaseConfig{"question": cfg.Question}
	if cfg.OutputDir != "" {
		reportConfig["output_dir"] = cfg.OutputDir
	}

	return pipeline.Workflow{Phases: []pipeline.PhaseSpec{
		{Name: "ingest", Handler: HandlerIngest, Config: pipeline.PhaseConfig{"input_path": cfg.InputDir}},
		{Name: "score", Handler: HandlerScore, Config: pipeline.PhaseConfig{"question": cfg.Question}},
		{Name: "curate", Handler: HandlerCurate, Config: curateConfig},
		{Name: "report", Handler: HandlerReport, Config: reportConfig},
	}}
}
