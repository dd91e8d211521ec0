package pipeline

import "sync"

// PhaseSpec declares one phase of a workflow: its name, the name of the
// handler that performs it, and the handler's configuration.
type PhaseSpec struct {
	Name    string      `json:"name"`
	Handler string      `json:"handler"`
	Config  PhaseConfig `json:"config,omitempty"`
}

// Workflow is an ordered list of phase specifications, supplied by the
// caller for each run. It is embedded in every checkpoint so the resume
// analyzer can diff the saved definition against the one supplied later.
type Workflow struct {
	Phases []PhaseSpec `json:"phases"`
}

// Len reports the number of phases.
func (w Workflow) Len() int { return len(w.Phases) }

// Registry maps handler names to Handler implementations.
//
// The registry is populated at startup; unknown names fail at
// registration or validation time, not at run time. This replaces
// dynamic, reflection-based handler loading with one explicit mapping.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler name to an implementation.
//
// Returns a PipelineError (CodeInvalidWorkflow) if the name is empty,
// the handler is nil, or the name is already taken.
func (r *Registry) Register(name string, handler Handler) error {
	if name == "" {
		return &PipelineError{Message: "handler name cannot be empty", Code: CodeInvalidWorkflow}
	}
	if handler == nil {
		return &PipelineError{Message: "handler cannot be nil", Code: CodeInvalidWorkflow}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return &PipelineError{Message: "duplicate handler name: " + name, Code: CodeInvalidWorkflow}
	}

	r.handlers[name] = handler
	return nil
}

// Resolve looks up a handler by name.
func (r *Registry) Resolve(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, exists := r.handlers[name]
	return handler, exists
}

// Validate checks that every phase in the workflow names a registered
// handler and a non-empty phase name. Called by the executor before the
// first phase runs, so a misconfigured workflow fails up front rather
// than mid-run.
func (r *Registry) Validate(wf Workflow) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(wf.Phases) == 0 {
		return &PipelineError{Message: "workflow has no phases", Code: CodeInvalidWorkflow}
	}
	for _, phase := range wf.Phases {
		if phase.Name == "" {
			return &PipelineError{
				Message: "phase name cannot be empty",
				Code:    CodeInvalidWorkflow,
			}
		}
		if _, exists := r.handlers[phase.Handler]; !exists {
			return &PipelineError{
				Message: "no handler registered for phase " + phase.Name,
				Code:    CodeUnknownPhase,
				Phase:   phase.Name,
			}
		}
	}
	return nil
}
