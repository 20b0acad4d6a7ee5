// Package specializer runs the fixed specialization pipeline over a private
// copy of the canonical template: sanitize, bind credentials, compose the
// agent instructions, assign identifiers and validate.
package specializer

import (
	"fmt"
	"log/slog"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/credentials"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/graph"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/identity"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/prompt"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/sanitize"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/schedule"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/validator"
)

// Template yields a fresh working graph on every call.
type Template interface {
	Instantiate() (*graph.Workflow, error)
}

// Request carries the tenant-supplied inputs of one specialization.
type Request struct {
	Provider     credentials.Provider
	Instructions string
	Schedule     schedule.Config
	Holidays     []schedule.Holiday

	// WebhookURL is the previously published URL, returned unchanged when the
	// template has no entry trigger.
	WebhookURL string

	// RegenerateIDs gives every node a fresh id, for cloning templates.
	RegenerateIDs bool
}

// Result is the specialized workflow and what was derived along the way.
type Result struct {
	Workflow    *graph.Workflow
	WebhookURL  string
	WebhookPath string
	Composed    bool
	Sanitized   sanitize.Report
	Validation  validator.Report
}

// Config configures an Engine.
type Config struct {
	Credentials    credentials.Set
	WebhookBaseURL string
	Logger         *slog.Logger

	// IDGenerator overrides the UUIDv4 source (tests).
	IDGenerator func() string
}

// Engine is safe for concurrent use; it holds no per-request state.
type Engine struct {
	binder   *credentials.Binder
	assigner *identity.Assigner
	logger   *slog.Logger
}

// New creates an engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var opts []identity.Option
	if cfg.IDGenerator != nil {
		opts = append(opts, identity.WithIDGenerator(cfg.IDGenerator))
	}
	return &Engine{
		binder:   credentials.NewBinder(cfg.Credentials),
		assigner: identity.NewAssigner(cfg.WebhookBaseURL, opts...),
		logger:   logger,
	}
}

// Specialize runs the pipeline. Only template decoding failures, unknown
// providers and *graph.TemplateIntegrityError abort; everything else degrades
// to a fallback. A workflow that fails the structural check is still returned.
func (e *Engine) Specialize(tmpl Template, req Request) (*Result, error) {
	wf, err := tmpl.Instantiate()
	if err != nil {
		return nil, fmt.Errorf("instantiate template: %w", err)
	}

	res := &Result{Workflow: wf}
	res.Sanitized = sanitize.Workflow(wf)

	if err := e.binder.Bind(wf, req.Provider); err != nil {
		return nil, err
	}

	res.Composed = prompt.Apply(wf, req.Instructions, req.Schedule, req.Holidays)
	if !res.Composed {
		e.logger.Warn("template has no agent node, instructions not applied")
	}

	assignment := e.assigner.AssignWebhook(wf, req.WebhookURL)
	res.WebhookURL = assignment.URL
	res.WebhookPath = assignment.Path
	if !assignment.Assigned {
		e.logger.Warn("template has no entry trigger, keeping previous webhook url",
			"webhook_url", req.WebhookURL,
		)
	}

	if req.RegenerateIDs {
		e.assigner.RegenerateIDs(wf)
	}

	res.Validation = validator.Structure(wf)
	if !res.Validation.Deployable {
		e.logger.Warn("generated workflow failed structural validation",
			"issues", res.Validation.Issues(),
		)
	}

	return res, nil
}
