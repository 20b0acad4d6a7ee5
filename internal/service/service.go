// Package service is the application layer around the specialization
// engine: it resolves the active template, reuses the inputs of the previous
// specialization of an agent, persists the result and optionally deploys it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/credentials"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/deployer"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/flowstore"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/graph"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/metrics"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/prompt"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/schedule"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/specializer"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/templatesource"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/tracing"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/validator"
)

// Errors surfaced to callers.
var (
	// ErrGenerationFailed is the user-facing form of any fatal pipeline error.
	ErrGenerationFailed = errors.New("could not generate the conversational workflow, contact support")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrNoTemplate       = errors.New("no template loaded")
)

// Templates hands out the active template.
type Templates interface {
	Current() *templatesource.Template
	Reload(ctx context.Context) (*templatesource.Template, error)
}

// Deployer hands workflows to the orchestration engine.
type Deployer interface {
	Deploy(ctx context.Context, wf *graph.Workflow, existingID string) (*deployer.Deployment, error)
	Remove(ctx context.Context, id string) error
}

// SpecializeRequest is one edit of an agent. Nil fields fall back to the
// values of the agent's previous specialization.
type SpecializeRequest struct {
	AgentID       string             `json:"agent_id" yaml:"agent_id"`
	Name          string             `json:"name,omitempty" yaml:"name,omitempty"`
	Provider      string             `json:"provider,omitempty" yaml:"provider,omitempty"`
	Instructions  *string            `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Schedule      *schedule.Config   `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	Holidays      []schedule.Holiday `json:"holidays,omitempty" yaml:"holidays,omitempty"`
	RegenerateIDs bool               `json:"regenerate_ids,omitempty" yaml:"regenerate_ids,omitempty"`
	Deploy        bool               `json:"deploy,omitempty" yaml:"deploy,omitempty"`
}

// Outcome is the stored flow plus anything that went wrong after generation.
type Outcome struct {
	Flow        *flowstore.Flow `json:"flow"`
	DeployError string          `json:"deploy_error,omitempty"`
}

// TemplateReport is the result of checking a candidate template.
type TemplateReport struct {
	Schema    *validator.ValidationResult `json:"schema"`
	Structure *validator.Report           `json:"structure,omitempty"`
}

// Options configures a Service.
type Options struct {
	Templates Templates
	Engine    *specializer.Engine
	Store     flowstore.FlowStore
	Validator *validator.Validator

	// Deployer is optional.
	Deployer Deployer
	Logger   *slog.Logger
}

// Service implements the specializer use cases.
type Service struct {
	templates Templates
	engine    *specializer.Engine
	store     flowstore.FlowStore
	validator *validator.Validator
	deployer  Deployer
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New creates a service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		templates: opts.Templates,
		engine:    opts.Engine,
		store:     opts.Store,
		validator: opts.Validator,
		deployer:  opts.Deployer,
		logger:    logger,
		tracer:    tracing.Tracer(),
	}
}

// Specialize generates the workflow of an agent and stores it.
func (s *Service) Specialize(ctx context.Context, req SpecializeRequest) (out *Outcome, err error) {
	ctx, span := s.tracer.Start(ctx, "service.Specialize",
		trace.WithAttributes(attribute.String("agent.id", req.AgentID)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var prev *flowstore.Flow
	if req.AgentID != "" {
		prev, err = s.store.Get(ctx, req.AgentID)
		s.observeStore("get", err)
		switch {
		case errors.Is(err, flowstore.ErrFlowNotFound):
			prev = nil
		case err != nil:
			return nil, err
		}
	}

	in, err := resolveInputs(req, prev)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("provider", string(in.Provider)))

	tmpl := s.templates.Current()
	if tmpl == nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, ErrNoTemplate)
	}

	start := time.Now()
	res, err := s.engine.Specialize(tmpl, in)
	metrics.SpecializationDuration.WithLabelValues(string(in.Provider)).Observe(time.Since(start).Seconds())
	if err != nil {
		result := "error"
		var integrity *graph.TemplateIntegrityError
		if errors.As(err, &integrity) {
			result = "integrity_error"
		}
		metrics.SpecializationsTotal.WithLabelValues(string(in.Provider), result).Inc()
		s.logger.Error("specialization failed",
			"agent_id", req.AgentID,
			"template", tmpl.Name,
			"template_version", tmpl.Version,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	metrics.SpecializationsTotal.WithLabelValues(string(in.Provider), "success").Inc()
	if !res.Validation.Deployable {
		metrics.ValidationWarnings.Inc()
	}

	res.Workflow.Name = workflowName(req, prev)
	data, err := res.Workflow.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	flow := &flowstore.Flow{
		AgentID:         req.AgentID,
		Name:            res.Workflow.Name,
		Provider:        string(in.Provider),
		Instructions:    prompt.BaseInstructions(in.Instructions),
		Schedule:        in.Schedule,
		Holidays:        in.Holidays,
		Workflow:        data,
		WebhookURL:      res.WebhookURL,
		WebhookPath:     res.WebhookPath,
		TemplateVersion: tmpl.Version,
		Deployable:      res.Validation.Deployable,
		Issues:          res.Validation.Issues(),
	}
	if prev != nil {
		flow.DeploymentID = prev.DeploymentID
	}

	out = &Outcome{}
	if req.Deploy {
		if id, derr := s.deploy(ctx, res.Workflow, flow.DeploymentID); derr != nil {
			out.DeployError = derr.Error()
		} else {
			flow.DeploymentID = id
		}
	}

	if prev == nil {
		out.Flow, err = s.store.Create(ctx, flow)
		s.observeStore("create", err)
	} else {
		out.Flow, err = s.store.Update(ctx, prev.AgentID, flow)
		s.observeStore("update", err)
	}
	if err != nil {
		return nil, fmt.Errorf("save flow: %w", err)
	}

	s.logger.Info("workflow specialized",
		"agent_id", out.Flow.AgentID,
		"provider", out.Flow.Provider,
		"revision", out.Flow.Revision,
		"deployable", out.Flow.Deployable,
		"template_version", tmpl.Version,
	)
	return out, nil
}

// resolveInputs merges the request with the previous specialization.
func resolveInputs(req SpecializeRequest, prev *flowstore.Flow) (specializer.Request, error) {
	var in specializer.Request
	in.RegenerateIDs = req.RegenerateIDs

	providerTag := req.Provider
	if providerTag == "" && prev != nil {
		providerTag = prev.Provider
	}
	if providerTag == "" {
		return in, fmt.Errorf("%w: provider is required", ErrInvalidRequest)
	}
	p, err := credentials.ParseProvider(providerTag)
	if err != nil {
		return in, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	in.Provider = p

	switch {
	case req.Instructions != nil:
		in.Instructions = *req.Instructions
	case prev != nil:
		in.Instructions = prev.Instructions
	}
	switch {
	case req.Schedule != nil:
		in.Schedule = *req.Schedule
	case prev != nil:
		in.Schedule = prev.Schedule
	}
	switch {
	case req.Holidays != nil:
		in.Holidays = req.Holidays
	case prev != nil:
		in.Holidays = prev.Holidays
	}
	if prev != nil {
		in.WebhookURL = prev.WebhookURL
	}
	return in, nil
}

func workflowName(req SpecializeRequest, prev *flowstore.Flow) string {
	switch {
	case req.Name != "":
		return req.Name
	case prev != nil && prev.Name != "":
		return prev.Name
	case req.AgentID != "":
		return "Agent " + req.AgentID
	default:
		return "Conversational agent"
	}
}

func (s *Service) deploy(ctx context.Context, wf *graph.Workflow, existingID string) (string, error) {
	if s.deployer == nil {
		return "", errors.New("deployment is not configured")
	}
	ctx, span := s.tracer.Start(ctx, "service.Deploy")
	defer span.End()

	dep, err := s.deployer.Deploy(ctx, wf, existingID)
	metrics.DeploymentsTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("deployment failed", "existing_id", existingID, "error", err)
		return "", err
	}
	return dep.ID, nil
}

// Get returns the stored flow of an agent.
func (s *Service) Get(ctx context.Context, agentID string) (*flowstore.Flow, error) {
	flow, err := s.store.Get(ctx, agentID)
	s.observeStore("get", err)
	return flow, err
}

// List returns stored flows.
func (s *Service) List(ctx context.Context, opts *flowstore.ListOptions) ([]*flowstore.Flow, error) {
	flows, err := s.store.List(ctx, opts)
	s.observeStore("list", err)
	return flows, err
}

// Delete removes the stored flow and, when deployed, the engine copy.
func (s *Service) Delete(ctx context.Context, agentID string) error {
	flow, err := s.store.Get(ctx, agentID)
	s.observeStore("get", err)
	if err != nil {
		return err
	}

	if flow.DeploymentID != "" && s.deployer != nil {
		if err := s.deployer.Remove(ctx, flow.DeploymentID); err != nil {
			s.logger.Warn("could not remove deployed workflow",
				"agent_id", agentID,
				"deployment_id", flow.DeploymentID,
				"error", err,
			)
		}
	}

	err = s.store.Delete(ctx, agentID)
	s.observeStore("delete", err)
	return err
}

// PreviewSchedule renders the scheduling policy text alone.
func (s *Service) PreviewSchedule(cfg schedule.Config, holidays []schedule.Holiday) string {
	return schedule.Text(cfg, holidays)
}

// ValidateTemplate checks a candidate template document. The structural
// report is only present when the document passes the schema.
func (s *Service) ValidateTemplate(data []byte) *TemplateReport {
	rep := &TemplateReport{Schema: s.validator.ValidateWorkflowJSON(data)}
	if !rep.Schema.Valid {
		return rep
	}
	wf, err := graph.Decode(data)
	if err != nil {
		rep.Schema = &validator.ValidationResult{
			Errors: []validator.ValidationError{{Path: "$", Message: err.Error()}},
		}
		return rep
	}
	structure := validator.Structure(wf)
	rep.Structure = &structure
	return rep
}

// Template returns the active template.
func (s *Service) Template() *templatesource.Template {
	return s.templates.Current()
}

// ReloadTemplate re-reads the template source.
func (s *Service) ReloadTemplate(ctx context.Context) (*templatesource.Template, error) {
	tmpl, err := s.templates.Reload(ctx)
	metrics.TemplateReloads.WithLabelValues(metrics.Result(err)).Inc()
	return tmpl, err
}

// Ping checks that the store answers.
func (s *Service) Ping(ctx context.Context) error {
	if s.templates.Current() == nil {
		return ErrNoTemplate
	}
	_, err := s.store.List(ctx, &flowstore.ListOptions{Limit: 1})
	return err
}

func (s *Service) observeStore(op string, err error) {
	result := metrics.Result(err)
	if errors.Is(err, flowstore.ErrFlowNotFound) {
		result = "not_found"
	}
	metrics.FlowStoreOperations.WithLabelValues(op, result).Inc()
}
