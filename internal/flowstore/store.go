// Package flowstore persists the generated workflow of each agent.
package flowstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/schedule"
)

// Common errors returned by FlowStore implementations.
var (
	ErrFlowNotFound = errors.New("flow not found")
	ErrFlowExists   = errors.New("flow already exists")
)

// Flow is the latest specialization of one agent, together with the inputs
// that produced it so a later edit can start from them.
type Flow struct {
	AgentID         string             `json:"agent_id"`
	Name            string             `json:"name"`
	Provider        string             `json:"provider"`
	Instructions    string             `json:"instructions"`
	Schedule        schedule.Config    `json:"schedule"`
	Holidays        []schedule.Holiday `json:"holidays,omitempty"`
	Workflow        json.RawMessage    `json:"workflow"`
	WebhookURL      string             `json:"webhook_url,omitempty"`
	WebhookPath     string             `json:"webhook_path,omitempty"`
	TemplateVersion string             `json:"template_version,omitempty"`
	Deployable      bool               `json:"deployable"`
	Issues          []string           `json:"issues,omitempty"`
	DeploymentID    string             `json:"deployment_id,omitempty"`
	Revision        int                `json:"revision"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// ListOptions configures list queries.
type ListOptions struct {
	Limit    int
	Offset   int
	Provider string // Filter by language model provider
}

// FlowStore defines the interface for generated workflow persistence.
// Implementations must be safe for concurrent use.
type FlowStore interface {
	// Create saves a new flow. Returns ErrFlowExists if the agent already has one.
	Create(ctx context.Context, flow *Flow) (*Flow, error)

	// Get retrieves the flow of an agent. Returns ErrFlowNotFound if not found.
	Get(ctx context.Context, agentID string) (*Flow, error)

	// Update replaces the content of an existing flow and bumps its revision.
	// Returns ErrFlowNotFound if not found.
	Update(ctx context.Context, agentID string, flow *Flow) (*Flow, error)

	// Delete removes a flow. Returns ErrFlowNotFound if not found.
	Delete(ctx context.Context, agentID string) error

	// List returns flows matching the options ordered by agent id.
	List(ctx context.Context, opts *ListOptions) ([]*Flow, error)

	// Close releases any resources.
	Close() error
}

// Validate checks that a flow can be stored.
func (f *Flow) Validate() error {
	if len(f.Workflow) == 0 {
		return errors.New("flow workflow is required")
	}
	if f.Provider == "" {
		return errors.New("flow provider is required")
	}
	return nil
}

// Clone returns a copy sharing no slices with f.
func (f *Flow) Clone() *Flow {
	cp := *f
	cp.Workflow = append(json.RawMessage(nil), f.Workflow...)
	cp.Holidays = append([]schedule.Holiday(nil), f.Holidays...)
	cp.Issues = append([]string(nil), f.Issues...)
	return &cp
}

// replaceContent copies the specialization output of src into dst, keeping
// identity and creation time.
func replaceContent(dst, src *Flow) {
	dst.Name = src.Name
	dst.Provider = src.Provider
	dst.Instructions = src.Instructions
	dst.Schedule = src.Schedule
	dst.Holidays = append([]schedule.Holiday(nil), src.Holidays...)
	dst.Workflow = append(json.RawMessage(nil), src.Workflow...)
	dst.WebhookURL = src.WebhookURL
	dst.WebhookPath = src.WebhookPath
	dst.TemplateVersion = src.TemplateVersion
	dst.Deployable = src.Deployable
	dst.Issues = append([]string(nil), src.Issues...)
	dst.DeploymentID = src.DeploymentID
	dst.Revision++
	dst.UpdatedAt = time.Now().UTC()
}

// filterPage applies provider filtering, ordering, offset and limit.
func filterPage(flows []*Flow, opts *ListOptions) []*Flow {
	if opts == nil {
		opts = &ListOptions{}
	}

	out := flows[:0]
	for _, f := range flows {
		if opts.Provider != "" && f.Provider != opts.Provider {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []*Flow{}
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out
}
