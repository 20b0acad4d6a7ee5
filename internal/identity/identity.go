// Package identity assigns the public webhook path of a workflow and
// regenerates internal node identifiers.
package identity

import (
	"strings"

	"github.com/google/uuid"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/graph"
)

// Assignment is the outcome of a webhook path assignment.
type Assignment struct {
	Path     string
	URL      string
	Assigned bool
}

// Assigner generates identifiers for specialized workflows.
type Assigner struct {
	baseURL string
	newID   func() string
}

// Option configures an Assigner.
type Option func(*Assigner)

// WithIDGenerator replaces the random UUIDv4 source.
func WithIDGenerator(fn func() string) Option {
	return func(a *Assigner) { a.newID = fn }
}

// NewAssigner creates an assigner publishing webhooks under baseURL.
func NewAssigner(baseURL string, opts ...Option) *Assigner {
	a := &Assigner{baseURL: baseURL, newID: uuid.NewString}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WebhookURL joins the public base URL and a path.
func (a *Assigner) WebhookURL(path string) string {
	if a.baseURL == "" {
		return path
	}
	return strings.TrimSuffix(a.baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

// AssignWebhook gives the entry trigger a fresh path and webhook id. Without
// an entry trigger nothing changes and fallbackURL is returned.
func (a *Assigner) AssignWebhook(wf *graph.Workflow, fallbackURL string) Assignment {
	trigger, ok := wf.FirstOfKind(graph.KindEntryTrigger)
	if !ok {
		return Assignment{URL: fallbackURL}
	}

	path := a.newID()
	if trigger.Parameters == nil {
		trigger.Parameters = map[string]any{}
	}
	trigger.Parameters["path"] = path
	trigger.WebhookID = path
	return Assignment{Path: path, URL: a.WebhookURL(path), Assigned: true}
}

// RegenerateIDs gives every node a fresh id and returns the old to new
// mapping. Connections are keyed by name; references still keyed by an old
// id are first rewritten to the node's name so nothing points at a
// discarded id afterwards.
func (a *Assigner) RegenerateIDs(wf *graph.Workflow) map[string]string {
	wf.NormalizeReferences()

	mapping := make(map[string]string, len(wf.Nodes))
	for _, n := range wf.Nodes {
		id := a.newID()
		if n.ID != "" {
			mapping[n.ID] = id
		}
		n.ID = id
	}
	return mapping
}
