package validator

import (
	"fmt"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/graph"
)

// RequiredKinds must each appear at least once in a deployable workflow.
var RequiredKinds = []graph.Kind{graph.KindEntryTrigger, graph.KindAgent, graph.KindChannel}

// Report is the advisory outcome of a structural check.
type Report struct {
	Deployable     bool              `json:"deployable"`
	Missing        []graph.Kind      `json:"missing,omitempty"`
	Dangling       []string          `json:"dangling,omitempty"`
	DuplicateNames []string          `json:"duplicate_names,omitempty"`
	Parameters     []ValidationError `json:"parameters,omitempty"`
}

// Issues flattens the report into human-readable lines.
func (r Report) Issues() []string {
	var out []string
	for _, k := range r.Missing {
		out = append(out, fmt.Sprintf("missing node kind %s", k))
	}
	for _, d := range r.Dangling {
		out = append(out, "dangling connection "+d)
	}
	for _, n := range r.DuplicateNames {
		out = append(out, fmt.Sprintf("duplicate node name %q", n))
	}
	for _, p := range r.Parameters {
		out = append(out, fmt.Sprintf("%s: %s", p.Path, p.Message))
	}
	return out
}

// Structure checks that wf has an entry trigger, an agent and a channel
// connector, that every connection resolves by name, that names are unique,
// and that the parameters of known node kinds decode.
func Structure(wf *graph.Workflow) Report {
	var r Report

	for _, k := range RequiredKinds {
		if _, ok := wf.FirstOfKind(k); !ok {
			r.Missing = append(r.Missing, k)
		}
	}

	for _, e := range wf.Dangling() {
		r.Dangling = append(r.Dangling, fmt.Sprintf("%s[%s] -> %s[%s]", e.Source, e.Port, e.Target.Node, e.Target.Port))
	}

	seen := map[string]bool{}
	for _, n := range wf.Nodes {
		if seen[n.Name] {
			r.DuplicateNames = append(r.DuplicateNames, n.Name)
		}
		seen[n.Name] = true

		if _, err := n.TypedParams(); err != nil {
			r.Parameters = append(r.Parameters, ValidationError{
				Path:    "nodes/" + n.Name + "/parameters",
				Message: err.Error(),
			})
		}
	}

	r.Deployable = len(r.Missing) == 0 && len(r.Dangling) == 0 && len(r.DuplicateNames) == 0
	return r
}
