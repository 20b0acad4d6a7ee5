// Package sanitize strips authoring-only artifacts from a workflow so the
// exported graph is portable.
package sanitize

import (
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/graph"
)

// Report summarizes what a sanitization pass changed.
type Report struct {
	RemovedNodes      int
	NormalizedTrigger int
}

// Workflow removes decorative nodes and forces every entry trigger to answer
// on receipt with no authoring options. Running it twice is the same as once.
func Workflow(wf *graph.Workflow) Report {
	var rep Report
	rep.RemovedNodes = wf.RemoveNodes(func(n *graph.Node) bool {
		return n.Kind() == graph.KindDecorative
	})

	for _, n := range wf.NodesOfKind(graph.KindEntryTrigger) {
		normalizeTrigger(n)
		rep.NormalizedTrigger++
	}
	return rep
}

// normalizeTrigger writes the bag directly rather than through TriggerParams
// so a malformed parameter elsewhere in the bag cannot stop the pass.
func normalizeTrigger(n *graph.Node) {
	if n.Parameters == nil {
		n.Parameters = map[string]any{}
	}
	n.Parameters["responseMode"] = graph.ResponseModeOnReceived
	n.Parameters["options"] = map[string]any{}
}
