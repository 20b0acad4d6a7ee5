// Package graph provides the in-memory model of an automation workflow: typed
// nodes wired by name-keyed connections, in the JSON shape the orchestration
// engine imports.
package graph

import (
	"encoding/json"
	"fmt"
)

// Port labels used by connection maps.
const (
	PortMain          = "main"
	PortLanguageModel = "ai_languageModel"
	PortMemory        = "ai_memory"
	PortTool          = "ai_tool"
)

// Position is the canvas coordinate of a node.
type Position [2]float64

// Node is a single step of a workflow. Name is the stable key used by
// connections; ID may be regenerated freely.
type Node struct {
	ID           string                   `json:"id"`
	Name         string                   `json:"name"`
	Type         string                   `json:"type"`
	TypeVersion  float64                  `json:"typeVersion,omitempty"`
	Position     Position                 `json:"position"`
	Parameters   map[string]any           `json:"parameters,omitempty"`
	Credentials  map[string]CredentialRef `json:"credentials,omitempty"`
	WebhookID    string                   `json:"webhookId,omitempty"`
	Disabled     bool                     `json:"disabled,omitempty"`
	AlwaysOutput bool                     `json:"alwaysOutputData,omitempty"`
}

// CredentialRef points at a secret managed by the orchestration engine.
type CredentialRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Target is one destination of a connection group.
type Target struct {
	Node  string `json:"node"`
	Port  string `json:"type"`
	Index int    `json:"index"`
}

// Connections maps source node name -> output port -> fan-out groups.
type Connections map[string]map[string][][]Target

// Workflow is the aggregate handed to the orchestration engine.
type Workflow struct {
	Name        string         `json:"name,omitempty"`
	Nodes       []*Node        `json:"nodes"`
	Connections Connections    `json:"connections"`
	Settings    map[string]any `json:"settings,omitempty"`
}

// Decode parses a workflow document.
func Decode(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	if wf.Connections == nil {
		wf.Connections = Connections{}
	}
	return &wf, nil
}

// Encode serializes the workflow for hand-off.
func (w *Workflow) Encode() ([]byte, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode workflow: %w", err)
	}
	return data, nil
}

// Clone returns a deep copy sharing no maps or slices with w.
func (w *Workflow) Clone() *Workflow {
	out := &Workflow{
		Name:        w.Name,
		Nodes:       make([]*Node, 0, len(w.Nodes)),
		Connections: w.Connections.Clone(),
		Settings:    cloneMap(w.Settings),
	}
	for _, n := range w.Nodes {
		out.Nodes = append(out.Nodes, n.Clone())
	}
	return out
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	cp := *n
	cp.Parameters = cloneMap(n.Parameters)
	if n.Credentials != nil {
		cp.Credentials = make(map[string]CredentialRef, len(n.Credentials))
		for k, v := range n.Credentials {
			cp.Credentials[k] = v
		}
	}
	return &cp
}

// Kind classifies the node by its type.
func (n *Node) Kind() Kind {
	return KindOf(n.Type)
}

// NodeByName returns the node with the given name.
func (w *Workflow) NodeByName(name string) (*Node, bool) {
	for _, n := range w.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return nil, false
}

// FirstOfKind returns the first node of kind k in document order.
func (w *Workflow) FirstOfKind(k Kind) (*Node, bool) {
	for _, n := range w.Nodes {
		if n.Kind() == k {
			return n, true
		}
	}
	return nil, false
}

// NodesOfKind returns every node of kind k in document order.
func (w *Workflow) NodesOfKind(k Kind) []*Node {
	var out []*Node
	for _, n := range w.Nodes {
		if n.Kind() == k {
			out = append(out, n)
		}
	}
	return out
}

// RemoveNodes drops every node for which drop returns true, along with the
// connections originating from it. Connections pointing at dropped nodes are
// pruned as well so no dangling reference survives.
func (w *Workflow) RemoveNodes(drop func(*Node) bool) int {
	kept := w.Nodes[:0]
	removed := map[string]bool{}
	for _, n := range w.Nodes {
		if drop(n) {
			removed[n.Name] = true
			continue
		}
		kept = append(kept, n)
	}
	for i := len(kept); i < len(w.Nodes); i++ {
		w.Nodes[i] = nil
	}
	w.Nodes = kept
	if len(removed) == 0 {
		return 0
	}
	for name := range removed {
		delete(w.Connections, name)
	}
	w.Connections.RemoveTargets(func(_ string, _ string, t Target) bool {
		return removed[t.Node]
	})
	return len(removed)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
