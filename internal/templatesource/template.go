// Package templatesource loads the canonical workflow template and hands out
// private copies of it for each specialization request.
package templatesource

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/graph"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/validator"
)

// ErrInvalidTemplate is returned when a template document fails validation.
var ErrInvalidTemplate = errors.New("invalid template")

// Template is an immutable, validated template document. Every call to
// Instantiate decodes a fresh graph so requests never share state.
type Template struct {
	Name     string
	Version  string
	LoadedAt time.Time

	raw []byte
}

// Parse validates data against the workflow schema and wraps it.
func Parse(name string, data []byte, v *validator.Validator) (*Template, error) {
	if v != nil {
		res := v.ValidateWorkflowJSON(data)
		if !res.Valid {
			msgs := make([]string, 0, len(res.Errors))
			for _, e := range res.Errors {
				msgs = append(msgs, e.Path+": "+e.Message)
			}
			return nil, fmt.Errorf("%w %s: %s", ErrInvalidTemplate, name, strings.Join(msgs, "; "))
		}
	}
	if _, err := graph.Decode(data); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrInvalidTemplate, name, err)
	}

	sum := sha256.Sum256(data)
	raw := make([]byte, len(data))
	copy(raw, data)

	return &Template{
		Name:     name,
		Version:  hex.EncodeToString(sum[:8]),
		LoadedAt: time.Now().UTC(),
		raw:      raw,
	}, nil
}

// Instantiate returns a private working copy of the template graph.
func (t *Template) Instantiate() (*graph.Workflow, error) {
	return graph.Decode(t.raw)
}

// Raw returns a copy of the template document.
func (t *Template) Raw() []byte {
	out := make([]byte, len(t.raw))
	copy(out, t.raw)
	return out
}
