package graph

import "fmt"

// TemplateIntegrityError reports a canonical template that lacks a node kind
// a pipeline stage depends on. Specialization cannot continue.
type TemplateIntegrityError struct {
	Stage   string
	Missing []Kind
}

func (e *TemplateIntegrityError) Error() string {
	return fmt.Sprintf("template integrity: %s requires node kinds %v", e.Stage, e.Missing)
}
