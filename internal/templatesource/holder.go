package templatesource

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/validator"
)

// Holder keeps the active template and swaps it atomically on reload.
// A failed reload leaves the previous template in place.
type Holder struct {
	source    Source
	validator *validator.Validator
	logger    *slog.Logger
	current   atomic.Pointer[Template]
}

// NewHolder loads the template from src once and returns a holder for it.
func NewHolder(ctx context.Context, src Source, v *validator.Validator, logger *slog.Logger) (*Holder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Holder{source: src, validator: v, logger: logger}
	if _, err := h.Reload(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Current returns the active template.
func (h *Holder) Current() *Template {
	return h.current.Load()
}

// Reload re-reads the source and swaps in the new template if it is valid.
func (h *Holder) Reload(ctx context.Context) (*Template, error) {
	data, err := h.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load template from %s: %w", h.source.Name(), err)
	}
	tmpl, err := Parse(h.source.Name(), data, h.validator)
	if err != nil {
		return nil, err
	}

	prev := h.current.Swap(tmpl)
	if prev == nil || prev.Version != tmpl.Version {
		h.logger.Info("template loaded",
			"source", tmpl.Name,
			"version", tmpl.Version,
		)
	}
	return tmpl, nil
}
