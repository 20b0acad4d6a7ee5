package templatesource

import (
	"context"
	_ "embed"
	"fmt"
	"os"
)

//go:embed default_template.json
var defaultTemplate []byte

// Source produces the raw template document.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]byte, error)
}

// EmbeddedSource serves the template compiled into the binary.
type EmbeddedSource struct{}

func (EmbeddedSource) Name() string { return "embedded:default_template.json" }

func (EmbeddedSource) Load(context.Context) ([]byte, error) {
	out := make([]byte, len(defaultTemplate))
	copy(out, defaultTemplate)
	return out, nil
}

// FileSource reads the template from the local filesystem.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) Load(context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", s.Path, err)
	}
	return data, nil
}
