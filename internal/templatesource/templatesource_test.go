package templatesource

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/graph"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/validator"
)

func newValidator(t *testing.T) *validator.Validator {
	t.Helper()
	v, err := validator.New()
	require.NoError(t, err)
	return v
}

func TestEmbeddedTemplate(t *testing.T) {
	data, err := EmbeddedSource{}.Load(context.Background())
	require.NoError(t, err)

	tmpl, err := Parse("default", data, newValidator(t))
	require.NoError(t, err)
	assert.Len(t, tmpl.Version, 16)

	wf, err := tmpl.Instantiate()
	require.NoError(t, err)

	for _, k := range []graph.Kind{
		graph.KindEntryTrigger, graph.KindAgent, graph.KindProviderOpenAI,
		graph.KindProviderGemini, graph.KindChannel, graph.KindCache,
		graph.KindRelationalStore, graph.KindDecorative,
	} {
		_, ok := wf.FirstOfKind(k)
		assert.True(t, ok, "template lacks %s", k)
	}
	assert.Empty(t, wf.Dangling())
}

func TestInstantiateIsolated(t *testing.T) {
	data, _ := EmbeddedSource{}.Load(context.Background())
	tmpl, err := Parse("default", data, nil)
	require.NoError(t, err)

	a, err := tmpl.Instantiate()
	require.NoError(t, err)
	agent, _ := a.FirstOfKind(graph.KindAgent)
	agent.SetSystemMessage("mutated")
	a.RemoveNodes(func(*graph.Node) bool { return true })

	b, err := tmpl.Instantiate()
	require.NoError(t, err)
	agent, ok := b.FirstOfKind(graph.KindAgent)
	require.True(t, ok)
	assert.NotEqual(t, "mutated", agent.SystemMessage())
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse("bad", []byte(`{"nodes": []}`), newValidator(t))
	assert.ErrorIs(t, err, ErrInvalidTemplate)

	_, err = Parse("garbage", []byte(`not json`), nil)
	assert.ErrorIs(t, err, ErrInvalidTemplate)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.json")
	data, _ := EmbeddedSource{}.Load(context.Background())
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := FileSource{Path: path}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing.json")}.Load(context.Background())
	assert.Error(t, err)
}

type fakeGetter struct {
	body string
	err  error
	in   *s3.GetObjectInput
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestS3Source(t *testing.T) {
	fake := &fakeGetter{body: `{"nodes":[],"connections":{}}`}
	src := &S3Source{client: fake, bucket: "templates", key: "agent/default.json"}

	assert.Equal(t, "s3://templates/agent/default.json", src.Name())
	data, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fake.body, string(data))
	assert.Equal(t, "agent/default.json", *fake.in.Key)

	fake.err = errors.New("no such key")
	_, err = src.Load(context.Background())
	assert.ErrorContains(t, err, "no such key")
}

func TestNewS3SourceRequiresBucketAndKey(t *testing.T) {
	_, err := NewS3Source(context.Background(), S3Config{Bucket: "b"})
	assert.Error(t, err)
}

type stubSource struct {
	data []byte
	err  error
}

func (s *stubSource) Name() string                         { return "stub" }
func (s *stubSource) Load(context.Context) ([]byte, error) { return s.data, s.err }

func TestHolderKeepsPreviousOnFailure(t *testing.T) {
	data, _ := EmbeddedSource{}.Load(context.Background())
	src := &stubSource{data: data}

	h, err := NewHolder(context.Background(), src, newValidator(t), nil)
	require.NoError(t, err)
	first := h.Current()
	require.NotNil(t, first)

	src.data = []byte(`{"connections": {}}`)
	_, err = h.Reload(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTemplate)
	assert.Same(t, first, h.Current())

	src.err = errors.New("unreachable")
	_, err = h.Reload(context.Background())
	assert.Error(t, err)
	assert.Same(t, first, h.Current())
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "template.json")
	data, _ := EmbeddedSource{}.Load(context.Background())
	require.NoError(t, os.WriteFile(path, data, 0o644))

	h, err := NewHolder(context.Background(), FileSource{Path: path}, newValidator(t), nil)
	require.NoError(t, err)
	before := h.Current().Version

	w, err := NewWatcher(WatcherConfig{Holder: h, Path: path, DebounceDelay: 20 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	wf, err := graph.Decode(data)
	require.NoError(t, err)
	wf.Name = "Edited Agent"
	edited, err := wf.Encode()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, edited, 0o644))

	require.Eventually(t, func() bool {
		return h.Current().Version != before
	}, 5*time.Second, 20*time.Millisecond)
}
