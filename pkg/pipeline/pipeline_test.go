package pipeline

import (
	"context"
	"testing"

	"github.com/safetydesk/causemap/pkg/cache"
	"github.com/safetydesk/causemap/pkg/errors"
)

const testDescription = "Worker slipped on wet floor near loading dock"

func testOptions() Options {
	return Options{
		Description: testDescription,
		Level:       3,
		Formats:     []string{FormatDOT, FormatJSON},
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{Description: testDescription}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("ValidateAndSetDefaults() error = %v", err)
	}

	if opts.Level != 3 {
		t.Errorf("default Level = %d, want 3", opts.Level)
	}
	if len(opts.Formats) != 1 || opts.Formats[0] != FormatSVG {
		t.Errorf("default Formats = %v, want [svg]", opts.Formats)
	}
	if opts.Scale != DefaultScale {
		t.Errorf("default Scale = %v, want %v", opts.Scale, DefaultScale)
	}
	if opts.Logger == nil {
		t.Error("default Logger not set")
	}
}

func TestOptionsValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		code errors.Code
	}{
		{"short description", Options{Description: "short"}, errors.ErrCodeInvalidInput},
		{"level too high", Options{Description: testDescription, Level: 9}, errors.ErrCodeInvalidLevel},
		{"bad format", Options{Description: testDescription, Formats: []string{"tiff"}}, errors.ErrCodeUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.ValidateAndSetDefaults()
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestValidateFormat(t *testing.T) {
	for _, f := range []string{FormatSVG, FormatPNG, FormatPDF, FormatHTML, FormatDOT, FormatJSON} {
		if err := ValidateFormat(f); err != nil {
			t.Errorf("ValidateFormat(%q) = %v", f, err)
		}
	}
	if err := ValidateFormat("bmp"); err == nil {
		t.Error("ValidateFormat(bmp) accepted")
	}
}

func TestRunnerGenerateDeterministic(t *testing.T) {
	r := NewRunner(cache.NewNullCache(), nil, nil)
	ctx := context.Background()

	a, err := r.Generate(ctx, testOptions())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	b, err := r.Generate(ctx, testOptions())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("node %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
	if a[0].Depth != 0 {
		t.Errorf("root depth = %d, want 0", a[0].Depth)
	}
}

func TestExecuteProducesArtifacts(t *testing.T) {
	r := NewRunner(cache.NewNullCache(), nil, nil)

	result, err := r.Execute(context.Background(), testOptions())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.Stats.NodeCount != len(result.Nodes) {
		t.Errorf("NodeCount = %d, nodes = %d", result.Stats.NodeCount, len(result.Nodes))
	}
	if result.NodesHash == "" {
		t.Error("NodesHash not set")
	}
	if len(result.Artifacts[FormatDOT]) == 0 {
		t.Error("no DOT artifact")
	}
	if len(result.Artifacts[FormatJSON]) == 0 {
		t.Error("no JSON artifact")
	}
	if result.CacheInfo.RenderHit {
		t.Error("cold run reported cache hit")
	}
}

func TestExecuteCachesArtifacts(t *testing.T) {
	r := NewRunner(cache.NewMemoryCache(), nil, nil)
	ctx := context.Background()

	if _, err := r.Execute(ctx, testOptions()); err != nil {
		t.Fatalf("first Execute() error = %v", err)
	}

	result, err := r.Execute(ctx, testOptions())
	if err != nil {
		t.Fatalf("second Execute() error = %v", err)
	}
	if !result.CacheInfo.RenderHit {
		t.Error("warm run missed the artifact cache")
	}

	// Refresh bypasses the cache.
	opts := testOptions()
	opts.Refresh = true
	result, err = r.Execute(ctx, opts)
	if err != nil {
		t.Fatalf("refresh Execute() error = %v", err)
	}
	if result.CacheInfo.RenderHit {
		t.Error("refresh run reported cache hit")
	}
}

func TestRenderRejectsBrokenTree(t *testing.T) {
	r := NewRunner(cache.NewNullCache(), nil, nil)

	nodes, err := r.Generate(context.Background(), testOptions())
	if err != nil {
		t.Fatal(err)
	}
	nodes[0].Parent = 99

	opts := testOptions()
	if _, err := r.Render(context.Background(), nodes, opts); !errors.IsDataIntegrity(err) {
		t.Errorf("Render(broken) = %v, want data-integrity error", err)
	}
}
