package wrapper

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/daimoniac/scancapture/internal/buildstate"
	"github.com/daimoniac/scancapture/internal/capture"
	"github.com/daimoniac/scancapture/internal/config"
	"github.com/daimoniac/scancapture/internal/filemanager"
	"github.com/daimoniac/scancapture/internal/lifecycle"
	"github.com/daimoniac/scancapture/internal/metadata"
	"github.com/daimoniac/scancapture/internal/output"
	"github.com/daimoniac/scancapture/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type events struct {
	mu        sync.Mutex
	results   []lifecycle.BuildResult
	scans     []lifecycle.PublishedScan
	shutdowns atomic.Int32
}

func subscribe(r *Runner) *events {
	e := &events{}
	r.OnBuildFinished(func(res lifecycle.BuildResult) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.results = append(e.results, res)
	})
	r.OnBuildScanPublished(func(scan lifecycle.PublishedScan) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.scans = append(e.scans, scan)
	})
	r.OnShutdown(func() { e.shutdowns.Add(1) })
	return e
}

func shell(t *testing.T, script string, stdout, stderr *bytes.Buffer) *Runner {
	t.Helper()
	r, err := New(nil, Options{
		Command:     []string{"sh", "-c", script},
		ProjectID:   "demo",
		ToolVersion: "3.9.6",
		Stdout:      stdout,
		Stderr:      stderr,
	})
	require.NoError(t, err)
	return r
}

func TestRun_Success(t *testing.T) {
	var stdout, stderr bytes.Buffer
	r := shell(t, "echo building; echo warning >&2", &stdout, &stderr)
	e := subscribe(r)

	code, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, code)
	assert.Equal(t, "building\n", stdout.String())
	assert.Equal(t, "warning\n", stderr.String())
	require.Len(t, e.results, 1)
	assert.False(t, e.results[0].Failed())
	assert.Empty(t, e.scans)
	assert.Equal(t, int32(1), e.shutdowns.Load())
}

func TestRun_FailureExitCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	r := shell(t, "echo broken >&2; exit 3", &stdout, &stderr)
	e := subscribe(r)

	code, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, code)
	require.Len(t, e.results, 1)
	assert.True(t, e.results[0].Failed())
	assert.Equal(t, int32(1), e.shutdowns.Load())
}

func TestRun_DetectsPublishedScan(t *testing.T) {
	var stdout, stderr bytes.Buffer
	script := `echo "[INFO] Publishing build scan..."
echo "[INFO] https://scans.example.com/s/abc123def"
echo "[INFO] https://scans.example.com/s/ignored"`
	r := shell(t, script, &stdout, &stderr)
	e := subscribe(r)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, e.scans, 1)
	assert.Equal(t, "abc123def", e.scans[0].BuildScanID())
	assert.Equal(t, "https://scans.example.com/s/abc123def", e.scans[0].BuildScanURI().String())
}

func TestRun_DetectsScanOnStderrWithoutTrailingNewline(t *testing.T) {
	var stdout, stderr bytes.Buffer
	r := shell(t, `printf 'https://scans.example.com/s/tail' >&2`, &stdout, &stderr)
	e := subscribe(r)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, e.scans, 1)
	assert.Equal(t, "https://scans.example.com/s/tail", stderr.String())
}

func TestRun_StartFailure(t *testing.T) {
	r, err := New(nil, Options{
		Command: []string{"/nonexistent/build-tool-binary"},
		Stdout:  &bytes.Buffer{},
		Stderr:  &bytes.Buffer{},
	})
	require.NoError(t, err)
	e := subscribe(r)

	code, err := r.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, code)
	require.Len(t, e.results, 1)
	assert.True(t, e.results[0].Failed())
	assert.Equal(t, int32(1), e.shutdowns.Load())
}

func TestShutdown_FiresOnce(t *testing.T) {
	var stdout, stderr bytes.Buffer
	r := shell(t, "true", &stdout, &stderr)
	e := subscribe(r)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Shutdown()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), e.shutdowns.Load())
}

func TestSession(t *testing.T) {
	r, err := New(nil, Options{Command: []string{"mvn", "clean", "install"}, ProjectID: "demo", ToolVersion: "3.9.6"})
	require.NoError(t, err)

	assert.Equal(t, "demo", r.ProjectID())
	assert.Equal(t, []string{"clean", "install"}, r.RequestedGoals())

	version, err := r.ToolVersion()
	require.NoError(t, err)
	assert.Equal(t, "3.9.6", version)
}

func TestToolVersion_Errors(t *testing.T) {
	for _, v := range []string{"", "not-a-version"} {
		r, err := New(nil, Options{Command: []string{"mvn"}, ProjectID: "demo", ToolVersion: v})
		require.NoError(t, err)

		_, err = r.ToolVersion()
		assert.Error(t, err, "version %q", v)
	}
}

func TestNew_DefaultProjectID(t *testing.T) {
	r, err := New(nil, Options{Command: []string{"mvn"}})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ProjectID())
}

func TestNew_RequiresCommand(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}

func TestDefaultLinkPattern(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"[INFO] https://ge.example.com/s/abcdef123", "https://ge.example.com/s/abcdef123"},
		{"Build scan: http://localhost:5086/s/xyz.", "http://localhost:5086/s/xyz"},
		{"Publishing build scan...", ""},
		{"see https://example.com/docs for help", ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultLinkPattern.FindString(tt.line))
		})
	}
}

func TestRun_EventOrder(t *testing.T) {
	var stdout, stderr bytes.Buffer
	r := shell(t, "echo https://scans.example.com/s/order; exit 1", &stdout, &stderr)

	var mu sync.Mutex
	var order []string
	record := func(event string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, event)
	}
	r.OnBuildFinished(func(lifecycle.BuildResult) { record("finished") })
	r.OnBuildScanPublished(func(lifecycle.PublishedScan) { record("published") })
	r.OnShutdown(func() { record("shutdown") })

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"finished", "published", "shutdown"}, order)
}

func TestRun_OnFailureCapturesLinkOfFailedBuild(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{
		Capture: config.CaptureConfig{
			Strategy:           config.StrategyOnFailure,
			UnpublishedEnabled: true,
			LinkEnabled:        true,
		},
		Paths: config.PathConfig{
			ScanDataDir:     filepath.Join(root, "scan-data"),
			ScanDataCopyDir: filepath.Join(root, "scan-data-copy"),
			MetadataDir:     filepath.Join(root, "metadata"),
			MetadataCopyDir: filepath.Join(root, "metadata-copy"),
			LinkRecordFile:  filepath.Join(root, "links.txt"),
			GitHubOutputKey: config.DefaultGitHubOutputKey,
		},
		Identity:        config.IdentityConfig{WorkflowName: "ci", JobName: "build", PRNumber: "1"},
		ScanDumpPattern: config.DefaultScanDumpPattern,
	}

	engine, err := policy.NewEngine(nil, policy.FromConfig(cfg))
	require.NoError(t, err)

	files := filemanager.New()
	state := buildstate.New()
	listener, err := capture.NewListener(nil, cfg, engine, state, files,
		capture.WithSinks(output.FromConfig(cfg, files)...),
		capture.WithIDGenerator(func() string { return "run-id" }),
	)
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	r := shell(t, "echo https://scans.example.com/s/abc123; exit 1", &stdout, &stderr)
	listener.Configure(r, r)

	code, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, code)
	assert.True(t, state.IsFailure())
	assert.Equal(t, "https://scans.example.com/s/abc123", state.BuildScanLink())

	links, err := os.ReadFile(cfg.Paths.LinkRecordFile)
	require.NoError(t, err)
	assert.Equal(t, "run-id=https://scans.example.com/s/abc123\n", string(links))

	job, err := metadata.LoadJob(nil, cfg.Paths.MetadataDir)
	require.NoError(t, err)
	require.Len(t, job.Builds, 1)
	assert.True(t, job.Builds[0].BuildFailure)
	assert.Equal(t, "https://scans.example.com/s/abc123", job.Builds[0].BuildScanLink)
}
