package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/sitepack/internal/bundler"
	"github.com/wolfeidau/sitepack/internal/fragment"
	"github.com/wolfeidau/sitepack/internal/mode"
	"github.com/wolfeidau/sitepack/internal/project"
)

type fakeEngine struct {
	mu     sync.Mutex
	calls  []fragment.Fragment
	result *bundler.Result
	err    error
}

func (e *fakeEngine) Start(_ context.Context, f fragment.Fragment) *bundler.Completion {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, f)
	if e.err != nil {
		return bundler.Failed(e.err)
	}
	return bundler.Completed(e.result)
}

type failingProvider struct{ err error }

func (p failingProvider) Override(mode.BuildMode) (fragment.Fragment, error) {
	return fragment.Fragment{}, p.err
}

func newOrchestrator(provider project.Provider, engine bundler.Engine) *Orchestrator {
	return New(mode.NewResolver(), provider, engine)
}

func TestComposeOutputPath(t *testing.T) {
	dir := t.TempDir()
	o := newOrchestrator(project.Static{}, &fakeEngine{})

	tests := []struct {
		name   string
		output string
		want   string
	}{
		{name: "default", output: "", want: filepath.Join(dir, DefaultOutputDir)},
		{name: "relative", output: "public/assets", want: filepath.Join(dir, "public", "assets")},
		{name: "absolute", output: filepath.Join(dir, "elsewhere"), want: filepath.Join(dir, "elsewhere")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := o.Compose(context.Background(), Options{Mode: mode.BuildSite, ProjectDir: dir, OutputDir: tt.output})
			require.NoError(t, err)
			require.Equal(t, tt.want, f.Output.Path)
		})
	}
}

func TestComposeAnalyzer(t *testing.T) {
	o := newOrchestrator(project.Static{}, &fakeEngine{})

	plain, err := o.Compose(context.Background(), Options{Mode: mode.BuildSite, ProjectDir: t.TempDir()})
	require.NoError(t, err)
	require.False(t, plain.HasPlugin(mode.PluginBundleAnalyzer))

	analyzed, err := o.Compose(context.Background(), Options{Mode: mode.BuildSite, ProjectDir: t.TempDir(), Analyze: true})
	require.NoError(t, err)
	require.Len(t, analyzed.Plugins, len(plain.Plugins)+1)
	require.Equal(t, AnalyzerPlugin(), analyzed.Plugins[len(analyzed.Plugins)-1])
}

func TestComposeProjectOverrideLast(t *testing.T) {
	provider := project.Static{
		Common: fragment.Fragment{
			Plugins: []fragment.Plugin{{Name: "manifest"}},
		},
		BuildSite: fragment.Fragment{
			Devtool: "source-map",
			Output:  fragment.Output{PublicPath: "/static/"},
		},
	}
	o := newOrchestrator(provider, &fakeEngine{})

	f, err := o.Compose(context.Background(), Options{Mode: mode.BuildSite, ProjectDir: t.TempDir()})
	require.NoError(t, err)

	require.Equal(t, "source-map", f.Devtool)
	require.Equal(t, "/static/", f.Output.PublicPath)
	require.Equal(t, "manifest", f.Plugins[len(f.Plugins)-1].Name)
	require.Len(t, f.Optimization.Minimizer, 2)
}

func TestComposeOverrideCannotMoveOutput(t *testing.T) {
	dir := t.TempDir()
	provider := project.Static{
		Common: fragment.Fragment{Output: fragment.Output{Path: "/tmp/ignored"}},
	}
	o := newOrchestrator(provider, &fakeEngine{})

	f, err := o.Compose(context.Background(), Options{ProjectDir: dir, OutputDir: "out"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "out"), f.Output.Path)
}

func TestComposeUnknownModeIsDevelopment(t *testing.T) {
	dir := t.TempDir()
	o := newOrchestrator(project.Static{}, &fakeEngine{})

	dev, err := o.Compose(context.Background(), Options{Mode: mode.Development, ProjectDir: dir})
	require.NoError(t, err)

	for _, token := range []mode.BuildMode{"", "staging"} {
		got, err := o.Compose(context.Background(), Options{Mode: token, ProjectDir: dir})
		require.NoError(t, err)
		require.Empty(t, cmp.Diff(dev, got))
	}
}

func TestComposeProviderError(t *testing.T) {
	boom := errors.New("boom")
	o := newOrchestrator(failingProvider{err: boom}, &fakeEngine{})

	_, err := o.Compose(context.Background(), Options{ProjectDir: t.TempDir()})
	require.ErrorIs(t, err, boom)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	want := &bundler.Result{OutputFiles: []string{"index.js"}}
	engine := &fakeEngine{result: want}
	o := newOrchestrator(project.Static{}, engine)

	c, err := o.Run(context.Background(), Options{Mode: mode.BuildLib, ProjectDir: dir, Analyze: true})
	require.NoError(t, err)

	res, err := c.Wait(context.Background())
	require.NoError(t, err)
	require.Same(t, want, res)

	require.Len(t, engine.calls, 1)
	started := engine.calls[0]
	require.Equal(t, "production", started.Mode)
	require.Equal(t, filepath.Join(dir, DefaultOutputDir), started.Output.Path)
	require.True(t, started.HasPlugin(mode.PluginBundleAnalyzer))
}

func TestRunEngineFailure(t *testing.T) {
	engine := &fakeEngine{err: bundler.ErrBuildFailed}
	o := newOrchestrator(project.Static{}, engine)

	c, err := o.Run(context.Background(), Options{Mode: mode.BuildSite, ProjectDir: t.TempDir()})
	require.NoError(t, err)

	_, err = c.Wait(context.Background())
	require.ErrorIs(t, err, bundler.ErrBuildFailed)
}

func TestRunInvalidProjectFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, project.FileName), []byte("build-site:\n  bogus: true\n"), 0o600))

	engine := &fakeEngine{}
	o := newOrchestrator(project.Dir{Root: dir}, engine)

	c, err := o.Run(context.Background(), Options{Mode: mode.BuildSite, ProjectDir: dir})
	require.ErrorIs(t, err, project.ErrInvalidOverride)
	require.Nil(t, c)
	require.Empty(t, engine.calls)
}
