package bundler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/sitepack/internal/fragment"
	"github.com/wolfeidau/sitepack/internal/mode"
)

func testPipeline(dir string) *Pipeline {
	config := DefaultConfig()
	config.ProjectDir = dir
	return New(config)
}

func TestPipelineBuild(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"src/index.js": "import { greet } from './greet'\nconsole.log(greet('sitepack'))\n",
		"src/greet.js": "export const greet = (name) => `hello ${name}`\n",
	})

	f := fragment.Fragment{
		Mode:   "production",
		Entry:  []string{"src/index.js"},
		Output: fragment.Output{Path: "dist", Filename: "js/[name].js"},
		Plugins: []fragment.Plugin{
			{Name: PluginManifest},
		},
	}

	p := testPipeline(dir)
	res, err := p.Build(context.Background(), f)
	require.NoError(t, err)

	require.Equal(t, []string{filepath.Join(dir, "dist", "js", "index.js")}, res.OutputFiles)
	require.Positive(t, res.Bytes)
	require.Contains(t, res.Metadata.Outputs, "dist/js/index.js")
	require.FileExists(t, filepath.Join(dir, "dist", "js", "index.js"))
	require.FileExists(t, filepath.Join(dir, "dist", "meta.json"))

	data, err := os.ReadFile(filepath.Join(dir, "dist", "manifest.json"))
	require.NoError(t, err)
	var entries map[string]ManifestEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Equal(t, ManifestEntry{Script: "/js/index.js", Scripts: []string{"/js/index.js"}}, entries["src/index.js"])

	require.Equal(t, []string{"src/index.js"}, p.EntryPoints())

	scripts, main, err := p.LoadScripts("src/index.js")
	require.NoError(t, err)
	require.Equal(t, "/dist/js/index.js", main)
	require.Equal(t, []string{"/dist/js/index.js"}, scripts)
}

func TestPipelineBuildErrors(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"src/index.js": "export const = ;\n",
	})

	res, err := testPipeline(dir).Build(context.Background(), fragment.Fragment{})
	require.ErrorIs(t, err, ErrBuildFailed)
	require.Nil(t, res)
	require.NoFileExists(t, filepath.Join(dir, "dist", "meta.json"))
}

func TestPipelineBuildNoEntries(t *testing.T) {
	dir := t.TempDir()

	_, err := testPipeline(dir).Build(context.Background(), fragment.Fragment{})
	require.ErrorIs(t, err, ErrNoEntryPoints)
}

func TestPipelineBuildCancelled(t *testing.T) {
	dir := writeProject(t, map[string]string{"src/index.js": "console.log(1)\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testPipeline(dir).Build(ctx, fragment.Fragment{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestPipelineStart(t *testing.T) {
	dir := writeProject(t, map[string]string{"src/index.js": "console.log(1)\n"})

	c := testPipeline(dir).Start(context.Background(), fragment.Fragment{})

	res, err := c.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, res.OutputFiles, 1)

	select {
	case <-c.Done():
	default:
		t.Fatal("completion should be done after Wait returns")
	}
}

func TestLoadScriptsNotBuilt(t *testing.T) {
	_, _, err := New(DefaultConfig()).LoadScripts("src/index.js")
	require.ErrorIs(t, err, ErrNotBuilt)
	require.Nil(t, New(DefaultConfig()).EntryPoints())
}

const pngHeader = "\x89PNG\r\n\x1a\n"

func TestPipelineBuildAssets(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"src/index.js":  "import small from './small.png'\nimport large from './large.png'\nconsole.log(small, large)\n",
		"src/small.png": pngHeader + strings.Repeat("\xff", 92),
		"src/large.png": pngHeader + strings.Repeat("\xff", 8000),
	})

	f := fragment.Fragment{
		Entry: []string{"src/index.js"},
		Output: fragment.Output{
			Path:                "dist",
			Filename:            "js/[name].js",
			AssetModuleFilename: "asset/[name].[contenthash:8].[ext]",
		},
		Module: fragment.Module{Rules: []fragment.Rule{
			{Name: "image", Test: []string{".png"}, Type: "asset", DataURLMaxSize: 4 * 1024},
		}},
	}

	_, err := testPipeline(dir).Build(context.Background(), f)
	require.NoError(t, err)

	script, err := os.ReadFile(filepath.Join(dir, "dist", "js", "index.js"))
	require.NoError(t, err)
	require.Contains(t, string(script), "data:image/png;base64,")

	large, err := filepath.Glob(filepath.Join(dir, "dist", "asset", "large.*.png"))
	require.NoError(t, err)
	require.Len(t, large, 1)

	small, err := filepath.Glob(filepath.Join(dir, "dist", "asset", "small.*"))
	require.NoError(t, err)
	require.Empty(t, small)
}

func TestPipelineBuildSiteStylesheets(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"src/index.js":   "import './index.less'\nconsole.log('site')\n",
		"src/index.less": "body { color: red; }\n",
	})

	f, err := mode.NewResolver().Resolve(mode.BuildSite)
	require.NoError(t, err)
	f.Entry = []string{"src/index.js"}
	f.Plugins = append(f.Plugins, fragment.Plugin{Name: PluginManifest})

	res, err := testPipeline(dir).Build(context.Background(), f)
	require.NoError(t, err)

	require.NoFileExists(t, filepath.Join(dir, "dist", "js", "index.css"))

	sheets, err := filepath.Glob(filepath.Join(dir, "dist", "stylesheet", "index.*.css"))
	require.NoError(t, err)
	require.Len(t, sheets, 1)
	require.Regexp(t, `index\.[0-9a-f]{8}\.css$`, sheets[0])
	require.Contains(t, res.OutputFiles, sheets[0])

	rel, err := filepath.Rel(dir, sheets[0])
	require.NoError(t, err)
	key := filepath.ToSlash(rel)
	require.Equal(t, key, res.Metadata.Outputs["dist/js/index.js"].CSSBundle)

	data, err := os.ReadFile(filepath.Join(dir, "dist", "meta.json"))
	require.NoError(t, err)
	written, err := parseMetadata(string(data))
	require.NoError(t, err)
	require.Contains(t, written.Outputs, key)
	require.NotContains(t, written.Outputs, "dist/js/index.css")

	data, err = os.ReadFile(filepath.Join(dir, "dist", "manifest.json"))
	require.NoError(t, err)
	var entries map[string]ManifestEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Equal(t, []string{"./" + strings.TrimPrefix(key, "dist/")}, entries["src/index.js"].Styles)
}

func TestServeOptionsLiveReload(t *testing.T) {
	dir := writeProject(t, map[string]string{"src/index.js": "console.log('dev')\n"})

	tests := []struct {
		name    string
		plugins []fragment.Plugin
		banner  bool
	}{
		{name: "hot module replacement", plugins: []fragment.Plugin{{Name: PluginHMR}}, banner: true},
		{name: "no reload", plugins: nil, banner: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := testPipeline(dir).serveOptions(fragment.Fragment{Plugins: tt.plugins})
			require.NoError(t, err)
			opts.Write = false

			result := api.Build(opts)
			require.Empty(t, result.Errors)

			var script string
			for _, file := range result.OutputFiles {
				if filepath.Ext(file.Path) == ".js" {
					script = string(file.Contents)
				}
			}
			require.NotEmpty(t, script)

			if tt.banner {
				require.Contains(t, script, liveReloadBanner)
			} else {
				require.NotContains(t, script, "EventSource")
			}
		})
	}
}

func TestPipelineServe(t *testing.T) {
	dir := writeProject(t, map[string]string{"src/index.js": "console.log('dev')\n"})

	f := fragment.Fragment{
		Mode:   "development",
		Output: fragment.Output{Path: "dist"},
		Plugins: []fragment.Plugin{
			{Name: PluginHMR},
			{Name: PluginManifest},
		},
	}

	p := testPipeline(dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.Serve(ctx, f, ServeConfig{Host: "127.0.0.1"})
	}()

	// emitters run once the first watch build ends
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "dist", "manifest.json"))
		return err == nil
	}, 10*time.Second, 50*time.Millisecond)
	require.Equal(t, []string{"src/index.js"}, p.EntryPoints())

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
